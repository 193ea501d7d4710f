package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const customerColumns = `id, restaurant_id, phone, name, email, created_at, updated_at`

func scanCustomer(row scanner) (Customer, error) {
	var i Customer
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Phone,
		&i.Name,
		&i.Email,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertCustomer = `-- name: UpsertCustomer :one
INSERT INTO customers (restaurant_id, phone, name, email)
VALUES ($1, $2, $3, $4)
ON CONFLICT (restaurant_id, phone) DO UPDATE
SET name = EXCLUDED.name,
    email = COALESCE(EXCLUDED.email, customers.email),
    updated_at = now()
RETURNING ` + customerColumns

type UpsertCustomerParams struct {
	RestaurantID uuid.UUID   `json:"restaurant_id"`
	Phone        string      `json:"phone"`
	Name         string      `json:"name"`
	Email        pgtype.Text `json:"email"`
}

func (q *Queries) UpsertCustomer(ctx context.Context, arg UpsertCustomerParams) (Customer, error) {
	row := q.db.QueryRow(ctx, upsertCustomer,
		arg.RestaurantID,
		arg.Phone,
		arg.Name,
		arg.Email,
	)
	return scanCustomer(row)
}

const getCustomer = `-- name: GetCustomer :one
SELECT ` + customerColumns + ` FROM customers
WHERE id = $1 AND restaurant_id = $2
`

type GetCustomerParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) GetCustomer(ctx context.Context, arg GetCustomerParams) (Customer, error) {
	row := q.db.QueryRow(ctx, getCustomer, arg.ID, arg.RestaurantID)
	return scanCustomer(row)
}
