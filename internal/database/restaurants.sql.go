package database

import (
	"context"

	"github.com/google/uuid"
)

const restaurantColumns = `id, name, slug, whatsapp_number, currency, delivery_zones, default_delivery_fee, is_busy, is_active, created_at, updated_at`

func scanRestaurant(row scanner) (Restaurant, error) {
	var i Restaurant
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Slug,
		&i.WhatsappNumber,
		&i.Currency,
		&i.DeliveryZones,
		&i.DefaultDeliveryFee,
		&i.IsBusy,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getRestaurantBySlug = `-- name: GetRestaurantBySlug :one
SELECT ` + restaurantColumns + ` FROM restaurants
WHERE slug = $1 AND is_active = true
`

func (q *Queries) GetRestaurantBySlug(ctx context.Context, slug string) (Restaurant, error) {
	row := q.db.QueryRow(ctx, getRestaurantBySlug, slug)
	return scanRestaurant(row)
}

const getRestaurantByID = `-- name: GetRestaurantByID :one
SELECT ` + restaurantColumns + ` FROM restaurants
WHERE id = $1
`

func (q *Queries) GetRestaurantByID(ctx context.Context, id uuid.UUID) (Restaurant, error) {
	row := q.db.QueryRow(ctx, getRestaurantByID, id)
	return scanRestaurant(row)
}

const setRestaurantBusy = `-- name: SetRestaurantBusy :one
UPDATE restaurants SET is_busy = $2, updated_at = now()
WHERE id = $1
RETURNING ` + restaurantColumns

type SetRestaurantBusyParams struct {
	ID     uuid.UUID `json:"id"`
	IsBusy bool      `json:"is_busy"`
}

func (q *Queries) SetRestaurantBusy(ctx context.Context, arg SetRestaurantBusyParams) (Restaurant, error) {
	row := q.db.QueryRow(ctx, setRestaurantBusy, arg.ID, arg.IsBusy)
	return scanRestaurant(row)
}

const updateRestaurantDeliveryZones = `-- name: UpdateRestaurantDeliveryZones :one
UPDATE restaurants SET delivery_zones = $2, updated_at = now()
WHERE id = $1
RETURNING ` + restaurantColumns

type UpdateRestaurantDeliveryZonesParams struct {
	ID            uuid.UUID `json:"id"`
	DeliveryZones []byte    `json:"delivery_zones"`
}

func (q *Queries) UpdateRestaurantDeliveryZones(ctx context.Context, arg UpdateRestaurantDeliveryZonesParams) (Restaurant, error) {
	row := q.db.QueryRow(ctx, updateRestaurantDeliveryZones, arg.ID, arg.DeliveryZones)
	return scanRestaurant(row)
}
