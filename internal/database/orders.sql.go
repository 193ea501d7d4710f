package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, restaurant_id, order_number, customer_id, status, delivery_type, delivery_zone, delivery_address, notes, payment_method, scheduled_time, subtotal, delivery_fee, discount, tax, total, assigned_to_id, assigned_at, cancellation_reason, created_at, updated_at, completed_at, cancelled_at`

func scanOrder(row scanner) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.OrderNumber,
		&i.CustomerID,
		&i.Status,
		&i.DeliveryType,
		&i.DeliveryZone,
		&i.DeliveryAddress,
		&i.Notes,
		&i.PaymentMethod,
		&i.ScheduledTime,
		&i.Subtotal,
		&i.DeliveryFee,
		&i.Discount,
		&i.Tax,
		&i.Total,
		&i.AssignedToID,
		&i.AssignedAt,
		&i.CancellationReason,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.CompletedAt,
		&i.CancelledAt,
	)
	return i, err
}

const nextOrderNumber = `-- name: NextOrderNumber :one
INSERT INTO order_counters (restaurant_id, day, last_value)
VALUES ($1, $2, 1)
ON CONFLICT (restaurant_id, day) DO UPDATE
SET last_value = order_counters.last_value + 1
RETURNING last_value
`

type NextOrderNumberParams struct {
	RestaurantID uuid.UUID   `json:"restaurant_id"`
	Day          pgtype.Date `json:"day"`
}

// NextOrderNumber atomically claims the next per-day sequence value. The row
// lock taken by the upsert serialises concurrent claims until commit.
func (q *Queries) NextOrderNumber(ctx context.Context, arg NextOrderNumberParams) (int32, error) {
	row := q.db.QueryRow(ctx, nextOrderNumber, arg.RestaurantID, arg.Day)
	var lastValue int32
	err := row.Scan(&lastValue)
	return lastValue, err
}

const syncOrderCounter = `-- name: SyncOrderCounter :exec
INSERT INTO order_counters (restaurant_id, day, last_value)
SELECT $1::uuid, $2::date, COALESCE(MAX(split_part(order_number, '-', 3)::int), 0)
FROM orders
WHERE restaurant_id = $1 AND order_number LIKE $3
ON CONFLICT (restaurant_id, day) DO UPDATE
SET last_value = GREATEST(order_counters.last_value, EXCLUDED.last_value)
`

type SyncOrderCounterParams struct {
	RestaurantID uuid.UUID   `json:"restaurant_id"`
	Day          pgtype.Date `json:"day"`
	Pattern      string      `json:"pattern"`
}

// SyncOrderCounter raises the day's counter to at least the highest sequence
// already used by orders matching Pattern (e.g. ORD-20250101-%).
func (q *Queries) SyncOrderCounter(ctx context.Context, arg SyncOrderCounterParams) error {
	_, err := q.db.Exec(ctx, syncOrderCounter, arg.RestaurantID, arg.Day, arg.Pattern)
	return err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (
    restaurant_id, order_number, customer_id, delivery_type, delivery_zone,
    delivery_address, notes, payment_method, scheduled_time,
    subtotal, delivery_fee, discount, tax, total
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	RestaurantID    uuid.UUID          `json:"restaurant_id"`
	OrderNumber     string             `json:"order_number"`
	CustomerID      uuid.UUID          `json:"customer_id"`
	DeliveryType    DeliveryType       `json:"delivery_type"`
	DeliveryZone    pgtype.Text        `json:"delivery_zone"`
	DeliveryAddress pgtype.Text        `json:"delivery_address"`
	Notes           pgtype.Text        `json:"notes"`
	PaymentMethod   pgtype.Text        `json:"payment_method"`
	ScheduledTime   pgtype.Timestamptz `json:"scheduled_time"`
	Subtotal        pgtype.Numeric     `json:"subtotal"`
	DeliveryFee     pgtype.Numeric     `json:"delivery_fee"`
	Discount        pgtype.Numeric     `json:"discount"`
	Tax             pgtype.Numeric     `json:"tax"`
	Total           pgtype.Numeric     `json:"total"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.RestaurantID,
		arg.OrderNumber,
		arg.CustomerID,
		string(arg.DeliveryType),
		arg.DeliveryZone,
		arg.DeliveryAddress,
		arg.Notes,
		arg.PaymentMethod,
		arg.ScheduledTime,
		arg.Subtotal,
		arg.DeliveryFee,
		arg.Discount,
		arg.Tax,
		arg.Total,
	)
	return scanOrder(row)
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (order_id, menu_item_id, name, quantity, unit_price, subtotal, customization)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, order_id, menu_item_id, name, quantity, unit_price, subtotal, customization
`

type CreateOrderItemParams struct {
	OrderID       uuid.UUID      `json:"order_id"`
	MenuItemID    uuid.UUID      `json:"menu_item_id"`
	Name          string         `json:"name"`
	Quantity      int32          `json:"quantity"`
	UnitPrice     pgtype.Numeric `json:"unit_price"`
	Subtotal      pgtype.Numeric `json:"subtotal"`
	Customization []byte         `json:"customization"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.MenuItemID,
		arg.Name,
		arg.Quantity,
		arg.UnitPrice,
		arg.Subtotal,
		arg.Customization,
	)
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.MenuItemID,
		&i.Name,
		&i.Quantity,
		&i.UnitPrice,
		&i.Subtotal,
		&i.Customization,
	)
	return i, err
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders
WHERE id = $1 AND restaurant_id = $2
`

type GetOrderParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, getOrder, arg.ID, arg.RestaurantID)
	return scanOrder(row)
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE restaurant_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND ($3::text IS NULL OR delivery_type = $3)
  AND ($4::timestamptz IS NULL OR created_at >= $4)
  AND ($5::timestamptz IS NULL OR created_at < $5)
ORDER BY created_at DESC
LIMIT $6 OFFSET $7
`

type ListOrdersParams struct {
	RestaurantID uuid.UUID          `json:"restaurant_id"`
	Status       pgtype.Text        `json:"status"`
	DeliveryType pgtype.Text        `json:"delivery_type"`
	StartDate    pgtype.Timestamptz `json:"start_date"`
	EndDate      pgtype.Timestamptz `json:"end_date"`
	Limit        int32              `json:"limit"`
	Offset       int32              `json:"offset"`
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders,
		arg.RestaurantID,
		arg.Status,
		arg.DeliveryType,
		arg.StartDate,
		arg.EndDate,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listOrderItemsByOrder = `-- name: ListOrderItemsByOrder :many
SELECT id, order_id, menu_item_id, name, quantity, unit_price, subtotal, customization
FROM order_items
WHERE order_id = $1
ORDER BY name, id
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(
			&i.ID,
			&i.OrderID,
			&i.MenuItemID,
			&i.Name,
			&i.Quantity,
			&i.UnitPrice,
			&i.Subtotal,
			&i.Customization,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders
SET status = $3,
    completed_at = COALESCE($5, completed_at),
    cancelled_at = COALESCE($6, cancelled_at),
    cancellation_reason = COALESCE($7, cancellation_reason),
    updated_at = now()
WHERE id = $1 AND restaurant_id = $2 AND status = $4
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID                 uuid.UUID          `json:"id"`
	RestaurantID       uuid.UUID          `json:"restaurant_id"`
	Status             OrderStatus        `json:"status"`
	PrevStatus         OrderStatus        `json:"prev_status"`
	CompletedAt        pgtype.Timestamptz `json:"completed_at"`
	CancelledAt        pgtype.Timestamptz `json:"cancelled_at"`
	CancellationReason pgtype.Text        `json:"cancellation_reason"`
}

// UpdateOrderStatus only applies when the row still holds PrevStatus;
// pgx.ErrNoRows signals a concurrent change.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderStatus,
		arg.ID,
		arg.RestaurantID,
		string(arg.Status),
		string(arg.PrevStatus),
		arg.CompletedAt,
		arg.CancelledAt,
		arg.CancellationReason,
	)
	return scanOrder(row)
}

const assignOrder = `-- name: AssignOrder :one
UPDATE orders
SET assigned_to_id = $3,
    assigned_at = $4,
    updated_at = now()
WHERE id = $1 AND restaurant_id = $2
RETURNING ` + orderColumns

type AssignOrderParams struct {
	ID           uuid.UUID          `json:"id"`
	RestaurantID uuid.UUID          `json:"restaurant_id"`
	AssignedToID pgtype.UUID        `json:"assigned_to_id"`
	AssignedAt   pgtype.Timestamptz `json:"assigned_at"`
}

func (q *Queries) AssignOrder(ctx context.Context, arg AssignOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, assignOrder,
		arg.ID,
		arg.RestaurantID,
		arg.AssignedToID,
		arg.AssignedAt,
	)
	return scanOrder(row)
}
