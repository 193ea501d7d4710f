package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const menuItemColumns = `id, restaurant_id, category_id, name, slug, description, price, variants, modifiers, is_available, is_active, created_at, updated_at`

func scanMenuItem(row scanner) (MenuItem, error) {
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.CategoryID,
		&i.Name,
		&i.Slug,
		&i.Description,
		&i.Price,
		&i.Variants,
		&i.Modifiers,
		&i.IsAvailable,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func (q *Queries) queryMenuItems(ctx context.Context, query string, args ...interface{}) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []MenuItem{}
	for rows.Next() {
		i, err := scanMenuItem(rows)
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

const listMenuItems = `-- name: ListMenuItems :many
SELECT ` + menuItemColumns + ` FROM menu_items
WHERE restaurant_id = $1
  AND is_active = true
  AND ($2::uuid IS NULL OR category_id = $2)
ORDER BY name
`

type ListMenuItemsParams struct {
	RestaurantID uuid.UUID   `json:"restaurant_id"`
	CategoryID   pgtype.UUID `json:"category_id"`
}

func (q *Queries) ListMenuItems(ctx context.Context, arg ListMenuItemsParams) ([]MenuItem, error) {
	return q.queryMenuItems(ctx, listMenuItems, arg.RestaurantID, arg.CategoryID)
}

const listAvailableMenuItems = `-- name: ListAvailableMenuItems :many
SELECT m.id, m.restaurant_id, m.category_id, m.name, m.slug, m.description, m.price, m.variants, m.modifiers, m.is_available, m.is_active, m.created_at, m.updated_at
FROM menu_items m
JOIN categories c ON c.id = m.category_id AND c.is_active = true
WHERE m.restaurant_id = $1 AND m.is_active = true AND m.is_available = true
ORDER BY c.sort_order, m.name
`

func (q *Queries) ListAvailableMenuItems(ctx context.Context, restaurantID uuid.UUID) ([]MenuItem, error) {
	return q.queryMenuItems(ctx, listAvailableMenuItems, restaurantID)
}

const getMenuItem = `-- name: GetMenuItem :one
SELECT ` + menuItemColumns + ` FROM menu_items
WHERE id = $1 AND restaurant_id = $2
`

type GetMenuItemParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

// GetMenuItem returns the item even when soft-deleted so callers can tell
// "inactive" apart from "missing".
func (q *Queries) GetMenuItem(ctx context.Context, arg GetMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, getMenuItem, arg.ID, arg.RestaurantID)
	return scanMenuItem(row)
}

const getMenuItemRestaurant = `-- name: GetMenuItemRestaurant :one
SELECT restaurant_id FROM menu_items
WHERE id = $1
`

func (q *Queries) GetMenuItemRestaurant(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, getMenuItemRestaurant, id)
	var restaurantID uuid.UUID
	err := row.Scan(&restaurantID)
	return restaurantID, err
}

const listMenuItemSlugs = `-- name: ListMenuItemSlugs :many
SELECT slug FROM menu_items
WHERE restaurant_id = $1 AND (slug = $2 OR slug LIKE $2 || '-%')
`

func (q *Queries) ListMenuItemSlugs(ctx context.Context, arg ListSlugsParams) ([]string, error) {
	return q.listSlugs(ctx, listMenuItemSlugs, arg)
}

const createMenuItem = `-- name: CreateMenuItem :one
INSERT INTO menu_items (restaurant_id, category_id, name, slug, description, price, variants, modifiers, is_available)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + menuItemColumns

type CreateMenuItemParams struct {
	RestaurantID uuid.UUID      `json:"restaurant_id"`
	CategoryID   uuid.UUID      `json:"category_id"`
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	Description  pgtype.Text    `json:"description"`
	Price        pgtype.Numeric `json:"price"`
	Variants     []byte         `json:"variants"`
	Modifiers    []byte         `json:"modifiers"`
	IsAvailable  bool           `json:"is_available"`
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, createMenuItem,
		arg.RestaurantID,
		arg.CategoryID,
		arg.Name,
		arg.Slug,
		arg.Description,
		arg.Price,
		arg.Variants,
		arg.Modifiers,
		arg.IsAvailable,
	)
	return scanMenuItem(row)
}

const updateMenuItem = `-- name: UpdateMenuItem :one
UPDATE menu_items
SET category_id = $3, name = $4, description = $5, price = $6,
    variants = $7, modifiers = $8, is_available = $9, updated_at = now()
WHERE id = $1 AND restaurant_id = $2 AND is_active = true
RETURNING ` + menuItemColumns

type UpdateMenuItemParams struct {
	ID           uuid.UUID      `json:"id"`
	RestaurantID uuid.UUID      `json:"restaurant_id"`
	CategoryID   uuid.UUID      `json:"category_id"`
	Name         string         `json:"name"`
	Description  pgtype.Text    `json:"description"`
	Price        pgtype.Numeric `json:"price"`
	Variants     []byte         `json:"variants"`
	Modifiers    []byte         `json:"modifiers"`
	IsAvailable  bool           `json:"is_available"`
}

func (q *Queries) UpdateMenuItem(ctx context.Context, arg UpdateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, updateMenuItem,
		arg.ID,
		arg.RestaurantID,
		arg.CategoryID,
		arg.Name,
		arg.Description,
		arg.Price,
		arg.Variants,
		arg.Modifiers,
		arg.IsAvailable,
	)
	return scanMenuItem(row)
}

const softDeleteMenuItem = `-- name: SoftDeleteMenuItem :one
UPDATE menu_items SET is_active = false, updated_at = now()
WHERE id = $1 AND restaurant_id = $2 AND is_active = true
RETURNING id
`

type SoftDeleteMenuItemParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) SoftDeleteMenuItem(ctx context.Context, arg SoftDeleteMenuItemParams) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, softDeleteMenuItem, arg.ID, arg.RestaurantID)
	var id uuid.UUID
	err := row.Scan(&id)
	return id, err
}
