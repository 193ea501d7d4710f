package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const categoryColumns = `id, restaurant_id, name, slug, description, sort_order, is_active, created_at`

func scanCategory(row scanner) (Category, error) {
	var i Category
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Name,
		&i.Slug,
		&i.Description,
		&i.SortOrder,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

const listCategoriesByRestaurant = `-- name: ListCategoriesByRestaurant :many
SELECT ` + categoryColumns + ` FROM categories
WHERE restaurant_id = $1 AND is_active = true
ORDER BY sort_order, name
`

func (q *Queries) ListCategoriesByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]Category, error) {
	rows, err := q.db.Query(ctx, listCategoriesByRestaurant, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Category{}
	for rows.Next() {
		i, err := scanCategory(rows)
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

const getCategory = `-- name: GetCategory :one
SELECT ` + categoryColumns + ` FROM categories
WHERE id = $1 AND restaurant_id = $2 AND is_active = true
`

type GetCategoryParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) GetCategory(ctx context.Context, arg GetCategoryParams) (Category, error) {
	row := q.db.QueryRow(ctx, getCategory, arg.ID, arg.RestaurantID)
	return scanCategory(row)
}

const getCategoryByName = `-- name: GetCategoryByName :one
SELECT ` + categoryColumns + ` FROM categories
WHERE restaurant_id = $1 AND lower(name) = lower($2) AND is_active = true
LIMIT 1
`

type GetCategoryByNameParams struct {
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Name         string    `json:"name"`
}

func (q *Queries) GetCategoryByName(ctx context.Context, arg GetCategoryByNameParams) (Category, error) {
	row := q.db.QueryRow(ctx, getCategoryByName, arg.RestaurantID, arg.Name)
	return scanCategory(row)
}

const listCategorySlugs = `-- name: ListCategorySlugs :many
SELECT slug FROM categories
WHERE restaurant_id = $1 AND (slug = $2 OR slug LIKE $2 || '-%')
`

type ListSlugsParams struct {
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Base         string    `json:"base"`
}

func (q *Queries) ListCategorySlugs(ctx context.Context, arg ListSlugsParams) ([]string, error) {
	return q.listSlugs(ctx, listCategorySlugs, arg)
}

func (q *Queries) listSlugs(ctx context.Context, query string, arg ListSlugsParams) ([]string, error) {
	rows, err := q.db.Query(ctx, query, arg.RestaurantID, arg.Base)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []string{}
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		items = append(items, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createCategory = `-- name: CreateCategory :one
INSERT INTO categories (restaurant_id, name, slug, description, sort_order)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + categoryColumns

type CreateCategoryParams struct {
	RestaurantID uuid.UUID   `json:"restaurant_id"`
	Name         string      `json:"name"`
	Slug         string      `json:"slug"`
	Description  pgtype.Text `json:"description"`
	SortOrder    int32       `json:"sort_order"`
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	row := q.db.QueryRow(ctx, createCategory,
		arg.RestaurantID,
		arg.Name,
		arg.Slug,
		arg.Description,
		arg.SortOrder,
	)
	return scanCategory(row)
}

const updateCategory = `-- name: UpdateCategory :one
UPDATE categories SET name = $1, description = $2, sort_order = $3
WHERE id = $4 AND restaurant_id = $5 AND is_active = true
RETURNING ` + categoryColumns

type UpdateCategoryParams struct {
	Name         string      `json:"name"`
	Description  pgtype.Text `json:"description"`
	SortOrder    int32       `json:"sort_order"`
	ID           uuid.UUID   `json:"id"`
	RestaurantID uuid.UUID   `json:"restaurant_id"`
}

func (q *Queries) UpdateCategory(ctx context.Context, arg UpdateCategoryParams) (Category, error) {
	row := q.db.QueryRow(ctx, updateCategory,
		arg.Name,
		arg.Description,
		arg.SortOrder,
		arg.ID,
		arg.RestaurantID,
	)
	return scanCategory(row)
}

const softDeleteCategory = `-- name: SoftDeleteCategory :one
UPDATE categories SET is_active = false
WHERE id = $1 AND restaurant_id = $2 AND is_active = true
RETURNING id
`

type SoftDeleteCategoryParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) SoftDeleteCategory(ctx context.Context, arg SoftDeleteCategoryParams) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, softDeleteCategory, arg.ID, arg.RestaurantID)
	var id uuid.UUID
	err := row.Scan(&id)
	return id, err
}
