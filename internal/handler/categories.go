package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/whataybo/api/internal/database"
	"github.com/whataybo/api/internal/slug"
)

// CategoryStore defines the database methods needed by category handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type CategoryStore interface {
	ListCategoriesByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]database.Category, error)
	ListCategorySlugs(ctx context.Context, arg database.ListSlugsParams) ([]string, error)
	CreateCategory(ctx context.Context, arg database.CreateCategoryParams) (database.Category, error)
	UpdateCategory(ctx context.Context, arg database.UpdateCategoryParams) (database.Category, error)
	SoftDeleteCategory(ctx context.Context, arg database.SoftDeleteCategoryParams) (uuid.UUID, error)
}

// CategoryHandler handles category CRUD endpoints.
type CategoryHandler struct {
	store CategoryStore
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(store CategoryStore) *CategoryHandler {
	return &CategoryHandler{store: store}
}

// RegisterRoutes registers category CRUD endpoints on the given Chi router.
// Expected to be mounted at /categories inside the authenticated API.
func (h *CategoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type categoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	SortOrder   int32  `json:"sort_order" validate:"gte=0"`
}

type categoryResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description"`
	SortOrder   int32     `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
}

func toCategoryResponse(c database.Category) categoryResponse {
	resp := categoryResponse{
		ID:        c.ID,
		Name:      c.Name,
		Slug:      c.Slug,
		SortOrder: c.SortOrder,
		CreatedAt: c.CreatedAt,
	}
	if c.Description.Valid {
		resp.Description = &c.Description.String
	}
	return resp
}

// --- Handlers ---

// List returns all active categories of the caller's restaurant.
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	categories, err := h.store.ListCategoriesByRestaurant(r.Context(), claims.RestaurantID)
	if err != nil {
		internalError(w, "list categories", err)
		return
	}

	resp := make([]categoryResponse, len(categories))
	for i, c := range categories {
		resp[i] = toCategoryResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create adds a category with a slug unique within the restaurant.
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	var req categoryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)

	var category database.Category
	err := createWithUniqueSlug(r.Context(), h.store.ListCategorySlugs, claims.RestaurantID, name, func(s string) error {
		var err error
		category, err = h.store.CreateCategory(r.Context(), database.CreateCategoryParams{
			RestaurantID: claims.RestaurantID,
			Name:         name,
			Slug:         s,
			Description:  optionalText(req.Description),
			SortOrder:    req.SortOrder,
		})
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			writeError(w, http.StatusConflict, "a category with this name already exists")
			return
		}
		internalError(w, "create category", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCategoryResponse(category))
}

// Update modifies an existing category. The slug is kept stable.
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	catID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category ID")
		return
	}

	var req categoryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	category, err := h.store.UpdateCategory(r.Context(), database.UpdateCategoryParams{
		Name:         strings.TrimSpace(req.Name),
		Description:  optionalText(req.Description),
		SortOrder:    req.SortOrder,
		ID:           catID,
		RestaurantID: claims.RestaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		internalError(w, "update category", err)
		return
	}

	writeJSON(w, http.StatusOK, toCategoryResponse(category))
}

// Delete soft-deletes a category by setting is_active=false.
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	catID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category ID")
		return
	}

	_, err = h.store.SoftDeleteCategory(r.Context(), database.SoftDeleteCategoryParams{
		ID:           catID,
		RestaurantID: claims.RestaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		internalError(w, "delete category", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

type slugLister func(ctx context.Context, arg database.ListSlugsParams) ([]string, error)

// uniqueSlug derives a slug from name and suffixes it (-2, -3, ...) past any
// the restaurant already uses.
func uniqueSlug(ctx context.Context, list slugLister, restaurantID uuid.UUID, name string) (string, error) {
	base := slug.Make(name)
	taken, err := list(ctx, database.ListSlugsParams{RestaurantID: restaurantID, Base: base})
	if err != nil {
		return "", err
	}
	return slug.Unique(base, taken), nil
}

// slugAttempts bounds how often a create re-derives its slug after losing a
// race with a concurrent create of the same name.
const slugAttempts = 3

// createWithUniqueSlug calls create with a fresh unique slug, retrying on a
// unique violation. The last violation is returned once attempts run out.
func createWithUniqueSlug(ctx context.Context, list slugLister, restaurantID uuid.UUID, name string, create func(slug string) error) error {
	var err error
	for attempt := 1; attempt <= slugAttempts; attempt++ {
		var s string
		s, err = uniqueSlug(ctx, list, restaurantID, name)
		if err != nil {
			return fmt.Errorf("list slugs: %w", err)
		}
		err = create(s)
		if !isUniqueViolation(err) {
			return err
		}
		log.Printf("WARN: slug %q taken concurrently (attempt %d/%d)", s, attempt, slugAttempts)
	}
	return err
}

func optionalText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
