package handler_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/whataybo/api/internal/database"
	"github.com/whataybo/api/internal/enum"
	"github.com/whataybo/api/internal/handler"
	"github.com/whataybo/api/internal/middleware"
)

// --- Mock store ---

type mockCategoryStore struct {
	categories map[uuid.UUID]database.Category // keyed by category ID
	// race runs before each insert, standing in for a concurrent create.
	race func(arg database.CreateCategoryParams)
}

func newMockCategoryStore() *mockCategoryStore {
	return &mockCategoryStore{categories: make(map[uuid.UUID]database.Category)}
}

func (m *mockCategoryStore) ListCategoriesByRestaurant(_ context.Context, restaurantID uuid.UUID) ([]database.Category, error) {
	result := []database.Category{}
	for _, c := range m.categories {
		if c.RestaurantID == restaurantID && c.IsActive {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *mockCategoryStore) ListCategorySlugs(_ context.Context, arg database.ListSlugsParams) ([]string, error) {
	var result []string
	for _, c := range m.categories {
		if c.RestaurantID != arg.RestaurantID {
			continue
		}
		if c.Slug == arg.Base || strings.HasPrefix(c.Slug, arg.Base+"-") {
			result = append(result, c.Slug)
		}
	}
	return result, nil
}

func (m *mockCategoryStore) CreateCategory(_ context.Context, arg database.CreateCategoryParams) (database.Category, error) {
	if m.race != nil {
		m.race(arg)
	}
	for _, c := range m.categories {
		if c.RestaurantID == arg.RestaurantID && c.Slug == arg.Slug {
			return database.Category{}, &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
		}
	}
	c := database.Category{
		ID:           uuid.New(),
		RestaurantID: arg.RestaurantID,
		Name:         arg.Name,
		Slug:         arg.Slug,
		Description:  arg.Description,
		SortOrder:    arg.SortOrder,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	m.categories[c.ID] = c
	return c, nil
}

func (m *mockCategoryStore) UpdateCategory(_ context.Context, arg database.UpdateCategoryParams) (database.Category, error) {
	c, ok := m.categories[arg.ID]
	if !ok || c.RestaurantID != arg.RestaurantID || !c.IsActive {
		return database.Category{}, pgx.ErrNoRows
	}
	c.Name = arg.Name
	c.Description = arg.Description
	c.SortOrder = arg.SortOrder
	m.categories[c.ID] = c
	return c, nil
}

func (m *mockCategoryStore) SoftDeleteCategory(_ context.Context, arg database.SoftDeleteCategoryParams) (uuid.UUID, error) {
	c, ok := m.categories[arg.ID]
	if !ok || c.RestaurantID != arg.RestaurantID || !c.IsActive {
		return uuid.Nil, pgx.ErrNoRows
	}
	c.IsActive = false
	m.categories[c.ID] = c
	return c.ID, nil
}

// --- Helpers ---

func newCategoryRouter(store *mockCategoryStore) *chi.Mux {
	h := handler.NewCategoryHandler(store)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testSecret))
		r.Route("/categories", h.RegisterRoutes)
	})
	return r
}

// --- Tests ---

func TestCategoryCreate_SlugDisambiguated(t *testing.T) {
	store := newMockCategoryStore()
	restaurantID := uuid.New()
	router := newCategoryRouter(store)
	claims := testClaims(restaurantID, enum.UserRoleManager)

	want := []string{"main-dishes", "main-dishes-2", "main-dishes-3"}
	for i, w := range want {
		rr := doAuthRequest(t, router, "POST", "/categories", map[string]interface{}{
			"name":       "Main Dishes",
			"sort_order": i,
		}, claims)
		if rr.Code != http.StatusCreated {
			t.Fatalf("create %d: status %d; body: %s", i, rr.Code, rr.Body.String())
		}
		resp := decodeResponse(t, rr)
		if resp["slug"] != w {
			t.Errorf("create %d: slug got %v, want %s", i, resp["slug"], w)
		}
	}

	// Another restaurant starts from the plain slug.
	rr := doAuthRequest(t, router, "POST", "/categories", map[string]interface{}{"name": "Main Dishes"},
		testClaims(uuid.New(), enum.UserRoleOwner))
	if resp := decodeResponse(t, rr); resp["slug"] != "main-dishes" {
		t.Errorf("other restaurant slug: got %v, want main-dishes", resp["slug"])
	}
}

func TestCategoryCreate_RetriesSlugTakenConcurrently(t *testing.T) {
	store := newMockCategoryStore()
	restaurantID := uuid.New()
	router := newCategoryRouter(store)

	raced := false
	store.race = func(arg database.CreateCategoryParams) {
		if raced {
			return
		}
		raced = true
		id := uuid.New()
		store.categories[id] = database.Category{
			ID: id, RestaurantID: arg.RestaurantID, Name: arg.Name, Slug: arg.Slug, IsActive: true,
		}
	}

	rr := doAuthRequest(t, router, "POST", "/categories", map[string]interface{}{"name": "Drinks"},
		testClaims(restaurantID, enum.UserRoleOwner))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if resp := decodeResponse(t, rr); resp["slug"] != "drinks-2" {
		t.Errorf("slug: got %v, want drinks-2", resp["slug"])
	}
}

func TestCategoryCreate_ConflictAfterRetries(t *testing.T) {
	store := newMockCategoryStore()
	router := newCategoryRouter(store)

	attempts := 0
	store.race = func(arg database.CreateCategoryParams) {
		attempts++
		id := uuid.New()
		store.categories[id] = database.Category{
			ID: id, RestaurantID: arg.RestaurantID, Name: arg.Name, Slug: arg.Slug, IsActive: true,
		}
	}

	rr := doAuthRequest(t, router, "POST", "/categories", map[string]interface{}{"name": "Drinks"},
		testClaims(uuid.New(), enum.UserRoleOwner))
	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
	if attempts != 3 {
		t.Errorf("create attempts: got %d, want 3", attempts)
	}
}

func TestCategoryCreate_Validation(t *testing.T) {
	router := newCategoryRouter(newMockCategoryStore())
	claims := testClaims(uuid.New(), enum.UserRoleOwner)

	rr := doAuthRequest(t, router, "POST", "/categories", map[string]interface{}{
		"sort_order": -1,
	}, claims)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	fields := detailFields(decodeResponse(t, rr))
	for _, f := range []string{"name", "sort_order"} {
		if !containsString(fields, f) {
			t.Errorf("details: missing %q in %v", f, fields)
		}
	}
}

func TestCategoryList_OnlyActiveOwnRestaurant(t *testing.T) {
	store := newMockCategoryStore()
	restaurantID := uuid.New()
	router := newCategoryRouter(store)
	claims := testClaims(restaurantID, enum.UserRoleStaff)

	for _, name := range []string{"Starters", "Desserts"} {
		doAuthRequest(t, router, "POST", "/categories", map[string]string{"name": name}, claims)
	}
	doAuthRequest(t, router, "POST", "/categories", map[string]string{"name": "Foreign"},
		testClaims(uuid.New(), enum.UserRoleStaff))

	rr := doAuthRequest(t, router, "GET", "/categories", nil, claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if list := decodeList(t, rr); len(list) != 2 {
		t.Errorf("categories: got %d, want 2", len(list))
	}
}

func TestCategoryUpdate_KeepsSlug(t *testing.T) {
	store := newMockCategoryStore()
	restaurantID := uuid.New()
	router := newCategoryRouter(store)
	claims := testClaims(restaurantID, enum.UserRoleOwner)

	rr := doAuthRequest(t, router, "POST", "/categories", map[string]string{"name": "Drinks"}, claims)
	id := decodeResponse(t, rr)["id"].(string)

	rr = doAuthRequest(t, router, "PUT", "/categories/"+id, map[string]interface{}{
		"name":        "Cold Drinks",
		"description": "Juices and sodas",
	}, claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["name"] != "Cold Drinks" || resp["slug"] != "drinks" {
		t.Errorf("got name=%v slug=%v, want Cold Drinks / drinks", resp["name"], resp["slug"])
	}
	if resp["description"] != "Juices and sodas" {
		t.Errorf("description: got %v", resp["description"])
	}

	rr = doAuthRequest(t, router, "PUT", "/categories/"+id, map[string]string{"name": "X"},
		testClaims(uuid.New(), enum.UserRoleOwner))
	if rr.Code != http.StatusNotFound {
		t.Errorf("cross-restaurant update: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestCategoryDelete(t *testing.T) {
	store := newMockCategoryStore()
	restaurantID := uuid.New()
	router := newCategoryRouter(store)
	claims := testClaims(restaurantID, enum.UserRoleOwner)

	rr := doAuthRequest(t, router, "POST", "/categories", map[string]string{"name": "Seasonal"}, claims)
	id := decodeResponse(t, rr)["id"].(string)

	rr = doAuthRequest(t, router, "DELETE", "/categories/"+id, nil, claims)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	rr = doAuthRequest(t, router, "DELETE", "/categories/"+id, nil, claims)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want %d", rr.Code, http.StatusNotFound)
	}
	rr = doAuthRequest(t, router, "DELETE", "/categories/nope", nil, claims)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCategoryRoutes_RequireToken(t *testing.T) {
	router := newCategoryRouter(newMockCategoryStore())
	rr := postJSON(t, router, "/categories", map[string]string{"name": "Anon"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
