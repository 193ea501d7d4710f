package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xuri/excelize/v2"

	"github.com/whataybo/api/internal/auth"
	"github.com/whataybo/api/internal/database"
	"github.com/whataybo/api/internal/enum"
	"github.com/whataybo/api/internal/handler"
	"github.com/whataybo/api/internal/middleware"
	"github.com/whataybo/api/internal/service"
)

// --- Mock store ---

type mockMenuStore struct {
	categories map[uuid.UUID]database.Category
	items      map[uuid.UUID]database.MenuItem
	createErr  error
	// race runs before each insert, standing in for a concurrent create.
	race func(arg database.CreateMenuItemParams)
}

func newMockMenuStore() *mockMenuStore {
	return &mockMenuStore{
		categories: make(map[uuid.UUID]database.Category),
		items:      make(map[uuid.UUID]database.MenuItem),
	}
}

func (m *mockMenuStore) addCategory(restaurantID uuid.UUID, name string) database.Category {
	c := database.Category{ID: uuid.New(), RestaurantID: restaurantID, Name: name, IsActive: true}
	m.categories[c.ID] = c
	return c
}

func (m *mockMenuStore) ListMenuItems(_ context.Context, arg database.ListMenuItemsParams) ([]database.MenuItem, error) {
	result := []database.MenuItem{}
	for _, it := range m.items {
		if it.RestaurantID != arg.RestaurantID || !it.IsActive {
			continue
		}
		if arg.CategoryID.Valid && it.CategoryID != uuid.UUID(arg.CategoryID.Bytes) {
			continue
		}
		result = append(result, it)
	}
	return result, nil
}

func (m *mockMenuStore) GetMenuItem(_ context.Context, arg database.GetMenuItemParams) (database.MenuItem, error) {
	it, ok := m.items[arg.ID]
	if !ok || it.RestaurantID != arg.RestaurantID {
		return database.MenuItem{}, pgx.ErrNoRows
	}
	return it, nil
}

func (m *mockMenuStore) GetCategory(_ context.Context, arg database.GetCategoryParams) (database.Category, error) {
	c, ok := m.categories[arg.ID]
	if !ok || c.RestaurantID != arg.RestaurantID || !c.IsActive {
		return database.Category{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *mockMenuStore) GetCategoryByName(_ context.Context, arg database.GetCategoryByNameParams) (database.Category, error) {
	for _, c := range m.categories {
		if c.RestaurantID == arg.RestaurantID && c.IsActive && strings.EqualFold(c.Name, arg.Name) {
			return c, nil
		}
	}
	return database.Category{}, pgx.ErrNoRows
}

func (m *mockMenuStore) ListMenuItemSlugs(_ context.Context, arg database.ListSlugsParams) ([]string, error) {
	var result []string
	for _, it := range m.items {
		if it.RestaurantID == arg.RestaurantID && (it.Slug == arg.Base || strings.HasPrefix(it.Slug, arg.Base+"-")) {
			result = append(result, it.Slug)
		}
	}
	return result, nil
}

func (m *mockMenuStore) CreateMenuItem(_ context.Context, arg database.CreateMenuItemParams) (database.MenuItem, error) {
	if m.createErr != nil {
		return database.MenuItem{}, m.createErr
	}
	if m.race != nil {
		m.race(arg)
	}
	for _, it := range m.items {
		if it.RestaurantID == arg.RestaurantID && it.Slug == arg.Slug {
			return database.MenuItem{}, &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
		}
	}
	now := time.Now()
	it := database.MenuItem{
		ID:           uuid.New(),
		RestaurantID: arg.RestaurantID,
		CategoryID:   arg.CategoryID,
		Name:         arg.Name,
		Slug:         arg.Slug,
		Description:  arg.Description,
		Price:        arg.Price,
		Variants:     arg.Variants,
		Modifiers:    arg.Modifiers,
		IsAvailable:  arg.IsAvailable,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.items[it.ID] = it
	return it, nil
}

func (m *mockMenuStore) UpdateMenuItem(_ context.Context, arg database.UpdateMenuItemParams) (database.MenuItem, error) {
	it, ok := m.items[arg.ID]
	if !ok || it.RestaurantID != arg.RestaurantID || !it.IsActive {
		return database.MenuItem{}, pgx.ErrNoRows
	}
	it.CategoryID = arg.CategoryID
	it.Name = arg.Name
	it.Description = arg.Description
	it.Price = arg.Price
	it.Variants = arg.Variants
	it.Modifiers = arg.Modifiers
	it.IsAvailable = arg.IsAvailable
	m.items[it.ID] = it
	return it, nil
}

func (m *mockMenuStore) SoftDeleteMenuItem(_ context.Context, arg database.SoftDeleteMenuItemParams) (uuid.UUID, error) {
	it, ok := m.items[arg.ID]
	if !ok || it.RestaurantID != arg.RestaurantID || !it.IsActive {
		return uuid.Nil, pgx.ErrNoRows
	}
	it.IsActive = false
	m.items[it.ID] = it
	return it.ID, nil
}

// --- Helpers ---

func newMenuRouter(store *mockMenuStore) *chi.Mux {
	h := handler.NewMenuHandler(store)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testSecret))
		r.Route("/menu/items", h.RegisterRoutes)
	})
	return r
}

func koshariBody(categoryID uuid.UUID) map[string]interface{} {
	return map[string]interface{}{
		"category_id": categoryID.String(),
		"name":        "Koshari",
		"description": "Rice, lentils and pasta",
		"price":       "45",
		"variants":    []map[string]string{{"name": "Large", "price_delta": "15"}},
		"modifiers":   []map[string]string{{"name": "Extra sauce", "price": "5"}},
	}
}

// buildSheet writes rows into the first sheet of a new workbook.
func buildSheet(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cellRef, &row); err != nil {
			t.Fatalf("set row %d: %v", i+1, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func uploadSheet(t *testing.T, router http.Handler, path string, data []byte, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "menu.xlsx")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	token, err := auth.GenerateToken(testSecret, claims.UserID, claims.RestaurantID, claims.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// --- CRUD tests ---

func TestMenuCreate_Valid(t *testing.T) {
	store := newMockMenuStore()
	restaurantID := uuid.New()
	cat := store.addCategory(restaurantID, "Mains")
	router := newMenuRouter(store)

	rr := doAuthRequest(t, router, "POST", "/menu/items", koshariBody(cat.ID), testClaims(restaurantID, enum.UserRoleManager))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["slug"] != "koshari" {
		t.Errorf("slug: got %v, want koshari", resp["slug"])
	}
	if resp["price"] != "45.00" {
		t.Errorf("price: got %v, want 45.00", resp["price"])
	}
	if resp["is_available"] != true {
		t.Errorf("is_available: got %v, want true by default", resp["is_available"])
	}
	variants, _ := resp["variants"].([]interface{})
	if len(variants) != 1 {
		t.Fatalf("variants: got %v", resp["variants"])
	}
	if v := variants[0].(map[string]interface{}); v["name"] != "Large" {
		t.Errorf("variant name: got %v", v["name"])
	}
}

func TestMenuCreate_DuplicateNameGetsSuffix(t *testing.T) {
	store := newMockMenuStore()
	restaurantID := uuid.New()
	cat := store.addCategory(restaurantID, "Mains")
	router := newMenuRouter(store)
	claims := testClaims(restaurantID, enum.UserRoleOwner)

	doAuthRequest(t, router, "POST", "/menu/items", koshariBody(cat.ID), claims)
	rr := doAuthRequest(t, router, "POST", "/menu/items", koshariBody(cat.ID), claims)
	if resp := decodeResponse(t, rr); resp["slug"] != "koshari-2" {
		t.Errorf("slug: got %v, want koshari-2", resp["slug"])
	}
}

func TestMenuCreate_RetriesSlugTakenConcurrently(t *testing.T) {
	store := newMockMenuStore()
	restaurantID := uuid.New()
	cat := store.addCategory(restaurantID, "Mains")
	router := newMenuRouter(store)

	raced := false
	store.race = func(arg database.CreateMenuItemParams) {
		if raced {
			return
		}
		raced = true
		id := uuid.New()
		store.items[id] = database.MenuItem{
			ID: id, RestaurantID: arg.RestaurantID, CategoryID: arg.CategoryID, Name: arg.Name, Slug: arg.Slug, IsActive: true,
		}
	}

	rr := doAuthRequest(t, router, "POST", "/menu/items", koshariBody(cat.ID), testClaims(restaurantID, enum.UserRoleOwner))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if resp := decodeResponse(t, rr); resp["slug"] != "koshari-2" {
		t.Errorf("slug: got %v, want koshari-2", resp["slug"])
	}
}

func TestMenuCreate_Validation(t *testing.T) {
	store := newMockMenuStore()
	restaurantID := uuid.New()
	cat := store.addCategory(restaurantID, "Mains")
	router := newMenuRouter(store)
	claims := testClaims(restaurantID, enum.UserRoleOwner)

	tests := []struct {
		name  string
		edit  func(b map[string]interface{})
		field string
	}{
		{"missing name", func(b map[string]interface{}) { delete(b, "name") }, "name"},
		{"negative price", func(b map[string]interface{}) { b["price"] = "-1" }, "price"},
		{"non numeric price", func(b map[string]interface{}) { b["price"] = "abc" }, "price"},
		{"bad category id", func(b map[string]interface{}) { b["category_id"] = "nope" }, "category_id"},
		{"variant without name", func(b map[string]interface{}) {
			b["variants"] = []map[string]string{{"price_delta": "3"}}
		}, "variants[0].name"},
		{"negative modifier", func(b map[string]interface{}) {
			b["modifiers"] = []map[string]string{{"name": "Cheese", "price": "-2"}}
		}, "modifiers[0].price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := koshariBody(cat.ID)
			tt.edit(body)
			rr := doAuthRequest(t, router, "POST", "/menu/items", body, claims)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
			if fields := detailFields(decodeResponse(t, rr)); !containsString(fields, tt.field) {
				t.Errorf("details: got %v, want %q", fields, tt.field)
			}
		})
	}
	if len(store.items) != 0 {
		t.Errorf("items created on invalid input: %d", len(store.items))
	}
}

func TestMenuCreate_ForeignCategory(t *testing.T) {
	store := newMockMenuStore()
	restaurantID := uuid.New()
	foreign := store.addCategory(uuid.New(), "Elsewhere")
	router := newMenuRouter(store)

	rr := doAuthRequest(t, router, "POST", "/menu/items", koshariBody(foreign.ID), testClaims(restaurantID, enum.UserRoleOwner))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeResponse(t, rr); resp["error"] != "category not found" {
		t.Errorf("error: got %v", resp["error"])
	}
}

func TestMenuGetUpdateDelete(t *testing.T) {
	store := newMockMenuStore()
	restaurantID := uuid.New()
	cat := store.addCategory(restaurantID, "Mains")
	router := newMenuRouter(store)
	claims := testClaims(restaurantID, enum.UserRoleOwner)

	rr := doAuthRequest(t, router, "POST", "/menu/items", koshariBody(cat.ID), claims)
	id := decodeResponse(t, rr)["id"].(string)

	body := koshariBody(cat.ID)
	body["price"] = "50.5"
	body["is_available"] = false
	rr = doAuthRequest(t, router, "PUT", "/menu/items/"+id, body, claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["price"] != "50.50" || resp["is_available"] != false {
		t.Errorf("update: got price=%v available=%v", resp["price"], resp["is_available"])
	}

	rr = doAuthRequest(t, router, "GET", "/menu/items/"+id, nil, claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: got %d", rr.Code)
	}

	rr = doAuthRequest(t, router, "DELETE", "/menu/items/"+id, nil, claims)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d", rr.Code)
	}

	rr = doAuthRequest(t, router, "GET", "/menu/items/"+id, nil, claims)
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d, want %d", rr.Code, http.StatusNotFound)
	}
	rr = doAuthRequest(t, router, "GET", "/menu/items", nil, claims)
	if list := decodeList(t, rr); len(list) != 0 {
		t.Errorf("list after delete: got %d items", len(list))
	}
}

func TestMenuList_CategoryFilter(t *testing.T) {
	store := newMockMenuStore()
	restaurantID := uuid.New()
	mains := store.addCategory(restaurantID, "Mains")
	drinks := store.addCategory(restaurantID, "Drinks")
	router := newMenuRouter(store)
	claims := testClaims(restaurantID, enum.UserRoleStaff)

	doAuthRequest(t, router, "POST", "/menu/items", koshariBody(mains.ID), claims)
	drink := koshariBody(drinks.ID)
	drink["name"] = "Karkade"
	doAuthRequest(t, router, "POST", "/menu/items", drink, claims)

	rr := doAuthRequest(t, router, "GET", "/menu/items?category_id="+drinks.ID.String(), nil, claims)
	list := decodeList(t, rr)
	if len(list) != 1 || list[0].(map[string]interface{})["name"] != "Karkade" {
		t.Errorf("filtered list: got %v", list)
	}

	rr = doAuthRequest(t, router, "GET", "/menu/items?category_id=bad", nil, claims)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad filter: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- Import tests ---

func TestMenuImport(t *testing.T) {
	store := newMockMenuStore()
	restaurantID := uuid.New()
	store.addCategory(restaurantID, "Mains")
	router := newMenuRouter(store)

	data := buildSheet(t, [][]interface{}{
		{"Name", "Category", "Price", "Description"},
		{"Koshari", "mains", "45", "House special"},
		{"Fattah", "Mains", "60.5", ""},
		{},
		{"Ghost", "Desserts", "20", ""},
		{"Free lunch", "Mains", "free", ""},
		{"", "Mains", "10", ""},
	})

	rr := uploadSheet(t, router, "/menu/items/import", data, testClaims(restaurantID, enum.UserRoleManager))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Created int `json:"created"`
		Skipped int `json:"skipped"`
		Errors  []struct {
			Row    int    `json:"row"`
			Reason string `json:"reason"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Created != 2 || resp.Skipped != 3 {
		t.Fatalf("created/skipped: got %d/%d, want 2/3 (%+v)", resp.Created, resp.Skipped, resp.Errors)
	}
	wantRows := []int{5, 6, 7}
	for i, e := range resp.Errors {
		if e.Row != wantRows[i] {
			t.Errorf("error %d: row %d, want %d", i, e.Row, wantRows[i])
		}
	}
	if !strings.Contains(resp.Errors[0].Reason, "Desserts") {
		t.Errorf("unknown category reason: %q", resp.Errors[0].Reason)
	}

	var fattah *database.MenuItem
	for _, it := range store.items {
		if it.Name == "Fattah" {
			it := it
			fattah = &it
		}
	}
	if fattah == nil {
		t.Fatal("Fattah not created")
	}
	if got := service.Money(fattah.Price); got != "60.50" {
		t.Errorf("Fattah price: got %s, want 60.50", got)
	}
	if fattah.Description.Valid {
		t.Errorf("empty description stored as %q", fattah.Description.String)
	}
}

func TestMenuImport_BadHeader(t *testing.T) {
	store := newMockMenuStore()
	restaurantID := uuid.New()
	router := newMenuRouter(store)

	data := buildSheet(t, [][]interface{}{
		{"Item", "Cost"},
		{"Koshari", "45"},
	})
	rr := uploadSheet(t, router, "/menu/items/import", data, testClaims(restaurantID, enum.UserRoleOwner))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestMenuImport_NotASpreadsheet(t *testing.T) {
	router := newMenuRouter(newMockMenuStore())
	rr := uploadSheet(t, router, "/menu/items/import", []byte("name,category,price"), testClaims(uuid.New(), enum.UserRoleOwner))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestMenuImport_StoreFailureHidden(t *testing.T) {
	store := newMockMenuStore()
	restaurantID := uuid.New()
	store.addCategory(restaurantID, "Mains")
	store.createErr = &dbDownErr{}
	router := newMenuRouter(store)

	data := buildSheet(t, [][]interface{}{
		{"name", "category", "price"},
		{"Koshari", "Mains", "45"},
	})
	rr := uploadSheet(t, router, "/menu/items/import", data, testClaims(restaurantID, enum.UserRoleOwner))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "connection reset") {
		t.Errorf("database error leaked to client: %s", rr.Body.String())
	}
}

type dbDownErr struct{}

func (*dbDownErr) Error() string { return "connection reset by peer" }
