package handler

import (
	"context"
	"encoding/json"
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
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/whataybo/api/internal/database"
	"github.com/whataybo/api/internal/pricing"
	"github.com/whataybo/api/internal/service"
)

const maxImportSize = 5 << 20

var errImportFailed = errors.New("could not save row")

// MenuStore defines the database methods needed by menu item handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type MenuStore interface {
	ListMenuItems(ctx context.Context, arg database.ListMenuItemsParams) ([]database.MenuItem, error)
	GetMenuItem(ctx context.Context, arg database.GetMenuItemParams) (database.MenuItem, error)
	GetCategory(ctx context.Context, arg database.GetCategoryParams) (database.Category, error)
	GetCategoryByName(ctx context.Context, arg database.GetCategoryByNameParams) (database.Category, error)
	ListMenuItemSlugs(ctx context.Context, arg database.ListSlugsParams) ([]string, error)
	CreateMenuItem(ctx context.Context, arg database.CreateMenuItemParams) (database.MenuItem, error)
	UpdateMenuItem(ctx context.Context, arg database.UpdateMenuItemParams) (database.MenuItem, error)
	SoftDeleteMenuItem(ctx context.Context, arg database.SoftDeleteMenuItemParams) (uuid.UUID, error)
}

// MenuHandler handles menu item CRUD and spreadsheet import.
type MenuHandler struct {
	store MenuStore
}

// NewMenuHandler creates a new MenuHandler.
func NewMenuHandler(store MenuStore) *MenuHandler {
	return &MenuHandler{store: store}
}

// RegisterRoutes registers menu item endpoints on the given Chi router.
// Expected to be mounted at /menu/items inside the authenticated API.
func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/import", h.Import)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type menuItemRequest struct {
	CategoryID  string            `json:"category_id" validate:"required,uuid"`
	Name        string            `json:"name" validate:"required,max=150"`
	Description string            `json:"description" validate:"max=1000"`
	Price       string            `json:"price" validate:"required,decimal"`
	Variants    []variantRequest  `json:"variants" validate:"dive"`
	Modifiers   []modifierRequest `json:"modifiers" validate:"dive"`
	IsAvailable *bool             `json:"is_available"`
}

type variantRequest struct {
	Name       string `json:"name" validate:"required"`
	PriceDelta string `json:"price_delta" validate:"required,numeric"`
}

type modifierRequest struct {
	Name  string `json:"name" validate:"required"`
	Price string `json:"price" validate:"required,decimal"`
}

type menuItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	CategoryID  uuid.UUID       `json:"category_id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description *string         `json:"description"`
	Price       string          `json:"price"`
	Variants    json.RawMessage `json:"variants"`
	Modifiers   json.RawMessage `json:"modifiers"`
	IsAvailable bool            `json:"is_available"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toMenuItemResponse(m database.MenuItem) menuItemResponse {
	resp := menuItemResponse{
		ID:          m.ID,
		CategoryID:  m.CategoryID,
		Name:        m.Name,
		Slug:        m.Slug,
		Price:       service.Money(m.Price),
		Variants:    rawList(m.Variants),
		Modifiers:   rawList(m.Modifiers),
		IsAvailable: m.IsAvailable,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.Description.Valid {
		resp.Description = &m.Description.String
	}
	return resp
}

func rawList(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage(`[]`)
	}
	return json.RawMessage(b)
}

type importRowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type importResponse struct {
	Created int              `json:"created"`
	Skipped int              `json:"skipped"`
	Errors  []importRowError `json:"errors"`
}

// --- Handlers ---

// List returns the active menu items of the caller's restaurant, optionally
// filtered by ?category_id=.
func (h *MenuHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	params := database.ListMenuItemsParams{RestaurantID: claims.RestaurantID}
	if v := r.URL.Query().Get("category_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid category_id")
			return
		}
		params.CategoryID = pgtype.UUID{Bytes: id, Valid: true}
	}

	items, err := h.store.ListMenuItems(r.Context(), params)
	if err != nil {
		internalError(w, "list menu items", err)
		return
	}

	resp := make([]menuItemResponse, len(items))
	for i, it := range items {
		resp[i] = toMenuItemResponse(it)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single active menu item.
func (h *MenuHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	id, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid menu item ID")
		return
	}

	item, err := h.store.GetMenuItem(r.Context(), database.GetMenuItemParams{ID: id, RestaurantID: claims.RestaurantID})
	if err != nil || !item.IsActive {
		if err == nil || errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "menu item not found")
			return
		}
		internalError(w, "get menu item", err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemResponse(item))
}

// Create adds a menu item. The slug is generated from the name.
func (h *MenuHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	var req menuItemRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	fields, ok := h.menuItemFields(w, r, claims.RestaurantID, req)
	if !ok {
		return
	}

	var item database.MenuItem
	err := createWithUniqueSlug(r.Context(), h.store.ListMenuItemSlugs, claims.RestaurantID, fields.name, func(s string) error {
		var err error
		item, err = h.store.CreateMenuItem(r.Context(), database.CreateMenuItemParams{
			RestaurantID: claims.RestaurantID,
			CategoryID:   fields.categoryID,
			Name:         fields.name,
			Slug:         s,
			Description:  optionalText(req.Description),
			Price:        service.DecimalToNumeric(fields.price),
			Variants:     fields.variants,
			Modifiers:    fields.modifiers,
			IsAvailable:  fields.available,
		})
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			writeError(w, http.StatusConflict, "a menu item with this slug already exists")
			return
		}
		internalError(w, "create menu item", err)
		return
	}

	writeJSON(w, http.StatusCreated, toMenuItemResponse(item))
}

// Update replaces a menu item's editable fields. The slug is kept stable.
func (h *MenuHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	id, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid menu item ID")
		return
	}

	var req menuItemRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	fields, ok := h.menuItemFields(w, r, claims.RestaurantID, req)
	if !ok {
		return
	}

	item, err := h.store.UpdateMenuItem(r.Context(), database.UpdateMenuItemParams{
		ID:           id,
		RestaurantID: claims.RestaurantID,
		CategoryID:   fields.categoryID,
		Name:         fields.name,
		Description:  optionalText(req.Description),
		Price:        service.DecimalToNumeric(fields.price),
		Variants:     fields.variants,
		Modifiers:    fields.modifiers,
		IsAvailable:  fields.available,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "menu item not found")
			return
		}
		internalError(w, "update menu item", err)
		return
	}

	writeJSON(w, http.StatusOK, toMenuItemResponse(item))
}

// Delete soft-deletes a menu item by setting is_active=false.
func (h *MenuHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	id, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid menu item ID")
		return
	}

	_, err = h.store.SoftDeleteMenuItem(r.Context(), database.SoftDeleteMenuItemParams{ID: id, RestaurantID: claims.RestaurantID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "menu item not found")
			return
		}
		internalError(w, "delete menu item", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Import creates menu items from an uploaded XLSX file (form field "file").
// The first sheet needs a header row with name, category and price columns;
// description is optional. Rows that cannot be imported are skipped and
// reported with their 1-based spreadsheet row number.
func (h *MenuHandler) Import(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "xlsx file is required in form field \"file\"")
		return
	}
	defer file.Close()

	xl, err := excelize.OpenReader(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse xlsx file")
		return
	}
	defer xl.Close()

	rows, err := xl.GetRows(xl.GetSheetName(0))
	if err != nil || len(rows) < 2 {
		writeError(w, http.StatusBadRequest, "spreadsheet must have a header row and at least one data row")
		return
	}

	cols, err := importColumns(rows[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := importResponse{Errors: []importRowError{}}
	categories := map[string]uuid.UUID{}
	for i, row := range rows[1:] {
		rowNum := i + 2
		if isBlankRow(row) {
			continue
		}
		if err := h.importRow(r.Context(), claims.RestaurantID, cols, row, categories); err != nil {
			resp.Skipped++
			resp.Errors = append(resp.Errors, importRowError{Row: rowNum, Reason: err.Error()})
			continue
		}
		resp.Created++
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

type menuItemFields struct {
	categoryID uuid.UUID
	name       string
	price      decimal.Decimal
	variants   []byte
	modifiers  []byte
	available  bool
}

// menuItemFields converts a validated request into column values and checks
// the category belongs to the restaurant. It writes the error response.
func (h *MenuHandler) menuItemFields(w http.ResponseWriter, r *http.Request, restaurantID uuid.UUID, req menuItemRequest) (menuItemFields, bool) {
	f := menuItemFields{
		categoryID: uuid.MustParse(req.CategoryID),
		name:       strings.TrimSpace(req.Name),
		price:      decimal.RequireFromString(req.Price),
		available:  req.IsAvailable == nil || *req.IsAvailable,
	}

	if _, err := h.store.GetCategory(r.Context(), database.GetCategoryParams{ID: f.categoryID, RestaurantID: restaurantID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusBadRequest, "category not found")
			return f, false
		}
		internalError(w, "get category", err)
		return f, false
	}

	variants := make([]pricing.Variant, len(req.Variants))
	for i, v := range req.Variants {
		variants[i] = pricing.Variant{Name: strings.TrimSpace(v.Name), PriceDelta: decimal.RequireFromString(v.PriceDelta)}
	}
	modifiers := make([]pricing.Modifier, len(req.Modifiers))
	for i, m := range req.Modifiers {
		modifiers[i] = pricing.Modifier{Name: strings.TrimSpace(m.Name), Price: decimal.RequireFromString(m.Price)}
	}

	var err error
	if f.variants, err = json.Marshal(variants); err != nil {
		internalError(w, "marshal variants", err)
		return f, false
	}
	if f.modifiers, err = json.Marshal(modifiers); err != nil {
		internalError(w, "marshal modifiers", err)
		return f, false
	}
	return f, true
}

type importCols struct {
	name, category, price, description int
}

func importColumns(header []string) (importCols, error) {
	cols := importCols{name: -1, category: -1, price: -1, description: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name":
			cols.name = i
		case "category":
			cols.category = i
		case "price":
			cols.price = i
		case "description":
			cols.description = i
		}
	}
	if cols.name < 0 || cols.category < 0 || cols.price < 0 {
		return cols, errors.New("header row must contain name, category and price columns")
	}
	return cols, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// importRow creates one menu item. categories caches name lookups for the
// duration of the import.
func (h *MenuHandler) importRow(ctx context.Context, restaurantID uuid.UUID, cols importCols, row []string, categories map[string]uuid.UUID) error {
	name := cell(row, cols.name)
	if name == "" {
		return errors.New("name is required")
	}
	price, err := decimal.NewFromString(cell(row, cols.price))
	if err != nil || price.IsNegative() {
		return fmt.Errorf("invalid price %q", cell(row, cols.price))
	}

	catName := cell(row, cols.category)
	catKey := strings.ToLower(catName)
	catID, ok := categories[catKey]
	if !ok {
		cat, err := h.store.GetCategoryByName(ctx, database.GetCategoryByNameParams{RestaurantID: restaurantID, Name: catName})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("unknown category %q", catName)
			}
			log.Printf("ERROR: import category lookup: %v", err)
			return errImportFailed
		}
		catID = cat.ID
		categories[catKey] = catID
	}

	err = createWithUniqueSlug(ctx, h.store.ListMenuItemSlugs, restaurantID, name, func(s string) error {
		_, err := h.store.CreateMenuItem(ctx, database.CreateMenuItemParams{
			RestaurantID: restaurantID,
			CategoryID:   catID,
			Name:         name,
			Slug:         s,
			Description:  optionalText(cell(row, cols.description)),
			Price:        service.DecimalToNumeric(price),
			Variants:     []byte(`[]`),
			Modifiers:    []byte(`[]`),
			IsAvailable:  true,
		})
		return err
	})
	if err != nil {
		log.Printf("ERROR: import create menu item: %v", err)
		return errImportFailed
	}
	return nil
}
