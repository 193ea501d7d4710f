package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/xeipuuv/gojsonschema"

	"github.com/whataybo/api/internal/database"
	"github.com/whataybo/api/internal/realtime"
	"github.com/whataybo/api/internal/service"
)

const deliveryZonesSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name", "fee"],
    "additionalProperties": false,
    "properties": {
      "name":   {"type": "string", "minLength": 1, "pattern": "\\S"},
      "fee":    {"type": "number", "minimum": 0},
      "radius": {"type": "number", "minimum": 0}
    }
  }
}`

var deliveryZonesLoader = gojsonschema.NewStringLoader(deliveryZonesSchema)

// RestaurantStore defines the database methods needed by restaurant settings.
// Satisfied by *database.Queries.
type RestaurantStore interface {
	GetRestaurantByID(ctx context.Context, id uuid.UUID) (database.Restaurant, error)
	SetRestaurantBusy(ctx context.Context, arg database.SetRestaurantBusyParams) (database.Restaurant, error)
	UpdateRestaurantDeliveryZones(ctx context.Context, arg database.UpdateRestaurantDeliveryZonesParams) (database.Restaurant, error)
}

// RestaurantHandler serves the caller's restaurant settings.
type RestaurantHandler struct {
	store  RestaurantStore
	events realtime.Publisher
}

func NewRestaurantHandler(store RestaurantStore, events realtime.Publisher) *RestaurantHandler {
	return &RestaurantHandler{store: store, events: events}
}

// RegisterRoutes registers settings endpoints. manage gates the write
// endpoints (owner/manager only) and may be nil.
func (h *RestaurantHandler) RegisterRoutes(r chi.Router, manage func(http.Handler) http.Handler) {
	r.Get("/", h.Get)
	w := r
	if manage != nil {
		w = r.With(manage)
	}
	w.Patch("/busy", h.SetBusy)
	w.Put("/delivery-zones", h.UpdateDeliveryZones)
}

// --- Request / Response types ---

type busyRequest struct {
	IsBusy *bool `json:"is_busy" validate:"required"`
}

type restaurantResponse struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	Slug               string          `json:"slug"`
	WhatsappNumber     *string         `json:"whatsapp_number"`
	Currency           string          `json:"currency"`
	DeliveryZones      json.RawMessage `json:"delivery_zones"`
	DefaultDeliveryFee *string         `json:"default_delivery_fee"`
	IsBusy             bool            `json:"is_busy"`
}

func toRestaurantResponse(r database.Restaurant) restaurantResponse {
	resp := restaurantResponse{
		ID:            r.ID,
		Name:          r.Name,
		Slug:          r.Slug,
		Currency:      r.Currency,
		DeliveryZones: rawList(r.DeliveryZones),
		IsBusy:        r.IsBusy,
	}
	if r.WhatsappNumber.Valid {
		resp.WhatsappNumber = &r.WhatsappNumber.String
	}
	if r.DefaultDeliveryFee.Valid {
		fee := service.Money(r.DefaultDeliveryFee)
		resp.DefaultDeliveryFee = &fee
	}
	return resp
}

// --- Handlers ---

func (h *RestaurantHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	restaurant, err := h.store.GetRestaurantByID(r.Context(), claims.RestaurantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "restaurant not found")
			return
		}
		internalError(w, "get restaurant", err)
		return
	}
	writeJSON(w, http.StatusOK, toRestaurantResponse(restaurant))
}

// SetBusy toggles whether the storefront accepts orders.
func (h *RestaurantHandler) SetBusy(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	var req busyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	restaurant, err := h.store.SetRestaurantBusy(r.Context(), database.SetRestaurantBusyParams{
		ID:     claims.RestaurantID,
		IsBusy: *req.IsBusy,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "restaurant not found")
			return
		}
		internalError(w, "set restaurant busy", err)
		return
	}

	h.respondUpdated(w, restaurant)
}

// UpdateDeliveryZones replaces the zone list after schema validation.
func (h *RestaurantHandler) UpdateDeliveryZones(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if details, err := validateDeliveryZones(body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Details: details})
		return
	}

	restaurant, err := h.store.UpdateRestaurantDeliveryZones(r.Context(), database.UpdateRestaurantDeliveryZonesParams{
		ID:            claims.RestaurantID,
		DeliveryZones: body,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "restaurant not found")
			return
		}
		internalError(w, "update delivery zones", err)
		return
	}

	h.respondUpdated(w, restaurant)
}

func (h *RestaurantHandler) respondUpdated(w http.ResponseWriter, restaurant database.Restaurant) {
	resp := toRestaurantResponse(restaurant)
	realtime.Emit(h.events, realtime.EventRestaurantUpdated, resp, realtime.RestaurantRoom(restaurant.ID))
	writeJSON(w, http.StatusOK, resp)
}

// validateDeliveryZones checks body against the zone schema and rejects
// duplicate names (case-insensitive, trimmed).
func validateDeliveryZones(body []byte) ([]fieldError, error) {
	result, err := gojsonschema.Validate(deliveryZonesLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, errors.New("invalid request body")
	}
	if !result.Valid() {
		details := make([]fieldError, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, fieldError{Field: e.Field(), Message: e.Description()})
		}
		return details, errors.New("invalid delivery zones")
	}

	var zones []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &zones); err != nil {
		return nil, errors.New("invalid request body")
	}
	seen := make(map[string]bool, len(zones))
	for i, z := range zones {
		key := strings.ToLower(strings.TrimSpace(z.Name))
		if seen[key] {
			return []fieldError{{Field: strconv.Itoa(i) + ".name", Message: "duplicate zone name"}}, errors.New("invalid delivery zones")
		}
		seen[key] = true
	}
	return nil, nil
}
