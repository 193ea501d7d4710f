package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/whataybo/api/internal/database"
	"github.com/whataybo/api/internal/pricing"
	"github.com/whataybo/api/internal/service"
)

// OrderCreator defines the service method needed by the storefront.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
}

// PublicStore defines the database methods needed by the storefront read.
// Satisfied by *database.Queries.
type PublicStore interface {
	GetRestaurantBySlug(ctx context.Context, slug string) (database.Restaurant, error)
	ListCategoriesByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]database.Category, error)
	ListAvailableMenuItems(ctx context.Context, restaurantID uuid.UUID) ([]database.MenuItem, error)
}

// PublicHandler serves the unauthenticated storefront endpoints.
type PublicHandler struct {
	store      PublicStore
	orders     OrderCreator
	apiEnabled bool
}

// NewPublicHandler creates a new PublicHandler. apiEnabled is echoed to
// clients so they know whether to open the wa.me link themselves.
func NewPublicHandler(store PublicStore, orders OrderCreator, apiEnabled bool) *PublicHandler {
	return &PublicHandler{store: store, orders: orders, apiEnabled: apiEnabled}
}

// RegisterRoutes registers storefront endpoints. limit wraps order creation
// and may be nil.
func (h *PublicHandler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Get("/restaurants/{slug}", h.Storefront)
	if limit != nil {
		r.With(limit).Post("/restaurants/{slug}/orders", h.CreateOrder)
		return
	}
	r.Post("/restaurants/{slug}/orders", h.CreateOrder)
}

// --- Request / Response types ---

type publicOrderRequest struct {
	Items           []publicOrderItemRequest `json:"items" validate:"required,min=1,dive"`
	CustomerName    string                   `json:"customer_name" validate:"required"`
	CustomerPhone   string                   `json:"customer_phone" validate:"required"`
	CustomerEmail   string                   `json:"customer_email" validate:"omitempty,email"`
	DeliveryType    string                   `json:"delivery_type" validate:"required,oneof=DELIVERY PICKUP DINE_IN"`
	DeliveryZone    string                   `json:"delivery_zone"`
	DeliveryAddress string                   `json:"delivery_address" validate:"required_if=DeliveryType DELIVERY"`
	Notes           string                   `json:"notes"`
	PaymentMethod   string                   `json:"payment_method"`
	ScheduledTime   string                   `json:"scheduled_time" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type publicOrderItemRequest struct {
	MenuItemID string `json:"menu_item_id" validate:"required,uuid"`
	Quantity   int32  `json:"quantity" validate:"gt=0"`
	// Accepted for compatibility with older clients; prices are always
	// computed from the menu.
	UnitPrice     json.RawMessage       `json:"unit_price,omitempty"`
	Customization *customizationRequest `json:"customization"`
}

type customizationRequest struct {
	Variant   string   `json:"variant"`
	Modifiers []string `json:"modifiers"`
	Notes     string   `json:"notes"`
}

type createOrderResponse struct {
	Success    bool                     `json:"success"`
	Order      createdOrderResponse     `json:"order"`
	Restaurant createdRestaurantSummary `json:"restaurant"`
	WhatsApp   whatsAppResponse         `json:"whatsapp"`
}

type createdOrderResponse struct {
	ID          uuid.UUID `json:"id"`
	OrderNumber string    `json:"order_number"`
	Total       string    `json:"total"`
	Status      string    `json:"status"`
}

type createdRestaurantSummary struct {
	Name           string  `json:"name"`
	WhatsappNumber *string `json:"whatsapp_number"`
}

type whatsAppResponse struct {
	WaMeURL    *string `json:"wa_me_url"`
	APIEnabled bool    `json:"api_enabled"`
}

type storefrontResponse struct {
	Restaurant restaurantResponse   `json:"restaurant"`
	Categories []storefrontCategory `json:"categories"`
}

type storefrontCategory struct {
	categoryResponse
	Items []menuItemResponse `json:"items"`
}

// --- Handlers ---

// Storefront returns the restaurant, its delivery zones and the orderable
// menu grouped by category.
func (h *PublicHandler) Storefront(w http.ResponseWriter, r *http.Request) {
	restaurant, err := h.store.GetRestaurantBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "restaurant not found")
			return
		}
		internalError(w, "storefront restaurant", err)
		return
	}

	categories, err := h.store.ListCategoriesByRestaurant(r.Context(), restaurant.ID)
	if err != nil {
		internalError(w, "storefront categories", err)
		return
	}
	items, err := h.store.ListAvailableMenuItems(r.Context(), restaurant.ID)
	if err != nil {
		internalError(w, "storefront items", err)
		return
	}

	byCategory := make(map[uuid.UUID][]menuItemResponse, len(categories))
	for _, it := range items {
		byCategory[it.CategoryID] = append(byCategory[it.CategoryID], toMenuItemResponse(it))
	}
	resp := storefrontResponse{
		Restaurant: toRestaurantResponse(restaurant),
		Categories: make([]storefrontCategory, 0, len(categories)),
	}
	for _, c := range categories {
		catItems := byCategory[c.ID]
		if len(catItems) == 0 {
			continue
		}
		resp.Categories = append(resp.Categories, storefrontCategory{
			categoryResponse: toCategoryResponse(c),
			Items:            catItems,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateOrder places a customer order from the storefront.
func (h *PublicHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req publicOrderRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	svcReq := service.CreateOrderRequest{
		Slug:            chi.URLParam(r, "slug"),
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerEmail:   req.CustomerEmail,
		DeliveryType:    req.DeliveryType,
		DeliveryZone:    req.DeliveryZone,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
		PaymentMethod:   req.PaymentMethod,
		ScheduledTime:   req.ScheduledTime,
		Items:           make([]service.CreateOrderItemRequest, len(req.Items)),
	}
	for i, it := range req.Items {
		item := service.CreateOrderItemRequest{MenuItemID: it.MenuItemID, Quantity: it.Quantity}
		if c := it.Customization; c != nil {
			item.Customization = pricing.Customization{Variant: c.Variant, Modifiers: c.Modifiers, Notes: c.Notes}
		}
		svcReq.Items[i] = item
	}

	result, err := h.orders.CreateOrder(r.Context(), svcReq)
	if err != nil {
		h.writeCreateError(w, err)
		return
	}

	resp := createOrderResponse{
		Success: true,
		Order: createdOrderResponse{
			ID:          result.Order.ID,
			OrderNumber: result.Order.OrderNumber,
			Total:       service.Money(result.Order.Total),
			Status:      string(result.Order.Status),
		},
		Restaurant: createdRestaurantSummary{Name: result.Restaurant.Name},
		WhatsApp:   whatsAppResponse{APIEnabled: h.apiEnabled},
	}
	// Restaurants without a WhatsApp number get a null deep link.
	if result.WhatsAppURL != "" {
		u := result.WhatsAppURL
		resp.WhatsApp.WaMeURL = &u
	}
	if result.Restaurant.WhatsappNumber.Valid {
		n := result.Restaurant.WhatsappNumber.String
		resp.Restaurant.WhatsappNumber = &n
	}
	writeJSON(w, http.StatusCreated, resp)
}

// writeCreateError maps service errors to HTTP statuses.
func (h *PublicHandler) writeCreateError(w http.ResponseWriter, err error) {
	var itemErr *service.ItemError
	switch {
	case errors.Is(err, service.ErrRestaurantNotFound):
		writeError(w, http.StatusNotFound, "restaurant not found")
	case errors.Is(err, service.ErrRestaurantBusy):
		writeError(w, http.StatusServiceUnavailable, "restaurant is not accepting orders right now")
	case errors.As(err, &itemErr):
		writeError(w, http.StatusBadRequest, itemErr.Error())
	case isOrderValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		internalError(w, "create order", err)
	}
}

func isOrderValidationError(err error) bool {
	for _, target := range []error{
		service.ErrEmptyItems,
		service.ErrInvalidQuantity,
		service.ErrInvalidDeliveryType,
		service.ErrCustomerNameRequired,
		service.ErrCustomerPhoneRequired,
		service.ErrInvalidEmail,
		service.ErrDeliveryAddressRequired,
		service.ErrInvalidScheduledTime,
		service.ErrInvalidMenuItemID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
