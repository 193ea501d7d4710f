package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/whataybo/api/internal/database"
	"github.com/whataybo/api/internal/enum"
	"github.com/whataybo/api/internal/service"
)

// StatusUpdater defines the service methods needed by order write handlers.
// Satisfied by *service.StatusService; narrow interface for testability.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, restaurantID, orderID uuid.UUID, status, reason string) (*service.StatusChange, error)
	Cancel(ctx context.Context, restaurantID, orderID uuid.UUID, reason string) (*service.StatusChange, error)
	Assign(ctx context.Context, restaurantID, orderID uuid.UUID, assignee *uuid.UUID) (database.Order, error)
}

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// OrderHandler handles staff order endpoints.
type OrderHandler struct {
	svc   StatusUpdater
	store OrderStore
	loc   *time.Location
}

// NewOrderHandler creates a new OrderHandler. loc is used to interpret
// start_date/end_date filters.
func NewOrderHandler(svc StatusUpdater, store OrderStore, loc *time.Location) *OrderHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &OrderHandler{svc: svc, store: store, loc: loc}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted at /orders inside the authenticated API.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.UpdateStatus)
	r.Put("/{id}/assign", h.Assign)
	r.Patch("/{id}/cancel", h.Cancel)
}

// --- Request / Response types ---

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []service.OrderView `json:"orders"`
	Limit  int32               `json:"limit"`
	Offset int32               `json:"offset"`
}

// orderDetailResponse always carries items, even when empty.
type orderDetailResponse struct {
	service.OrderView
	Items []service.OrderItemView `json:"items"`
}

type updateStatusRequest struct {
	Status             string `json:"status" validate:"required,oneof=PENDING CONFIRMED PREPARING READY OUT_FOR_DELIVERY DELIVERED COMPLETED CANCELLED"`
	CancellationReason string `json:"cancellation_reason" validate:"required_if=Status CANCELLED"`
}

type cancelRequest struct {
	CancellationReason string `json:"cancellation_reason" validate:"required"`
}

// assignRequest uses a pointer so an explicit null unassigns.
type assignRequest struct {
	AssignedToID *string `json:"assigned_to_id" validate:"omitempty,uuid"`
}

// --- Handlers ---

// List handles GET /orders with status, delivery_type, start_date and
// end_date (YYYY-MM-DD, inclusive) filters.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := database.ListOrdersParams{
		RestaurantID: claims.RestaurantID,
		Limit:        limit,
		Offset:       offset,
	}

	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		status, err := service.ParseOrderStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		params.Status = pgtype.Text{String: string(status), Valid: true}
	}
	if s := q.Get("delivery_type"); s != "" {
		switch s {
		case enum.DeliveryTypeDelivery, enum.DeliveryTypePickup, enum.DeliveryTypeDineIn:
			params.DeliveryType = pgtype.Text{String: s, Valid: true}
		default:
			writeError(w, http.StatusBadRequest, "invalid delivery_type")
			return
		}
	}
	if s := q.Get("start_date"); s != "" {
		t, err := time.ParseInLocation("2006-01-02", s, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_date format, use YYYY-MM-DD")
			return
		}
		params.StartDate = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := q.Get("end_date"); s != "" {
		t, err := time.ParseInLocation("2006-01-02", s, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_date format, use YYYY-MM-DD")
			return
		}
		params.EndDate = pgtype.Timestamptz{Time: t.AddDate(0, 0, 1), Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		internalError(w, "list orders", err)
		return
	}

	resp := make([]service.OrderView, len(orders))
	for i, o := range orders {
		resp[i] = service.NewOrderView(o, nil)
	}
	writeJSON(w, http.StatusOK, orderListResponse{Orders: resp, Limit: limit, Offset: offset})
}

// Get handles GET /orders/{id} and includes the order's items.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	orderID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: orderID, RestaurantID: claims.RestaurantID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		internalError(w, "get order", err)
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), order.ID)
	if err != nil {
		internalError(w, "list order items", err)
		return
	}

	view := service.NewOrderView(order, items)
	resp := orderDetailResponse{OrderView: view, Items: view.Items}
	if resp.Items == nil {
		resp.Items = []service.OrderItemView{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus handles PUT /orders/{id}.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	orderID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var req updateStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	change, err := h.svc.UpdateStatus(r.Context(), claims.RestaurantID, orderID, req.Status, req.CancellationReason)
	if err != nil {
		writeStatusError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewOrderView(change.Order, nil))
}

// Cancel handles PATCH /orders/{id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	orderID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var req cancelRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	change, err := h.svc.Cancel(r.Context(), claims.RestaurantID, orderID, req.CancellationReason)
	if err != nil {
		writeStatusError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewOrderView(change.Order, nil))
}

// Assign handles PUT /orders/{id}/assign. A null assigned_to_id unassigns.
func (h *OrderHandler) Assign(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	orderID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var req assignRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	var assignee *uuid.UUID
	if req.AssignedToID != nil && *req.AssignedToID != "" {
		id := uuid.MustParse(*req.AssignedToID)
		assignee = &id
	}

	order, err := h.svc.Assign(r.Context(), claims.RestaurantID, orderID, assignee)
	if err != nil {
		writeStatusError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewOrderView(order, nil))
}

// writeStatusError maps status service errors to HTTP statuses.
func writeStatusError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, service.ErrStatusConflict):
		writeError(w, http.StatusConflict, service.ErrStatusConflict.Error())
	case errors.Is(err, service.ErrAssigneeForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrAssigneeNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrSameStatus),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrCancellationReasonRequired),
		errors.Is(err, service.ErrCannotCancel):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		internalError(w, "update order", err)
	}
}
