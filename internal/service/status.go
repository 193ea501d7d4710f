package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/whataybo/api/internal/database"
	"github.com/whataybo/api/internal/ordertext"
	"github.com/whataybo/api/internal/realtime"
	"github.com/whataybo/api/internal/whatsapp"
)

// Errors returned by the status service.
var (
	ErrOrderNotFound              = errors.New("order not found")
	ErrInvalidStatus              = errors.New("invalid status")
	ErrSameStatus                 = errors.New("order already has this status")
	ErrInvalidTransition          = errors.New("invalid status transition")
	ErrStatusConflict             = errors.New("order status changed, please retry")
	ErrCancellationReasonRequired = errors.New("cancellation_reason is required")
	ErrCannotCancel               = errors.New("order can no longer be cancelled")
	ErrAssigneeNotFound           = errors.New("assignee not found")
	ErrAssigneeForbidden          = errors.New("assignee belongs to another restaurant")
)

// pipeline is the forward order of non-cancelled states.
var pipeline = []database.OrderStatus{
	database.OrderStatusPENDING,
	database.OrderStatusCONFIRMED,
	database.OrderStatusPREPARING,
	database.OrderStatusREADY,
	database.OrderStatusOUTFORDELIVERY,
	database.OrderStatusDELIVERED,
	database.OrderStatusCOMPLETED,
}

func pipelineIndex(s database.OrderStatus) int {
	for i, p := range pipeline {
		if p == s {
			return i
		}
	}
	return -1
}

func ParseOrderStatus(s string) (database.OrderStatus, error) {
	status := database.OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if status == database.OrderStatusCANCELLED || pipelineIndex(status) >= 0 {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// IsTerminal reports whether no further transition is allowed.
func IsTerminal(s database.OrderStatus) bool {
	return s == database.OrderStatusCOMPLETED || s == database.OrderStatusCANCELLED
}

// CanTransition allows a non-terminal order to move forward to any later
// pipeline state, or to CANCELLED.
func CanTransition(from, to database.OrderStatus) error {
	if from == to {
		return ErrSameStatus
	}
	if IsTerminal(from) {
		return fmt.Errorf("%w: %s is final", ErrInvalidTransition, from)
	}
	if to == database.OrderStatusCANCELLED {
		return nil
	}
	fi, ti := pipelineIndex(from), pipelineIndex(to)
	if fi < 0 || ti < 0 {
		return ErrInvalidStatus
	}
	if ti < fi {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// StatusStore defines the DB methods needed for staff order updates.
// Satisfied by *database.Queries.
type StatusStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	AssignOrder(ctx context.Context, arg database.AssignOrderParams) (database.Order, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
	GetCustomer(ctx context.Context, arg database.GetCustomerParams) (database.Customer, error)
	GetRestaurantByID(ctx context.Context, id uuid.UUID) (database.Restaurant, error)
}

// StatusService moves orders through their lifecycle.
type StatusService struct {
	store    StatusStore
	events   realtime.Publisher
	notifier whatsapp.Notifier
	opts     Options
}

func NewStatusService(store StatusStore, events realtime.Publisher, notifier whatsapp.Notifier, opts Options) *StatusService {
	return &StatusService{store: store, events: events, notifier: notifier, opts: opts.withDefaults()}
}

// StatusChange is the outcome of UpdateStatus or Cancel.
type StatusChange struct {
	Order     database.Order
	OldStatus database.OrderStatus
}

// UpdateStatus applies a staff status change. COMPLETED stamps completed_at;
// CANCELLED stamps cancelled_at and needs a reason.
func (s *StatusService) UpdateStatus(ctx context.Context, restaurantID, orderID uuid.UUID, status, reason string) (*StatusChange, error) {
	to, err := ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if to == database.OrderStatusCANCELLED && reason == "" {
		return nil, ErrCancellationReasonRequired
	}

	current, err := s.getOrder(ctx, restaurantID, orderID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(current.Status, to); err != nil {
		return nil, err
	}

	change, err := s.transition(ctx, current, to, reason)
	if err != nil {
		return nil, err
	}

	realtime.Emit(s.events, realtime.EventOrderStatusChanged, map[string]interface{}{
		"order_id":   change.Order.ID,
		"old_status": change.OldStatus,
		"new_status": change.Order.Status,
		"order":      NewOrderView(change.Order, nil),
	}, realtime.RestaurantRoom(restaurantID))
	s.emitUpdated(change.Order)
	s.notifyStatus(ctx, change.Order)
	return change, nil
}

// Cancel cancels an order that is neither CANCELLED nor COMPLETED.
func (s *StatusService) Cancel(ctx context.Context, restaurantID, orderID uuid.UUID, reason string) (*StatusChange, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrCancellationReasonRequired
	}
	current, err := s.getOrder(ctx, restaurantID, orderID)
	if err != nil {
		return nil, err
	}
	if IsTerminal(current.Status) {
		return nil, fmt.Errorf("%w: order is %s", ErrCannotCancel, current.Status)
	}

	change, err := s.transition(ctx, current, database.OrderStatusCANCELLED, reason)
	if err != nil {
		return nil, err
	}

	realtime.Emit(s.events, realtime.EventOrderCancelled, map[string]interface{}{
		"order_id":            change.Order.ID,
		"old_status":          change.OldStatus,
		"cancellation_reason": reason,
		"order":               NewOrderView(change.Order, nil),
	}, realtime.RestaurantRoom(restaurantID))
	s.emitUpdated(change.Order)
	s.notifyStatus(ctx, change.Order)
	return change, nil
}

// Assign sets or clears (assignee == nil) the staff member handling an
// order. The assignee must belong to the same restaurant.
func (s *StatusService) Assign(ctx context.Context, restaurantID, orderID uuid.UUID, assignee *uuid.UUID) (database.Order, error) {
	if _, err := s.getOrder(ctx, restaurantID, orderID); err != nil {
		return database.Order{}, err
	}

	params := database.AssignOrderParams{ID: orderID, RestaurantID: restaurantID}
	if assignee != nil {
		user, err := s.store.GetUserByID(ctx, *assignee)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return database.Order{}, ErrAssigneeNotFound
			}
			return database.Order{}, fmt.Errorf("get assignee: %w", err)
		}
		if user.RestaurantID != restaurantID {
			return database.Order{}, ErrAssigneeForbidden
		}
		params.AssignedToID = pgtype.UUID{Bytes: user.ID, Valid: true}
		params.AssignedAt = stamp(s.opts.Now())
	}

	order, err := s.store.AssignOrder(ctx, params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("assign order: %w", err)
	}

	var assignedTo interface{}
	if assignee != nil {
		assignedTo = *assignee
	}
	realtime.Emit(s.events, realtime.EventOrderAssigned, map[string]interface{}{
		"order_id":       order.ID,
		"assigned_to_id": assignedTo,
		"order":          NewOrderView(order, nil),
	}, realtime.RestaurantRoom(restaurantID))
	s.emitUpdated(order)
	return order, nil
}

func (s *StatusService) getOrder(ctx context.Context, restaurantID, orderID uuid.UUID) (database.Order, error) {
	order, err := s.store.GetOrder(ctx, database.GetOrderParams{ID: orderID, RestaurantID: restaurantID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// transition performs the guarded write: it only applies while the row still
// holds current.Status.
func (s *StatusService) transition(ctx context.Context, current database.Order, to database.OrderStatus, reason string) (*StatusChange, error) {
	params := database.UpdateOrderStatusParams{
		ID:           current.ID,
		RestaurantID: current.RestaurantID,
		Status:       to,
		PrevStatus:   current.Status,
	}
	now := stamp(s.opts.Now())
	switch to {
	case database.OrderStatusCOMPLETED:
		params.CompletedAt = now
	case database.OrderStatusCANCELLED:
		params.CancelledAt = now
		params.CancellationReason = optText(reason)
	}

	order, err := s.store.UpdateOrderStatus(ctx, params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatusConflict
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}
	return &StatusChange{Order: order, OldStatus: current.Status}, nil
}

func (s *StatusService) emitUpdated(order database.Order) {
	realtime.Emit(s.events, realtime.EventOrderUpdated, NewOrderView(order, nil), realtime.OrderRoom(order.ID))
}

// notifyStatus tells the customer about the new status. Lookups and sending
// are best-effort.
func (s *StatusService) notifyStatus(ctx context.Context, order database.Order) {
	if _, ok := whatsapp.TemplateForStatus(string(order.Status)); !ok {
		return
	}
	s.opts.Dispatcher.Go(ctx, "status "+string(order.Status)+" "+order.OrderNumber, func(ctx context.Context) error {
		customer, err := s.store.GetCustomer(ctx, database.GetCustomerParams{ID: order.CustomerID, RestaurantID: order.RestaurantID})
		if err != nil {
			return fmt.Errorf("get customer: %w", err)
		}
		restaurant, err := s.store.GetRestaurantByID(ctx, order.RestaurantID)
		if err != nil {
			return fmt.Errorf("get restaurant: %w", err)
		}
		return s.notifier.OrderStatusChanged(ctx, whatsapp.OrderNotice{
			RestaurantName: restaurant.Name,
			OrderNumber:    order.OrderNumber,
			CustomerName:   customer.Name,
			CustomerPhone:  customer.Phone,
			Status:         string(order.Status),
			Total:          ordertext.FormatMoney(NumericToDecimal(order.Total), restaurant.Currency),
			Reason:         order.CancellationReason.String,
		})
	})
}
