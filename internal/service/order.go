package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/whataybo/api/internal/database"
	"github.com/whataybo/api/internal/enum"
	"github.com/whataybo/api/internal/ordertext"
	"github.com/whataybo/api/internal/pricing"
	"github.com/whataybo/api/internal/realtime"
	"github.com/whataybo/api/internal/whatsapp"
)

const (
	maxOrderNumberRetries = 3
	orderNumberConstraint = "orders_restaurant_id_order_number_key"
)

// Errors returned by the order service.
var (
	ErrRestaurantNotFound      = errors.New("restaurant not found")
	ErrRestaurantBusy          = errors.New("restaurant is not accepting orders right now")
	ErrEmptyItems              = errors.New("items are required")
	ErrInvalidQuantity         = errors.New("quantity must be > 0")
	ErrInvalidDeliveryType     = errors.New("invalid delivery_type")
	ErrCustomerNameRequired    = errors.New("customer_name is required")
	ErrCustomerPhoneRequired   = errors.New("customer_phone is required")
	ErrInvalidEmail            = errors.New("invalid customer_email")
	ErrDeliveryAddressRequired = errors.New("delivery_address is required for DELIVERY orders")
	ErrInvalidScheduledTime    = errors.New("invalid scheduled_time")
	ErrInvalidMenuItemID       = errors.New("invalid menu_item_id")

	ErrMenuItemNotFound    = errors.New("menu item not found")
	ErrMenuItemForeign     = errors.New("menu item does not belong to this restaurant")
	ErrMenuItemUnavailable = errors.New("menu item is not available")
)

// ItemError reports a problem with one cart line. Err is one of the
// ErrMenuItem* sentinels or a pricing error.
type ItemError struct {
	Index      int
	MenuItemID uuid.UUID
	Name       string
	Err        error
}

func (e *ItemError) Error() string {
	switch {
	case errors.Is(e.Err, ErrMenuItemForeign):
		return fmt.Sprintf("menu item %s does not belong to this restaurant", e.MenuItemID)
	case errors.Is(e.Err, ErrMenuItemNotFound):
		return fmt.Sprintf("menu item not found: %s", e.MenuItemID)
	case errors.Is(e.Err, ErrMenuItemUnavailable):
		return fmt.Sprintf("menu item %q is not available", e.Name)
	default:
		return fmt.Sprintf("item[%d] %q: %v", e.Index, e.Name, e.Err)
	}
}

func (e *ItemError) Unwrap() error { return e.Err }

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to create orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetRestaurantBySlug(ctx context.Context, slug string) (database.Restaurant, error)
	UpsertCustomer(ctx context.Context, arg database.UpsertCustomerParams) (database.Customer, error)
	GetMenuItem(ctx context.Context, arg database.GetMenuItemParams) (database.MenuItem, error)
	GetMenuItemRestaurant(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	NextOrderNumber(ctx context.Context, arg database.NextOrderNumberParams) (int32, error)
	SyncOrderCounter(ctx context.Context, arg database.SyncOrderCounterParams) error
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	UpsertInboundConversation(ctx context.Context, arg database.UpsertInboundConversationParams) (database.Conversation, error)
	CreateMessage(ctx context.Context, arg database.CreateMessageParams) (database.Message, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// CreateOrderRequest is the public storefront checkout.
type CreateOrderRequest struct {
	Slug            string
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	DeliveryType    string
	DeliveryZone    string
	DeliveryAddress string
	Notes           string
	PaymentMethod   string
	ScheduledTime   string // RFC3339
	Items           []CreateOrderItemRequest
}

// CreateOrderItemRequest is one cart line. Any client-side price is ignored.
type CreateOrderItemRequest struct {
	MenuItemID    string
	Quantity      int32
	Customization pricing.Customization
}

// CreateOrderResult is everything written by a successful checkout.
type CreateOrderResult struct {
	Order        database.Order
	Items        []database.OrderItem
	Restaurant   database.Restaurant
	Customer     database.Customer
	Conversation database.Conversation
	Message      database.Message
	Summary      ordertext.Summary
	WhatsAppURL  string
}

// Options tunes an OrderService.
type Options struct {
	// Location stamps the date part of order numbers.
	Location *time.Location
	// DefaultDeliveryFee applies when neither a zone nor the restaurant
	// default matches.
	DefaultDeliveryFee decimal.Decimal
	NotifyTimeout      time.Duration
	// Dispatcher runs customer notifications in the background. Built from
	// NotifyTimeout when nil.
	Dispatcher *whatsapp.Dispatcher
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = 10 * time.Second
	}
	if o.Dispatcher == nil {
		o.Dispatcher = whatsapp.NewDispatcher(o.NotifyTimeout)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// OrderService handles storefront checkout.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
	events   realtime.Publisher
	notifier whatsapp.Notifier
	opts     Options
}

func NewOrderService(pool TxBeginner, newStore NewOrderStore, events realtime.Publisher, notifier whatsapp.Notifier, opts Options) *OrderService {
	return &OrderService{
		pool:     pool,
		newStore: newStore,
		events:   events,
		notifier: notifier,
		opts:     opts.withDefaults(),
	}
}

// validatedOrder is a CreateOrderRequest after request-level checks.
type validatedOrder struct {
	req           CreateOrderRequest
	deliveryType  database.DeliveryType
	scheduledTime pgtype.Timestamptz
	menuItemIDs   []uuid.UUID
}

// pricedLine is a cart line resolved against the menu.
type pricedLine struct {
	summary ordertext.Line
	insert  database.CreateOrderItemParams
}

// CreateOrder validates the cart, prices it server-side and writes the
// customer, order, items, conversation and inbound message in one
// transaction. An order_number unique violation means the day's counter fell
// behind the orders table; the counter is resynced in its own transaction
// and the checkout retried, up to maxOrderNumberRetries attempts. Realtime
// events are published and the WhatsApp confirmation dispatched after
// commit; neither can fail the call.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	v, err := validateCreateOrder(req)
	if err != nil {
		return nil, err
	}

	var result *CreateOrderResult
	for attempt := 1; ; attempt++ {
		result, err = s.createOrderTx(ctx, v)
		var conflict *orderNumberConflict
		if err == nil || !errors.As(err, &conflict) || attempt == maxOrderNumberRetries {
			break
		}
		log.Printf("WARN: order number %s taken, resyncing counter", conflict.number)
		if err := s.syncOrderCounter(ctx, conflict); err != nil {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	s.afterCreate(ctx, result)
	return result, nil
}

// orderNumberConflict reports that the claimed order number already exists.
type orderNumberConflict struct {
	restaurantID uuid.UUID
	day          orderDay
	number       string
	err          error
}

func (e *orderNumberConflict) Error() string { return e.err.Error() }
func (e *orderNumberConflict) Unwrap() error { return e.err }

// syncOrderCounter moves the day's counter past every number already used,
// committing on its own so the next attempt sees it.
func (s *OrderService) syncOrderCounter(ctx context.Context, c *orderNumberConflict) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin counter sync: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = s.newStore(tx).SyncOrderCounter(ctx, database.SyncOrderCounterParams{
		RestaurantID: c.restaurantID,
		Day:          c.day.date,
		Pattern:      c.day.prefix() + "%",
	})
	if err != nil {
		return fmt.Errorf("sync order counter: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit counter sync: %w", err)
	}
	return nil
}

func validateCreateOrder(req CreateOrderRequest) (*validatedOrder, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.DeliveryZone = strings.TrimSpace(req.DeliveryZone)
	req.DeliveryAddress = strings.TrimSpace(req.DeliveryAddress)

	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if req.CustomerName == "" {
		return nil, ErrCustomerNameRequired
	}
	if req.CustomerPhone == "" {
		return nil, ErrCustomerPhoneRequired
	}
	if req.CustomerEmail != "" {
		if _, err := mail.ParseAddress(req.CustomerEmail); err != nil {
			return nil, ErrInvalidEmail
		}
	}

	v := &validatedOrder{req: req}
	switch req.DeliveryType {
	case enum.DeliveryTypeDelivery, enum.DeliveryTypePickup, enum.DeliveryTypeDineIn:
		v.deliveryType = database.DeliveryType(req.DeliveryType)
	default:
		return nil, ErrInvalidDeliveryType
	}
	if v.deliveryType == database.DeliveryTypeDELIVERY && req.DeliveryAddress == "" {
		return nil, ErrDeliveryAddressRequired
	}
	if req.ScheduledTime != "" {
		t, err := time.Parse(time.RFC3339, req.ScheduledTime)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidScheduledTime, err)
		}
		v.scheduledTime = stamp(t)
	}

	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		id, err := uuid.Parse(item.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidMenuItemID)
		}
		v.menuItemIDs = append(v.menuItemIDs, id)
	}
	return v, nil
}

// isOrderNumberConflict checks if the error is a unique constraint violation
// on the order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == orderNumberConstraint
	}
	return false
}

// createOrderTx executes the full checkout in a single transaction.
func (s *OrderService) createOrderTx(ctx context.Context, v *validatedOrder) (*CreateOrderResult, error) {
	req := v.req

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Restaurant ---
	restaurant, err := store.GetRestaurantBySlug(ctx, req.Slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRestaurantNotFound
		}
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	if restaurant.IsBusy {
		return nil, ErrRestaurantBusy
	}

	// --- Resolve and price each line ---
	subtotal := decimal.Zero
	lines := make([]pricedLine, 0, len(req.Items))
	for i, item := range req.Items {
		line, err := s.priceLine(ctx, store, restaurant.ID, i, v.menuItemIDs[i], item)
		if err != nil {
			return nil, err
		}
		subtotal = subtotal.Add(line.summary.Subtotal)
		lines = append(lines, line)
	}

	// --- Delivery fee and totals ---
	zones, err := pricing.ParseZones(restaurant.DeliveryZones)
	if err != nil {
		return nil, fmt.Errorf("restaurant %s: %w", restaurant.ID, err)
	}
	fallback := s.opts.DefaultDeliveryFee
	if restaurant.DefaultDeliveryFee.Valid {
		fallback = NumericToDecimal(restaurant.DefaultDeliveryFee)
	}
	fee := pricing.DeliveryFee(string(v.deliveryType), req.DeliveryZone, zones, fallback)
	totals := pricing.ComputeTotals(subtotal, fee)

	// --- Customer (last write wins on name/email) ---
	customer, err := store.UpsertCustomer(ctx, database.UpsertCustomerParams{
		RestaurantID: restaurant.ID,
		Phone:        req.CustomerPhone,
		Name:         req.CustomerName,
		Email:        optText(req.CustomerEmail),
	})
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}

	// --- Order number ---
	day := s.today()
	orderNumber, err := s.nextOrderNumber(ctx, store, restaurant.ID, day)
	if err != nil {
		return nil, err
	}

	// --- Insert order ---
	deliveryZone := pgtype.Text{}
	deliveryAddress := pgtype.Text{}
	if v.deliveryType == database.DeliveryTypeDELIVERY {
		deliveryZone = optText(req.DeliveryZone)
		deliveryAddress = optText(req.DeliveryAddress)
	}
	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		RestaurantID:    restaurant.ID,
		OrderNumber:     orderNumber,
		CustomerID:      customer.ID,
		DeliveryType:    v.deliveryType,
		DeliveryZone:    deliveryZone,
		DeliveryAddress: deliveryAddress,
		Notes:           optText(strings.TrimSpace(req.Notes)),
		PaymentMethod:   optText(req.PaymentMethod),
		ScheduledTime:   v.scheduledTime,
		Subtotal:        DecimalToNumeric(totals.Subtotal),
		DeliveryFee:     DecimalToNumeric(totals.DeliveryFee),
		Discount:        DecimalToNumeric(totals.Discount),
		Tax:             DecimalToNumeric(totals.Tax),
		Total:           DecimalToNumeric(totals.Total),
	})
	if err != nil {
		err = fmt.Errorf("create order: %w", err)
		if isOrderNumberConflict(err) {
			return nil, &orderNumberConflict{restaurantID: restaurant.ID, day: day, number: orderNumber, err: err}
		}
		return nil, err
	}

	// --- Insert items ---
	items := make([]database.OrderItem, 0, len(lines))
	summaryLines := make([]ordertext.Line, 0, len(lines))
	for _, l := range lines {
		l.insert.OrderID = order.ID
		item, err := store.CreateOrderItem(ctx, l.insert)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
		summaryLines = append(summaryLines, l.summary)
	}

	summary := ordertext.Summary{
		OrderNumber:     order.OrderNumber,
		RestaurantName:  restaurant.Name,
		CustomerName:    customer.Name,
		CustomerPhone:   customer.Phone,
		DeliveryType:    string(order.DeliveryType),
		DeliveryZone:    deliveryZone.String,
		DeliveryAddress: deliveryAddress.String,
		PaymentMethod:   req.PaymentMethod,
		Notes:           order.Notes.String,
		Currency:        restaurant.Currency,
		Lines:           summaryLines,
		Subtotal:        totals.Subtotal,
		DeliveryFee:     totals.DeliveryFee,
		Total:           totals.Total,
	}

	// --- Conversation + inbound message ---
	conversation, err := store.UpsertInboundConversation(ctx, database.UpsertInboundConversationParams{
		RestaurantID:  restaurant.ID,
		CustomerID:    pgtype.UUID{Bytes: customer.ID, Valid: true},
		CustomerPhone: customer.Phone,
		CustomerName:  customer.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert conversation: %w", err)
	}
	metadata, err := json.Marshal(map[string]string{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"type":         enum.MessageTypeOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal message metadata: %w", err)
	}
	message, err := store.CreateMessage(ctx, database.CreateMessageParams{
		ConversationID: conversation.ID,
		Direction:      database.MessageDirectionINBOUND,
		Content:        ordertext.Render(summary, ordertext.ChannelInbox),
		Metadata:       metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	waURL := ""
	if restaurant.WhatsappNumber.Valid && restaurant.WhatsappNumber.String != "" {
		waURL = whatsapp.DeepLink(restaurant.WhatsappNumber.String, ordertext.Render(summary, ordertext.ChannelWhatsApp))
	}

	return &CreateOrderResult{
		Order:        order,
		Items:        items,
		Restaurant:   restaurant,
		Customer:     customer,
		Conversation: conversation,
		Message:      message,
		Summary:      summary,
		WhatsAppURL:  waURL,
	}, nil
}

// priceLine resolves one cart line against the restaurant's menu and
// computes its server-side price.
func (s *OrderService) priceLine(ctx context.Context, store OrderStore, restaurantID uuid.UUID, i int, id uuid.UUID, item CreateOrderItemRequest) (pricedLine, error) {
	menuItem, err := store.GetMenuItem(ctx, database.GetMenuItemParams{ID: id, RestaurantID: restaurantID})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return pricedLine{}, fmt.Errorf("item[%d]: get menu item: %w", i, err)
		}
		if _, ownerErr := store.GetMenuItemRestaurant(ctx, id); ownerErr == nil {
			return pricedLine{}, &ItemError{Index: i, MenuItemID: id, Err: ErrMenuItemForeign}
		} else if !errors.Is(ownerErr, pgx.ErrNoRows) {
			return pricedLine{}, fmt.Errorf("item[%d]: get menu item owner: %w", i, ownerErr)
		}
		return pricedLine{}, &ItemError{Index: i, MenuItemID: id, Err: ErrMenuItemNotFound}
	}
	if !menuItem.IsAvailable || !menuItem.IsActive {
		return pricedLine{}, &ItemError{Index: i, MenuItemID: id, Name: menuItem.Name, Err: ErrMenuItemUnavailable}
	}

	variants, err := pricing.ParseVariants(menuItem.Variants)
	if err != nil {
		return pricedLine{}, fmt.Errorf("item[%d]: %w", i, err)
	}
	modifiers, err := pricing.ParseModifiers(menuItem.Modifiers)
	if err != nil {
		return pricedLine{}, fmt.Errorf("item[%d]: %w", i, err)
	}

	unit, err := pricing.UnitPrice(NumericToDecimal(menuItem.Price), variants, modifiers, item.Customization)
	if err != nil {
		return pricedLine{}, &ItemError{Index: i, MenuItemID: id, Name: menuItem.Name, Err: err}
	}
	lineTotal, err := pricing.LineTotal(unit, item.Quantity)
	if err != nil {
		return pricedLine{}, &ItemError{Index: i, MenuItemID: id, Name: menuItem.Name, Err: err}
	}

	customization, err := json.Marshal(item.Customization)
	if err != nil {
		return pricedLine{}, fmt.Errorf("item[%d]: marshal customization: %w", i, err)
	}

	return pricedLine{
		summary: ordertext.Line{
			Name:      menuItem.Name,
			Quantity:  item.Quantity,
			UnitPrice: unit,
			Subtotal:  lineTotal,
			Variant:   item.Customization.Variant,
			Modifiers: item.Customization.Modifiers,
			Notes:     item.Customization.Notes,
		},
		insert: database.CreateOrderItemParams{
			MenuItemID:    menuItem.ID,
			Name:          menuItem.Name,
			Quantity:      item.Quantity,
			UnitPrice:     DecimalToNumeric(unit),
			Subtotal:      DecimalToNumeric(lineTotal),
			Customization: customization,
		},
	}, nil
}

// orderDay is the calendar day, in the configured location, that order
// numbers are stamped with.
type orderDay struct {
	local time.Time
	date  pgtype.Date
}

func (d orderDay) prefix() string {
	return "ORD-" + d.local.Format("20060102") + "-"
}

func (s *OrderService) today() orderDay {
	local := s.opts.Now().In(s.opts.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return orderDay{local: local, date: pgtype.Date{Time: day, Valid: true}}
}

// nextOrderNumber claims the day's next sequence value for the restaurant and
// formats it as ORD-YYYYMMDD-NNN.
func (s *OrderService) nextOrderNumber(ctx context.Context, store OrderStore, restaurantID uuid.UUID, day orderDay) (string, error) {
	seq, err := store.NextOrderNumber(ctx, database.NextOrderNumberParams{
		RestaurantID: restaurantID,
		Day:          day.date,
	})
	if err != nil {
		return "", fmt.Errorf("next order number: %w", err)
	}
	return FormatOrderNumber(day.local, seq), nil
}

func FormatOrderNumber(day time.Time, seq int32) string {
	return fmt.Sprintf("ORD-%s-%03d", day.Format("20060102"), seq)
}

// afterCreate publishes realtime events and sends the customer confirmation.
func (s *OrderService) afterCreate(ctx context.Context, r *CreateOrderResult) {
	room := realtime.RestaurantRoom(r.Restaurant.ID)
	realtime.Emit(s.events, realtime.EventNewOrder, map[string]interface{}{
		"order":    NewOrderView(r.Order, r.Items),
		"customer": map[string]string{"name": r.Customer.Name, "phone": r.Customer.Phone},
	}, room)
	realtime.Emit(s.events, realtime.EventNewMessage, map[string]interface{}{
		"conversation": NewConversationView(r.Conversation),
		"message":      NewMessageView(r.Message),
	}, room)

	notice := whatsapp.OrderNotice{
		RestaurantName: r.Restaurant.Name,
		OrderNumber:    r.Order.OrderNumber,
		CustomerName:   r.Customer.Name,
		CustomerPhone:  r.Customer.Phone,
		Status:         string(r.Order.Status),
		Total:          ordertext.FormatMoney(r.Summary.Total, r.Restaurant.Currency),
	}
	s.opts.Dispatcher.Go(ctx, "order placed "+r.Order.OrderNumber, func(ctx context.Context) error {
		return s.notifier.OrderPlaced(ctx, notice)
	})
}
