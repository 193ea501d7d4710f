package service

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/whataybo/api/internal/database"
)

// OrderView is the JSON shape of an order shared by HTTP responses and
// realtime events. Money is rendered as fixed two-decimal strings.
type OrderView struct {
	ID                 uuid.UUID       `json:"id"`
	RestaurantID       uuid.UUID       `json:"restaurant_id"`
	OrderNumber        string          `json:"order_number"`
	CustomerID         uuid.UUID       `json:"customer_id"`
	Status             string          `json:"status"`
	DeliveryType       string          `json:"delivery_type"`
	DeliveryZone       *string         `json:"delivery_zone"`
	DeliveryAddress    *string         `json:"delivery_address"`
	Notes              *string         `json:"notes"`
	PaymentMethod      *string         `json:"payment_method"`
	ScheduledTime      *time.Time      `json:"scheduled_time"`
	Subtotal           string          `json:"subtotal"`
	DeliveryFee        string          `json:"delivery_fee"`
	Discount           string          `json:"discount"`
	Tax                string          `json:"tax"`
	Total              string          `json:"total"`
	AssignedToID       *uuid.UUID      `json:"assigned_to_id"`
	AssignedAt         *time.Time      `json:"assigned_at"`
	CancellationReason *string         `json:"cancellation_reason"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	CompletedAt        *time.Time      `json:"completed_at"`
	CancelledAt        *time.Time      `json:"cancelled_at"`
	Items              []OrderItemView `json:"items,omitempty"`
}

type OrderItemView struct {
	ID            uuid.UUID       `json:"id"`
	MenuItemID    uuid.UUID       `json:"menu_item_id"`
	Name          string          `json:"name"`
	Quantity      int32           `json:"quantity"`
	UnitPrice     string          `json:"unit_price"`
	Subtotal      string          `json:"subtotal"`
	Customization json.RawMessage `json:"customization"`
}

func NewOrderView(o database.Order, items []database.OrderItem) OrderView {
	v := OrderView{
		ID:                 o.ID,
		RestaurantID:       o.RestaurantID,
		OrderNumber:        o.OrderNumber,
		CustomerID:         o.CustomerID,
		Status:             string(o.Status),
		DeliveryType:       string(o.DeliveryType),
		DeliveryZone:       textPtr(o.DeliveryZone),
		DeliveryAddress:    textPtr(o.DeliveryAddress),
		Notes:              textPtr(o.Notes),
		PaymentMethod:      textPtr(o.PaymentMethod),
		ScheduledTime:      timePtr(o.ScheduledTime),
		Subtotal:           Money(o.Subtotal),
		DeliveryFee:        Money(o.DeliveryFee),
		Discount:           Money(o.Discount),
		Tax:                Money(o.Tax),
		Total:              Money(o.Total),
		AssignedAt:         timePtr(o.AssignedAt),
		CancellationReason: textPtr(o.CancellationReason),
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		CompletedAt:        timePtr(o.CompletedAt),
		CancelledAt:        timePtr(o.CancelledAt),
	}
	v.AssignedToID = uuidPtr(o.AssignedToID)
	for _, it := range items {
		custom := json.RawMessage(it.Customization)
		if len(custom) == 0 {
			custom = json.RawMessage(`{}`)
		}
		v.Items = append(v.Items, OrderItemView{
			ID:            it.ID,
			MenuItemID:    it.MenuItemID,
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     Money(it.UnitPrice),
			Subtotal:      Money(it.Subtotal),
			Customization: custom,
		})
	}
	return v
}

// ConversationView is the JSON shape of a conversation.
type ConversationView struct {
	ID            uuid.UUID  `json:"id"`
	RestaurantID  uuid.UUID  `json:"restaurant_id"`
	CustomerID    *uuid.UUID `json:"customer_id"`
	CustomerPhone string     `json:"customer_phone"`
	CustomerName  string     `json:"customer_name"`
	Status        string     `json:"status"`
	UnreadCount   int32      `json:"unread_count"`
	LastMessageAt time.Time  `json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

func NewConversationView(c database.Conversation) ConversationView {
	return ConversationView{
		ID:            c.ID,
		RestaurantID:  c.RestaurantID,
		CustomerID:    uuidPtr(c.CustomerID),
		CustomerPhone: c.CustomerPhone,
		CustomerName:  c.CustomerName,
		Status:        string(c.Status),
		UnreadCount:   c.UnreadCount,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
	}
}

// MessageView is the JSON shape of a message. Metadata is passed through as
// raw JSON.
type MessageView struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	Direction      string          `json:"direction"`
	Content        string          `json:"content"`
	Metadata       json.RawMessage `json:"metadata"`
	SenderID       *uuid.UUID      `json:"sender_id"`
	IsRead         bool            `json:"is_read"`
	ReadAt         *time.Time      `json:"read_at"`
	CreatedAt      time.Time       `json:"created_at"`
}

func NewMessageView(m database.Message) MessageView {
	meta := json.RawMessage(m.Metadata)
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Direction:      string(m.Direction),
		Content:        m.Content,
		Metadata:       meta,
		SenderID:       uuidPtr(m.SenderID),
		IsRead:         m.IsRead,
		ReadAt:         timePtr(m.ReadAt),
		CreatedAt:      m.CreatedAt,
	}
}

// Money renders a numeric column as a fixed two-decimal string.
func Money(n pgtype.Numeric) string {
	return NumericToDecimal(n).StringFixed(2)
}

func NumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func DecimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

func uuidPtr(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func optText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func stamp(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}
