package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type OrderStatus string

const (
	OrderStatusPENDING        OrderStatus = "PENDING"
	OrderStatusCONFIRMED      OrderStatus = "CONFIRMED"
	OrderStatusPREPARING      OrderStatus = "PREPARING"
	OrderStatusREADY          OrderStatus = "READY"
	OrderStatusOUTFORDELIVERY OrderStatus = "OUT_FOR_DELIVERY"
	OrderStatusDELIVERED      OrderStatus = "DELIVERED"
	OrderStatusCOMPLETED      OrderStatus = "COMPLETED"
	OrderStatusCANCELLED      OrderStatus = "CANCELLED"
)

func (e *OrderStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = OrderStatus(s)
	case string:
		*e = OrderStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for OrderStatus: %T", src)
	}
	return nil
}

type DeliveryType string

const (
	DeliveryTypeDELIVERY DeliveryType = "DELIVERY"
	DeliveryTypePICKUP   DeliveryType = "PICKUP"
	DeliveryTypeDINEIN   DeliveryType = "DINE_IN"
)

func (e *DeliveryType) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = DeliveryType(s)
	case string:
		*e = DeliveryType(s)
	default:
		return fmt.Errorf("unsupported scan type for DeliveryType: %T", src)
	}
	return nil
}

type ConversationStatus string

const (
	ConversationStatusOPEN     ConversationStatus = "OPEN"
	ConversationStatusCLOSED   ConversationStatus = "CLOSED"
	ConversationStatusRESOLVED ConversationStatus = "RESOLVED"
	ConversationStatusSPAM     ConversationStatus = "SPAM"
)

func (e *ConversationStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = ConversationStatus(s)
	case string:
		*e = ConversationStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for ConversationStatus: %T", src)
	}
	return nil
}

type MessageDirection string

const (
	MessageDirectionINBOUND  MessageDirection = "INBOUND"
	MessageDirectionOUTBOUND MessageDirection = "OUTBOUND"
)

func (e *MessageDirection) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = MessageDirection(s)
	case string:
		*e = MessageDirection(s)
	default:
		return fmt.Errorf("unsupported scan type for MessageDirection: %T", src)
	}
	return nil
}

type Restaurant struct {
	ID                 uuid.UUID      `json:"id"`
	Name               string         `json:"name"`
	Slug               string         `json:"slug"`
	WhatsappNumber     pgtype.Text    `json:"whatsapp_number"`
	Currency           string         `json:"currency"`
	DeliveryZones      []byte         `json:"delivery_zones"`
	DefaultDeliveryFee pgtype.Numeric `json:"default_delivery_fee"`
	IsBusy             bool           `json:"is_busy"`
	IsActive           bool           `json:"is_active"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

type User struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Category struct {
	ID           uuid.UUID   `json:"id"`
	RestaurantID uuid.UUID   `json:"restaurant_id"`
	Name         string      `json:"name"`
	Slug         string      `json:"slug"`
	Description  pgtype.Text `json:"description"`
	SortOrder    int32       `json:"sort_order"`
	IsActive     bool        `json:"is_active"`
	CreatedAt    time.Time   `json:"created_at"`
}

type MenuItem struct {
	ID           uuid.UUID      `json:"id"`
	RestaurantID uuid.UUID      `json:"restaurant_id"`
	CategoryID   uuid.UUID      `json:"category_id"`
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	Description  pgtype.Text    `json:"description"`
	Price        pgtype.Numeric `json:"price"`
	Variants     []byte         `json:"variants"`
	Modifiers    []byte         `json:"modifiers"`
	IsAvailable  bool           `json:"is_available"`
	IsActive     bool           `json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type Customer struct {
	ID           uuid.UUID   `json:"id"`
	RestaurantID uuid.UUID   `json:"restaurant_id"`
	Phone        string      `json:"phone"`
	Name         string      `json:"name"`
	Email        pgtype.Text `json:"email"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type Order struct {
	ID                 uuid.UUID          `json:"id"`
	RestaurantID       uuid.UUID          `json:"restaurant_id"`
	OrderNumber        string             `json:"order_number"`
	CustomerID         uuid.UUID          `json:"customer_id"`
	Status             OrderStatus        `json:"status"`
	DeliveryType       DeliveryType       `json:"delivery_type"`
	DeliveryZone       pgtype.Text        `json:"delivery_zone"`
	DeliveryAddress    pgtype.Text        `json:"delivery_address"`
	Notes              pgtype.Text        `json:"notes"`
	PaymentMethod      pgtype.Text        `json:"payment_method"`
	ScheduledTime      pgtype.Timestamptz `json:"scheduled_time"`
	Subtotal           pgtype.Numeric     `json:"subtotal"`
	DeliveryFee        pgtype.Numeric     `json:"delivery_fee"`
	Discount           pgtype.Numeric     `json:"discount"`
	Tax                pgtype.Numeric     `json:"tax"`
	Total              pgtype.Numeric     `json:"total"`
	AssignedToID       pgtype.UUID        `json:"assigned_to_id"`
	AssignedAt         pgtype.Timestamptz `json:"assigned_at"`
	CancellationReason pgtype.Text        `json:"cancellation_reason"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	CompletedAt        pgtype.Timestamptz `json:"completed_at"`
	CancelledAt        pgtype.Timestamptz `json:"cancelled_at"`
}

type OrderItem struct {
	ID            uuid.UUID      `json:"id"`
	OrderID       uuid.UUID      `json:"order_id"`
	MenuItemID    uuid.UUID      `json:"menu_item_id"`
	Name          string         `json:"name"`
	Quantity      int32          `json:"quantity"`
	UnitPrice     pgtype.Numeric `json:"unit_price"`
	Subtotal      pgtype.Numeric `json:"subtotal"`
	Customization []byte         `json:"customization"`
}

type Conversation struct {
	ID            uuid.UUID          `json:"id"`
	RestaurantID  uuid.UUID          `json:"restaurant_id"`
	CustomerID    pgtype.UUID        `json:"customer_id"`
	CustomerPhone string             `json:"customer_phone"`
	CustomerName  string             `json:"customer_name"`
	Status        ConversationStatus `json:"status"`
	UnreadCount   int32              `json:"unread_count"`
	LastMessageAt time.Time          `json:"last_message_at"`
	CreatedAt     time.Time          `json:"created_at"`
}

type Message struct {
	ID             uuid.UUID          `json:"id"`
	ConversationID uuid.UUID          `json:"conversation_id"`
	Direction      MessageDirection   `json:"direction"`
	Content        string             `json:"content"`
	Metadata       []byte             `json:"metadata"`
	SenderID       pgtype.UUID        `json:"sender_id"`
	IsRead         bool               `json:"is_read"`
	ReadAt         pgtype.Timestamptz `json:"read_at"`
	CreatedAt      time.Time          `json:"created_at"`
}

type ConversationNote struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	AuthorID       uuid.UUID `json:"author_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
