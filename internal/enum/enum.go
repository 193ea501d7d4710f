package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	ConversationStatusOpen     = "OPEN"
	ConversationStatusClosed   = "CLOSED"
	ConversationStatusResolved = "RESOLVED"
	ConversationStatusSpam     = "SPAM"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleStaff   = "STAFF"
)

const (
	DeliveryTypeDelivery = "DELIVERY"
	DeliveryTypePickup   = "PICKUP"
	DeliveryTypeDineIn   = "DINE_IN"
)

// ── Group B: Configurable labels (no DB constraint) ──

const (
	PaymentMethodCash   = "CASH"
	PaymentMethodCard   = "CARD"
	PaymentMethodWallet = "WALLET"
)

const (
	MessageTypeOrder = "order"
	MessageTypeText  = "text"
)
