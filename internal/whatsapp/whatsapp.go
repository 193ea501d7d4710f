// Package whatsapp builds wa.me deep links and delivers customer
// notifications through the WhatsApp Cloud API.
package whatsapp

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
)

// Template names registered with the WhatsApp Business account.
const (
	TemplateOrderReceived       = "order_received"
	TemplateOrderConfirmed      = "order_confirmed"
	TemplateOrderPreparing      = "order_preparing"
	TemplateOrderReady          = "order_ready"
	TemplateOrderOutForDelivery = "order_out_for_delivery"
	TemplateOrderDelivered      = "order_delivered"
	TemplateOrderCompleted      = "order_completed"
	TemplateOrderCancelled      = "order_cancelled"
)

var statusTemplates = map[string]string{
	"CONFIRMED":        TemplateOrderConfirmed,
	"PREPARING":        TemplateOrderPreparing,
	"READY":            TemplateOrderReady,
	"OUT_FOR_DELIVERY": TemplateOrderOutForDelivery,
	"DELIVERED":        TemplateOrderDelivered,
	"COMPLETED":        TemplateOrderCompleted,
	"CANCELLED":        TemplateOrderCancelled,
}

// TemplateForStatus returns the template announcing status, if any.
func TemplateForStatus(status string) (string, bool) {
	t, ok := statusTemplates[status]
	return t, ok
}

// OrderNotice carries what a customer notification needs about an order.
type OrderNotice struct {
	RestaurantName string `json:"restaurant_name"`
	OrderNumber    string `json:"order_number"`
	CustomerName   string `json:"customer_name"`
	CustomerPhone  string `json:"customer_phone"`
	Status         string `json:"status"`
	Total          string `json:"total"`
	Reason         string `json:"reason,omitempty"`
}

type Notifier interface {
	OrderPlaced(ctx context.Context, n OrderNotice) error
	OrderStatusChanged(ctx context.Context, n OrderNotice) error
	SendText(ctx context.Context, phone, text string) error
}

// NormalizePhone keeps only digits and drops an international "00" prefix.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimPrefix(b.String(), "00")
}

// DeepLink returns a click-to-chat URL that opens a chat with phone and the
// message text pre-filled.
func DeepLink(phone, text string) string {
	link := "https://wa.me/" + NormalizePhone(phone)
	if text == "" {
		return link
	}
	return link + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}

// LogNotifier is used when the Cloud API is disabled. It only logs.
type LogNotifier struct{}

func (LogNotifier) OrderPlaced(_ context.Context, n OrderNotice) error {
	log.Printf("whatsapp disabled: skip order placed notice for %s to %s", n.OrderNumber, n.CustomerPhone)
	return nil
}

func (LogNotifier) OrderStatusChanged(_ context.Context, n OrderNotice) error {
	log.Printf("whatsapp disabled: skip %s notice for %s to %s", n.Status, n.OrderNumber, n.CustomerPhone)
	return nil
}

func (LogNotifier) SendText(_ context.Context, phone, _ string) error {
	log.Printf("whatsapp disabled: skip text to %s", phone)
	return nil
}

// JobKind selects the Notifier method a queued Job is delivered through.
type JobKind string

const (
	JobOrderPlaced JobKind = "order_placed"
	JobOrderStatus JobKind = "order_status"
	JobText        JobKind = "text"
)

// Job is the queued form of one Notifier call.
type Job struct {
	Kind   JobKind      `json:"kind"`
	Notice *OrderNotice `json:"notice,omitempty"`
	Phone  string       `json:"phone,omitempty"`
	Text   string       `json:"text,omitempty"`
}

// Deliver performs job through n.
func Deliver(ctx context.Context, n Notifier, job Job) error {
	switch job.Kind {
	case JobOrderPlaced, JobOrderStatus:
		if job.Notice == nil {
			return fmt.Errorf("%s job without notice", job.Kind)
		}
		if job.Kind == JobOrderPlaced {
			return n.OrderPlaced(ctx, *job.Notice)
		}
		return n.OrderStatusChanged(ctx, *job.Notice)
	case JobText:
		return n.SendText(ctx, job.Phone, job.Text)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// JobPublisher is satisfied by *broker.Broker.
type JobPublisher interface {
	PublishJob(ctx context.Context, job Job) error
}

// QueueNotifier hands notifications to the notifier worker instead of
// calling the Cloud API inline.
type QueueNotifier struct {
	pub JobPublisher
}

func NewQueueNotifier(pub JobPublisher) *QueueNotifier {
	return &QueueNotifier{pub: pub}
}

func (q *QueueNotifier) OrderPlaced(ctx context.Context, n OrderNotice) error {
	return q.pub.PublishJob(ctx, Job{Kind: JobOrderPlaced, Notice: &n})
}

func (q *QueueNotifier) OrderStatusChanged(ctx context.Context, n OrderNotice) error {
	if _, ok := TemplateForStatus(n.Status); !ok {
		return nil
	}
	return q.pub.PublishJob(ctx, Job{Kind: JobOrderStatus, Notice: &n})
}

func (q *QueueNotifier) SendText(ctx context.Context, phone, text string) error {
	return q.pub.PublishJob(ctx, Job{Kind: JobText, Phone: phone, Text: text})
}
