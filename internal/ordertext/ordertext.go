// Package ordertext renders an order summary as text for the staff inbox and
// for WhatsApp.
package ordertext

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Channel int

const (
	// ChannelInbox is plain text stored as the inbound conversation message.
	ChannelInbox Channel = iota
	// ChannelWhatsApp uses WhatsApp markup and is addressed to the restaurant.
	ChannelWhatsApp
)

type Line struct {
	Name      string
	Quantity  int32
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
	Variant   string
	Modifiers []string
	Notes     string
}

type Summary struct {
	OrderNumber     string
	RestaurantName  string
	CustomerName    string
	CustomerPhone   string
	DeliveryType    string
	DeliveryZone    string
	DeliveryAddress string
	PaymentMethod   string
	Notes           string
	Currency        string
	Lines           []Line
	Subtotal        decimal.Decimal
	DeliveryFee     decimal.Decimal
	Total           decimal.Decimal
}

func FormatMoney(amount decimal.Decimal, currency string) string {
	if currency == "" {
		return amount.StringFixed(2)
	}
	return amount.StringFixed(2) + " " + currency
}

func Render(s Summary, ch Channel) string {
	bold := func(v string) string { return v }
	if ch == ChannelWhatsApp {
		bold = func(v string) string { return "*" + v + "*" }
	}

	var b strings.Builder
	switch ch {
	case ChannelWhatsApp:
		fmt.Fprintf(&b, "Hello %s, I'd like to confirm my order.\n", s.RestaurantName)
		fmt.Fprintf(&b, "%s %s\n", bold("Order:"), s.OrderNumber)
	default:
		fmt.Fprintf(&b, "New order %s\n", s.OrderNumber)
	}

	fmt.Fprintf(&b, "%s %s (%s)\n", bold("Customer:"), s.CustomerName, s.CustomerPhone)
	fmt.Fprintf(&b, "%s %s\n", bold("Type:"), deliveryLabel(s))
	if s.DeliveryAddress != "" {
		fmt.Fprintf(&b, "%s %s\n", bold("Address:"), s.DeliveryAddress)
	}

	b.WriteString("\n" + bold("Items:") + "\n")
	for _, l := range s.Lines {
		fmt.Fprintf(&b, "- %dx %s%s @ %s = %s\n",
			l.Quantity, l.Name, options(l), l.UnitPrice.StringFixed(2), l.Subtotal.StringFixed(2))
		if l.Notes != "" {
			fmt.Fprintf(&b, "  Note: %s\n", l.Notes)
		}
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", bold("Subtotal:"), FormatMoney(s.Subtotal, s.Currency))
	if !s.DeliveryFee.IsZero() {
		fmt.Fprintf(&b, "%s %s\n", bold("Delivery:"), FormatMoney(s.DeliveryFee, s.Currency))
	}
	fmt.Fprintf(&b, "%s %s\n", bold("Total:"), FormatMoney(s.Total, s.Currency))

	if s.PaymentMethod != "" {
		fmt.Fprintf(&b, "%s %s\n", bold("Payment:"), s.PaymentMethod)
	}
	if s.Notes != "" {
		fmt.Fprintf(&b, "%s %s\n", bold("Notes:"), s.Notes)
	}
	return strings.TrimRight(b.String(), "\n")
}

func deliveryLabel(s Summary) string {
	if s.DeliveryZone != "" {
		return s.DeliveryType + " - " + s.DeliveryZone
	}
	return s.DeliveryType
}

func options(l Line) string {
	var parts []string
	if l.Variant != "" {
		parts = append(parts, l.Variant)
	}
	for _, m := range l.Modifiers {
		parts = append(parts, "+"+m)
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, "; ") + ")"
}
