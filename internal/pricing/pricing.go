// Package pricing computes order money server-side: per-line unit prices
// from the menu, subtotals and the delivery fee.
package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownVariant  = errors.New("unknown variant")
	ErrUnknownModifier = errors.New("unknown modifier")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

const (
	deliveryTypeDelivery = "DELIVERY"
)

// Zone is one entry of a restaurant's delivery_zones column.
type Zone struct {
	Name   string          `json:"name"`
	Fee    decimal.Decimal `json:"fee"`
	Radius float64         `json:"radius"`
}

// Variant is a menu-item size or option that shifts the base price.
type Variant struct {
	Name       string          `json:"name"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

// Modifier is an add-on priced on top of the (varied) base price.
type Modifier struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Customization is what the customer picked for one cart line. It is stored
// verbatim on the order item.
type Customization struct {
	Variant   string   `json:"variant,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

// Totals is the money breakdown persisted on an order.
type Totals struct {
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Discount    decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
}

// ParseZones decodes a delivery_zones JSON array. Empty input means no zones.
func ParseZones(raw []byte) ([]Zone, error) {
	var zones []Zone
	if err := decodeList(raw, &zones); err != nil {
		return nil, fmt.Errorf("parse delivery zones: %w", err)
	}
	return zones, nil
}

func ParseVariants(raw []byte) ([]Variant, error) {
	var variants []Variant
	if err := decodeList(raw, &variants); err != nil {
		return nil, fmt.Errorf("parse variants: %w", err)
	}
	return variants, nil
}

func ParseModifiers(raw []byte) ([]Modifier, error) {
	var modifiers []Modifier
	if err := decodeList(raw, &modifiers); err != nil {
		return nil, fmt.Errorf("parse modifiers: %w", err)
	}
	return modifiers, nil
}

func decodeList(raw []byte, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// DeliveryFee returns 0 for anything but DELIVERY. For DELIVERY it returns
// the fee of the zone whose name matches zoneName (case-insensitive, trimmed),
// or fallback when no zone matches.
func DeliveryFee(deliveryType, zoneName string, zones []Zone, fallback decimal.Decimal) decimal.Decimal {
	if deliveryType != deliveryTypeDelivery {
		return decimal.Zero
	}
	if z, ok := FindZone(zones, zoneName); ok {
		return z.Fee
	}
	return fallback
}

func FindZone(zones []Zone, name string) (Zone, bool) {
	for _, z := range zones {
		if sameName(z.Name, name) {
			return z, true
		}
	}
	return Zone{}, false
}

// UnitPrice is base + variant delta + the sum of the chosen modifier prices.
func UnitPrice(base decimal.Decimal, variants []Variant, modifiers []Modifier, c Customization) (decimal.Decimal, error) {
	price := base
	if strings.TrimSpace(c.Variant) != "" {
		v, ok := findVariant(variants, c.Variant)
		if !ok {
			return decimal.Zero, fmt.Errorf("%w %q", ErrUnknownVariant, c.Variant)
		}
		price = price.Add(v.PriceDelta)
	}
	for _, name := range c.Modifiers {
		m, ok := findModifier(modifiers, name)
		if !ok {
			return decimal.Zero, fmt.Errorf("%w %q", ErrUnknownModifier, name)
		}
		price = price.Add(m.Price)
	}
	return price, nil
}

func LineTotal(unit decimal.Decimal, quantity int32) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, ErrInvalidQuantity
	}
	return unit.Mul(decimal.NewFromInt32(quantity)), nil
}

// ComputeTotals derives the order total. Discount and tax are not offered yet
// and are recorded as zero.
func ComputeTotals(subtotal, deliveryFee decimal.Decimal) Totals {
	t := Totals{
		Subtotal:    subtotal,
		DeliveryFee: deliveryFee,
		Discount:    decimal.Zero,
		Tax:         decimal.Zero,
	}
	t.Total = t.Subtotal.Add(t.DeliveryFee).Sub(t.Discount).Add(t.Tax)
	return t
}

func findVariant(variants []Variant, name string) (Variant, bool) {
	for _, v := range variants {
		if sameName(v.Name, name) {
			return v, true
		}
	}
	return Variant{}, false
}

func findModifier(modifiers []Modifier, name string) (Modifier, bool) {
	for _, m := range modifiers {
		if sameName(m.Name, name) {
			return m, true
		}
	}
	return Modifier{}, false
}

func sameName(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
