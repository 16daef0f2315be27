// Package totals derives order totals from a line-item sequence.
//
// All arithmetic is exact (shopspring/decimal). Rounding to cents happens once, when a
// Totals value is rendered, using round-half-away-from-zero, which is half-up for
// non-negative money. Intermediate values are never rounded.
package totals

import (
	"github.com/sandbeige/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

const displayPlaces = 2

type Config struct {
	TaxRate     decimal.Decimal
	ShippingFee decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		TaxRate:     decimal.RequireFromString("0.15"),
		ShippingFee: decimal.RequireFromString("10.00"),
	}
}

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// Calculate prices every item at its price-at-add. An empty cart owes nothing, shipping
// included; any non-empty cart pays the flat fee.
func Calculate(items []domain.LineItem, cfg Config) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	// The flat fee applies to every non-empty cart alike; an empty cart has no shipment.
	if len(items) == 0 {
		return Totals{Subtotal: decimal.Zero, Tax: decimal.Zero, Shipping: decimal.Zero, Total: decimal.Zero}
	}

	tax := subtotal.Mul(cfg.TaxRate)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: cfg.ShippingFee,
		Total:    subtotal.Add(tax).Add(cfg.ShippingFee),
	}
}

// Rendered is the display form of Totals, every amount fixed to two decimals.
type Rendered struct {
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Shipping string `json:"shipping"`
	Total    string `json:"total"`
}

func (t Totals) Render() Rendered {
	return Rendered{
		Subtotal: Format(t.Subtotal),
		Tax:      Format(t.Tax),
		Shipping: Format(t.Shipping),
		Total:    Format(t.Total),
	}
}

// Round applies the display rounding rule.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(displayPlaces)
}

func Format(d decimal.Decimal) string {
	return Round(d).StringFixed(displayPlaces)
}

// LineTotal is unit price times quantity, unrounded.
func LineTotal(item domain.LineItem) decimal.Decimal {
	return item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
}
