package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OwnerKind decides which persistence adapter is authoritative for a cart.
type OwnerKind string

const (
	OwnerAnonymous     OwnerKind = "anonymous"
	OwnerAuthenticated OwnerKind = "authenticated"
)

type Cart struct {
	OwnerKind OwnerKind  `json:"owner_kind"`
	UserID    string     `json:"user_id,omitempty"`
	SessionID string     `json:"session_id"`
	Items     []LineItem `json:"items"`
}

// Count is the number of distinct line items.
func (c Cart) Count() int {
	return len(c.Items)
}

// Units is the number of pairs across all line items.
func (c Cart) Units() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// LineItem is one (product, variant) entry. UnitPrice is the catalog price captured
// when the item was first added and is never refreshed afterwards.
type LineItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Variant   string          `json:"variant"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price_at_add"`
	Snapshot  ProductSnapshot `json:"snapshot"`
	AddedAt   time.Time       `json:"added_at"`
}

func (i LineItem) Key() Key {
	return Key{ProductID: i.ProductID, Variant: i.Variant}
}

// ProductSnapshot caches display fields read from the catalog at add-time.
type ProductSnapshot struct {
	Name         string          `json:"name"`
	Image        string          `json:"image,omitempty"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// Key identifies a line item inside one cart.
type Key struct {
	ProductID string
	Variant   string
}

func (k Key) String() string {
	return k.ProductID + "/" + k.Variant
}
