// Package lineitem holds the in-memory ordered sequence of cart line items.
//
// Items is treated as immutable: every mutation copies the backing array and returns
// a new sequence, so holders of an older Items value never observe a change and
// callers can detect updates by comparing sequences.
package lineitem

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sandbeige/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	newID = uuid.NewString
	now   = time.Now
)

type Items []domain.LineItem

// Of copies items into a new sequence.
func Of(items ...domain.LineItem) Items {
	out := make(Items, len(items))
	copy(out, items)
	return out
}

// Upsert adds delta to the quantity of the item with the same (productID, variant),
// or appends a new item with quantity delta. The price and snapshot of an existing
// item are left untouched.
func (s Items) Upsert(productID, variant string, delta int, unitPrice decimal.Decimal, snapshot domain.ProductSnapshot) (Items, domain.LineItem, error) {
	key := domain.Key{ProductID: productID, Variant: variant}
	if i, ok := s.IndexOfKey(key); ok {
		qty := s[i].Quantity + delta
		if qty < 1 {
			return s, domain.LineItem{}, fmt.Errorf("%w: %s would have quantity %d", domain.ErrInvalidQuantity, key, qty)
		}
		out := Of(s...)
		out[i].Quantity = qty
		return out, out[i], nil
	}

	if delta < 1 {
		return s, domain.LineItem{}, fmt.Errorf("%w: got %d", domain.ErrInvalidQuantity, delta)
	}
	item := domain.LineItem{
		ID:        newID(),
		ProductID: productID,
		Variant:   variant,
		Quantity:  delta,
		UnitPrice: unitPrice,
		Snapshot:  snapshot,
		AddedAt:   now().UTC(),
	}
	out := make(Items, len(s), len(s)+1)
	copy(out, s)
	return append(out, item), item, nil
}

// SetQuantity replaces the quantity of the item with the given id.
func (s Items) SetQuantity(itemID string, quantity int) (Items, domain.LineItem, error) {
	if quantity < 1 {
		return s, domain.LineItem{}, fmt.Errorf("%w: got %d", domain.ErrInvalidQuantity, quantity)
	}
	i, ok := s.IndexOf(itemID)
	if !ok {
		return s, domain.LineItem{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
	}
	out := Of(s...)
	out[i].Quantity = quantity
	return out, out[i], nil
}

// Remove returns the sequence without the item. Removing an absent id is a no-op and
// reports false.
func (s Items) Remove(itemID string) (Items, domain.LineItem, bool) {
	i, ok := s.IndexOf(itemID)
	if !ok {
		return s, domain.LineItem{}, false
	}
	removed := s[i]
	out := make(Items, 0, len(s)-1)
	out = append(out, s[:i]...)
	out = append(out, s[i+1:]...)
	return out, removed, true
}

func (s Items) Clear() Items {
	return Items{}
}

func (s Items) IndexOf(itemID string) (int, bool) {
	for i := range s {
		if s[i].ID == itemID {
			return i, true
		}
	}
	return -1, false
}

func (s Items) IndexOfKey(key domain.Key) (int, bool) {
	for i := range s {
		if s[i].Key() == key {
			return i, true
		}
	}
	return -1, false
}

// Get returns the item with the given id.
func (s Items) Get(itemID string) (domain.LineItem, bool) {
	if i, ok := s.IndexOf(itemID); ok {
		return s[i], true
	}
	return domain.LineItem{}, false
}

// Same reports whether a and b share the same backing array and length, i.e. no
// mutation happened between them.
func Same(a, b Items) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}
