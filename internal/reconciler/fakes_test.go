package reconciler

import (
	"context"
	"fmt"
	"sync"

	"github.com/sandbeige/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

var errRemoteDown = fmt.Errorf("remote list: %w", domain.ErrRemoteUnavailable)

type fakeRemote struct {
	mu    sync.Mutex
	carts map[string][]domain.LineItem

	listErr     error
	writeErr    error
	failUpserts int // upserts beyond this many fail; 0 disables
	upserts     int
	lists       int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{carts: map[string][]domain.LineItem{}}
}

func (f *fakeRemote) seed(userID string, items ...domain.LineItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[userID] = append([]domain.LineItem(nil), items...)
}

func (f *fakeRemote) quantity(userID string, key domain.Key) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.carts[userID] {
		if item.Key() == key {
			return item.Quantity
		}
	}
	return 0
}

func (f *fakeRemote) rows(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.carts[userID])
}

func (f *fakeRemote) List(_ context.Context, userID string) ([]domain.LineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.LineItem{}, f.carts[userID]...), nil
}

func (f *fakeRemote) Upsert(_ context.Context, userID string, item domain.LineItem) (domain.LineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.writeErr != nil {
		return domain.LineItem{}, f.writeErr
	}
	if f.failUpserts > 0 && f.upserts > f.failUpserts {
		return domain.LineItem{}, errRemoteDown
	}
	return f.write(userID, item, func(int) int { return item.Quantity }), nil
}

func (f *fakeRemote) Increment(_ context.Context, userID string, item domain.LineItem, delta int) (domain.LineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return domain.LineItem{}, f.writeErr
	}
	item.Quantity = delta
	return f.write(userID, item, func(q int) int { return q + delta }), nil
}

func (f *fakeRemote) write(userID string, item domain.LineItem, next func(int) int) domain.LineItem {
	cart := f.carts[userID]
	for i := range cart {
		if cart[i].Key() == item.Key() {
			cart[i].Quantity = next(cart[i].Quantity)
			return cart[i]
		}
	}
	f.carts[userID] = append(cart, item)
	return item
}

func (f *fakeRemote) Remove(_ context.Context, userID string, key domain.Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	cart := f.carts[userID]
	for i := range cart {
		if cart[i].Key() == key {
			f.carts[userID] = append(cart[:i:i], cart[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeRemote) Clear(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	delete(f.carts, userID)
	return nil
}

type fakeCatalog map[string]domain.Product

func (c fakeCatalog) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	p, ok := c[productID]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return p, nil
}

func testCatalog() fakeCatalog {
	return fakeCatalog{
		"shoe-a": {ID: "shoe-a", Name: "Runner", Price: decimal.RequireFromString("10.00"), Sizes: []string{"41", "42"}, Stock: 12},
		"shoe-b": {ID: "shoe-b", Name: "Loafer", Price: decimal.RequireFromString("5.50"), Sizes: []string{"40"}, Stock: 3},
		"shoe-x": {ID: "shoe-x", Name: "Sold out", Price: decimal.RequireFromString("99.00"), Sizes: []string{"42"}, Stock: 0},
	}
}

type memoryReceipts struct {
	mu   sync.Mutex
	base map[string][]domain.LineItem
}

func newMemoryReceipts() *memoryReceipts {
	return &memoryReceipts{base: map[string][]domain.LineItem{}}
}

func (m *memoryReceipts) Load(_ context.Context, userID, sessionID string) ([]domain.LineItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base, ok := m.base[userID+"/"+sessionID]
	return base, ok, nil
}

func (m *memoryReceipts) Save(_ context.Context, userID, sessionID string, base []domain.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.base[userID+"/"+sessionID]; !ok {
		m.base[userID+"/"+sessionID] = append([]domain.LineItem{}, base...)
	}
	return nil
}

func (m *memoryReceipts) Delete(_ context.Context, userID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.base, userID+"/"+sessionID)
	return nil
}
