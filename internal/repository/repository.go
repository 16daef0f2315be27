package repository

import (
	"context"

	"github.com/sandbeige/storefront/internal/domain"
)

// CartRepository stores one row per (userID, productID, variant).
// Every write is a single atomic statement on that row; there is no read-then-write
// from the client, so concurrent writers to the same key cannot lose an increment.
type CartRepository interface {
	// List returns the user's rows in the order they were first added.
	List(ctx context.Context, userID string) ([]domain.LineItem, error)
	// Increment adds delta to the row's quantity, inserting the row with quantity delta
	// when absent. ID, price and snapshot are only written on insert.
	Increment(ctx context.Context, userID string, item domain.LineItem, delta int) (domain.LineItem, error)
	// Set writes an absolute quantity, inserting the row when absent.
	Set(ctx context.Context, userID string, item domain.LineItem) (domain.LineItem, error)
	// Remove deletes the row. Removing an absent row is not an error.
	Remove(ctx context.Context, userID string, key domain.Key) error
	Clear(ctx context.Context, userID string) error
}

// Migrator is implemented by repositories that need schema or index setup before use.
type Migrator interface {
	Migrate(ctx context.Context) error
}
