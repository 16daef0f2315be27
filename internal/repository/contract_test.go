package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sandbeige/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newItem(productID, variant string, qty int, price string) domain.LineItem {
	p := decimal.RequireFromString(price)
	return domain.LineItem{
		ID:        uuid.NewString(),
		ProductID: productID,
		Variant:   variant,
		Quantity:  qty,
		UnitPrice: p,
		Snapshot:  domain.ProductSnapshot{Name: "Sahara Trainer " + productID, Image: "/img/" + productID + ".jpg", CurrentPrice: p},
		AddedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
}

// runRepositoryContract exercises behavior every CartRepository backend must share.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) CartRepository) {
	t.Run("list empty", func(t *testing.T) {
		repo := newRepo(t)
		items, err := repo.List(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("increment inserts then adds", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		first := newItem("shoe-a", "42", 0, "89.90")

		stored, err := repo.Increment(ctx, "user1", first, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.Quantity)
		assert.Equal(t, first.ID, stored.ID)

		again := newItem("shoe-a", "42", 0, "99.00")
		stored, err = repo.Increment(ctx, "user1", again, 3)
		require.NoError(t, err)
		assert.Equal(t, 5, stored.Quantity)
		assert.Equal(t, first.ID, stored.ID, "id is written on insert only")
		assert.True(t, decimal.RequireFromString("89.90").Equal(stored.UnitPrice), "price-at-add is kept")

		items, err := repo.List(ctx, "user1")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, 5, items[0].Quantity)
		assert.Equal(t, "Sahara Trainer shoe-a", items[0].Snapshot.Name)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		item := newItem("shoe-a", "42", 0, "50.00")

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Increment(ctx, "user1", item, 1)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		items, err := repo.List(ctx, "user1")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, 20, items[0].Quantity)
	})

	t.Run("set is absolute and idempotent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		item := newItem("shoe-a", "42", 3, "50.00")

		for i := 0; i < 2; i++ {
			stored, err := repo.Set(ctx, "user1", item)
			require.NoError(t, err)
			assert.Equal(t, 3, stored.Quantity)
		}
	})

	t.Run("variants are distinct rows", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		_, err := repo.Increment(ctx, "user1", newItem("shoe-a", "42", 0, "50.00"), 1)
		require.NoError(t, err)
		_, err = repo.Increment(ctx, "user1", newItem("shoe-a", "43", 0, "50.00"), 1)
		require.NoError(t, err)

		items, err := repo.List(ctx, "user1")
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("remove and clear", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		a := newItem("shoe-a", "42", 1, "50.00")
		b := newItem("shoe-b", "40", 2, "70.00")
		_, err := repo.Set(ctx, "user1", a)
		require.NoError(t, err)
		_, err = repo.Set(ctx, "user1", b)
		require.NoError(t, err)
		_, err = repo.Set(ctx, "user2", a)
		require.NoError(t, err)

		require.NoError(t, repo.Remove(ctx, "user1", a.Key()))
		require.NoError(t, repo.Remove(ctx, "user1", a.Key()), "removing twice is fine")

		items, err := repo.List(ctx, "user1")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "shoe-b", items[0].ProductID)

		require.NoError(t, repo.Clear(ctx, "user1"))
		items, err = repo.List(ctx, "user1")
		require.NoError(t, err)
		assert.Empty(t, items)

		others, err := repo.List(ctx, "user2")
		require.NoError(t, err)
		assert.Len(t, others, 1, "other users are untouched")
	})

	t.Run("context cancellation", func(t *testing.T) {
		repo := newRepo(t)
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
		defer cancel()

		time.Sleep(10 * time.Millisecond) // Ensure context is cancelled

		_, err := repo.List(ctx, "user1")
		assert.Error(t, err)
	})
}
