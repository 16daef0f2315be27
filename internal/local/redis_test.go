package local

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sandbeige/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisAdapter(t *testing.T) (*Adapter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewAdapter(NewRedisStore(client, 24*time.Hour), nil), mr
}

func TestRedisStore_MissingKeyIsNotFound(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	_, err := NewRedisStore(client, time.Hour).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRedisAdapter_SaveLoadWithBrowserTTL(t *testing.T) {
	adapter, mr := setupRedisAdapter(t)
	ctx := context.Background()
	items := []domain.LineItem{{ID: "i1", ProductID: "shoe-a", Variant: "42", Quantity: 2, UnitPrice: decimal.RequireFromString("89.90")}}

	require.NoError(t, adapter.Save(ctx, "s1", items))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "browser:")
	ttl := mr.TTL(keys[0])
	assert.True(t, ttl >= 24*time.Hour, "TTL should be at least base TTL")
	assert.True(t, ttl < 25*time.Hour, "TTL should be below base + max jitter")

	loaded := adapter.Load(ctx, "s1")
	require.Len(t, loaded, 1)
	assert.Equal(t, 2, loaded[0].Quantity)

	require.NoError(t, adapter.Delete(ctx, "s1"))
	assert.Empty(t, mr.Keys())
}

func TestRedisAdapter_ServerDownLoadsEmpty(t *testing.T) {
	adapter, mr := setupRedisAdapter(t)
	mr.Close()

	assert.Empty(t, adapter.Load(context.Background(), "s1"))
	assert.Error(t, adapter.Save(context.Background(), "s1", nil))
}
