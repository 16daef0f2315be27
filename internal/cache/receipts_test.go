package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupReceipts(t *testing.T) (*MergeReceipts, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewMergeReceipts(client), mr
}

func TestMergeReceipts_RoundTrip(t *testing.T) {
	receipts, mr := setupReceipts(t)
	ctx := context.Background()

	_, found, err := receipts.Load(ctx, "user-1", "sess-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, receipts.Save(ctx, "user-1", "sess-1", testItems()))

	base, found, err := receipts.Load(ctx, "user-1", "sess-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, base, 2)
	assert.Equal(t, "shoe-a", base[0].ProductID)
	assert.True(t, base[1].UnitPrice.Equal(testItems()[1].UnitPrice))

	ttl := mr.TTL(receiptKey("user-1", "sess-1"))
	assert.Equal(t, 24*time.Hour, ttl)

	require.NoError(t, receipts.Delete(ctx, "user-1", "sess-1"))
	_, found, err = receipts.Load(ctx, "user-1", "sess-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMergeReceipts_FirstSaveWins(t *testing.T) {
	receipts, _ := setupReceipts(t)
	ctx := context.Background()

	require.NoError(t, receipts.Save(ctx, "user-1", "sess-1", nil))
	require.NoError(t, receipts.Save(ctx, "user-1", "sess-1", testItems()))

	base, found, err := receipts.Load(ctx, "user-1", "sess-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, base)
}

func TestMergeReceipts_CorruptValue(t *testing.T) {
	receipts, mr := setupReceipts(t)
	require.NoError(t, mr.Set(receiptKey("user-1", "sess-1"), "{nope"))

	_, found, err := receipts.Load(context.Background(), "user-1", "sess-1")
	assert.Error(t, err)
	assert.False(t, found)
}
