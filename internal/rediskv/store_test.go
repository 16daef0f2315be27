package rediskv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, ttl, jitter time.Duration) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "test", ttl, jitter), mr
}

func TestStore_GetMissing(t *testing.T) {
	store, _ := setupStore(t, time.Minute, 0)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	var v map[string]int
	assert.ErrorIs(t, store.GetJSON(context.Background(), "nope", &v), ErrNotFound)
}

func TestStore_SetUsesPrefixAndJitteredTTL(t *testing.T) {
	store, mr := setupStore(t, 10*time.Minute, 2*time.Minute)

	require.NoError(t, store.Set(context.Background(), "k", []byte("v")))

	stored, err := mr.Get("test:k")
	require.NoError(t, err)
	assert.Equal(t, "v", stored)

	ttl := mr.TTL("test:k")
	assert.GreaterOrEqual(t, ttl, 10*time.Minute)
	assert.Less(t, ttl, 12*time.Minute)
}

func TestStore_ZeroTTLNeverExpires(t *testing.T) {
	store, mr := setupStore(t, 0, time.Minute)

	require.NoError(t, store.Set(context.Background(), "k", []byte("v")))
	assert.Zero(t, mr.TTL("test:k"))
}

func TestStore_JSONRoundTrip(t *testing.T) {
	store, _ := setupStore(t, time.Minute, 0)
	ctx := context.Background()

	require.NoError(t, store.SetJSON(ctx, "k", map[string]int{"a": 1}))

	var got map[string]int
	require.NoError(t, store.GetJSON(ctx, "k", &got))
	assert.Equal(t, map[string]int{"a": 1}, got)
}

func TestStore_GetJSONCorrupt(t *testing.T) {
	store, mr := setupStore(t, time.Minute, 0)
	require.NoError(t, mr.Set("test:k", "{nope"))

	var got map[string]int
	err := store.GetJSON(context.Background(), "k", &got)
	assert.ErrorContains(t, err, "unmarshal test:k failed")
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestStore_SetNXKeepsFirstValue(t *testing.T) {
	store, mr := setupStore(t, time.Hour, 0)
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "k", []byte("first"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetNX(ctx, "k", []byte("second"))
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := mr.Get("test:k")
	require.NoError(t, err)
	assert.Equal(t, "first", stored)
	assert.Equal(t, time.Hour, mr.TTL("test:k"))
}

func TestStore_Delete(t *testing.T) {
	store, mr := setupStore(t, time.Minute, 0)
	ctx := context.Background()
	require.NoError(t, mr.Set("test:k", "v"))

	require.NoError(t, store.Delete(ctx, "k"))
	assert.False(t, mr.Exists("test:k"))
	assert.NoError(t, store.Delete(ctx, "missing"))
}

func TestStore_ServerDown(t *testing.T) {
	store, mr := setupStore(t, time.Minute, 0)
	mr.Close()

	err := store.Set(context.Background(), "k", []byte("v"))
	assert.ErrorContains(t, err, "redis set failed")
}
