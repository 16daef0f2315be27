package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sandbeige/storefront/internal/domain"
	"github.com/sandbeige/storefront/internal/rediskv"
)

// Writes invalidate the projection, so entries only need to outlive a burst of reads.
const (
	rowsPrefix = "cart-rows:v1"
	rowsTTL    = 10 * time.Minute
	rowsJitter = 2 * time.Minute
)

// RedisCache keeps the remote rows of each user as one JSON array.
type RedisCache struct {
	kv *rediskv.Store
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{kv: rediskv.New(client, rowsPrefix, rowsTTL, rowsJitter)}
}

// Get returns ErrCacheMiss for absent entries. An entry that no longer decodes is
// dropped and reported as a miss so the next read repopulates it.
func (c *RedisCache) Get(ctx context.Context, userID string) ([]domain.LineItem, error) {
	var items []domain.LineItem
	err := c.kv.GetJSON(ctx, userID, &items)
	switch {
	case errors.Is(err, rediskv.ErrNotFound):
		return nil, ErrCacheMiss
	case errors.Is(err, rediskv.ErrCorrupt):
		if err := c.kv.Delete(ctx, userID); err != nil {
			return nil, err
		}
		return nil, ErrCacheMiss
	case err != nil:
		return nil, err
	}
	return items, nil
}

// Set stores items; an empty cart is cached as an empty array, not skipped.
func (c *RedisCache) Set(ctx context.Context, userID string, items []domain.LineItem) error {
	if items == nil {
		items = []domain.LineItem{}
	}
	return c.kv.SetJSON(ctx, userID, items)
}

func (c *RedisCache) Delete(ctx context.Context, userID string) error {
	return c.kv.Delete(ctx, userID)
}

func cacheKey(userID string) string {
	return rowsPrefix + ":" + userID
}
