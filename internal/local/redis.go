package local

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sandbeige/storefront/internal/rediskv"
)

// browserJitter spreads the expiry of anonymous carts saved in the same burst.
const browserJitter = time.Hour

// NewRedisStore keeps browser-scoped values under "browser:" so abandoned
// anonymous carts age out after ttl.
func NewRedisStore(client *redis.Client, ttl time.Duration) *rediskv.Store {
	return rediskv.New(client, "browser", ttl, browserJitter)
}
