package cache

import (
	"context"
	"errors"

	"github.com/sandbeige/storefront/internal/domain"
)

// CartCache holds the projection of a user's remote cart rows.
type CartCache interface {
	Get(ctx context.Context, userID string) ([]domain.LineItem, error)
	Set(ctx context.Context, userID string, items []domain.LineItem) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")
