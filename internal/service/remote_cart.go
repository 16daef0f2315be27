package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sandbeige/storefront/internal/cache"
	"github.com/sandbeige/storefront/internal/domain"
	"github.com/sandbeige/storefront/internal/repository"
	"github.com/sandbeige/storefront/pkg/circuitbreaker"
	"golang.org/x/sync/singleflight"
)

// RemoteCart is the server-side cart store for signed-in users: a row repository
// behind a read-through cache and a circuit breaker. Every failure that reaches the
// caller wraps domain.ErrRemoteUnavailable.
type RemoteCart struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	breaker *circuitbreaker.Breaker
	timeout time.Duration
	log     *slog.Logger
	sfg     singleflight.Group // Prevents cache stampede
}

type Option func(*RemoteCart)

func WithTimeout(d time.Duration) Option {
	return func(s *RemoteCart) { s.timeout = d }
}

func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(s *RemoteCart) { s.breaker = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *RemoteCart) { s.log = l }
}

func NewRemoteCart(repo repository.CartRepository, cache cache.CartCache, opts ...Option) *RemoteCart {
	s := &RemoteCart{
		repo:    repo,
		cache:   cache,
		timeout: 5 * time.Second,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = circuitbreaker.New("remote-cart", circuitbreaker.DefaultConfig(), s.log)
	}
	return s
}

func (s *RemoteCart) List(ctx context.Context, userID string) ([]domain.LineItem, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		items, err := s.cache.Get(ctx, userID)
		if err == nil {
			return items, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cache get error", "user_id", userID, "error", err) // log cache error but continue
		}

		items, err = call(ctx, s, func(ctx context.Context) ([]domain.LineItem, error) {
			return s.repo.List(ctx, userID)
		})
		if err != nil {
			return nil, err
		}

		// Set inline: a deferred set could land after a later write's invalidation.
		setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if errSet := s.cache.Set(setCtx, userID, items); errSet != nil {
			s.log.Warn("cache set error", "user_id", userID, "error", errSet)
		}

		return items, nil
	})
	if err != nil {
		return nil, remoteErr("list", err)
	}

	items := v.([]domain.LineItem)
	out := make([]domain.LineItem, len(items))
	copy(out, items)
	return out, nil
}

// Upsert writes the absolute quantity carried by item.
func (s *RemoteCart) Upsert(ctx context.Context, userID string, item domain.LineItem) (domain.LineItem, error) {
	stored, err := call(ctx, s, func(ctx context.Context) (domain.LineItem, error) {
		return s.repo.Set(ctx, userID, item)
	})
	s.invalidate(userID)
	if err != nil {
		return domain.LineItem{}, remoteErr("upsert", err)
	}
	return stored, nil
}

// Increment atomically adds delta to the row, creating it when absent.
func (s *RemoteCart) Increment(ctx context.Context, userID string, item domain.LineItem, delta int) (domain.LineItem, error) {
	stored, err := call(ctx, s, func(ctx context.Context) (domain.LineItem, error) {
		return s.repo.Increment(ctx, userID, item, delta)
	})
	s.invalidate(userID)
	if err != nil {
		return domain.LineItem{}, remoteErr("increment", err)
	}
	return stored, nil
}

func (s *RemoteCart) Remove(ctx context.Context, userID string, key domain.Key) error {
	err := s.exec(ctx, func(ctx context.Context) error {
		return s.repo.Remove(ctx, userID, key)
	})
	s.invalidate(userID)
	if err != nil {
		return remoteErr("remove", err)
	}
	return nil
}

func (s *RemoteCart) Clear(ctx context.Context, userID string) error {
	err := s.exec(ctx, func(ctx context.Context) error {
		return s.repo.Clear(ctx, userID)
	})
	s.invalidate(userID)
	if err != nil {
		return remoteErr("clear", err)
	}
	return nil
}

func (s *RemoteCart) exec(ctx context.Context, fn func(context.Context) error) error {
	_, err := call(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func call[T any](ctx context.Context, s *RemoteCart, fn func(context.Context) (T, error)) (T, error) {
	return circuitbreaker.Call(s.breaker, func() (T, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return fn(ctx)
	})
}

func (s *RemoteCart) invalidate(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cache invalidate error", "user_id", userID, "error", err)
	}
}

func remoteErr(op string, err error) error {
	if errors.Is(err, repository.ErrQuantityConstraint) {
		return fmt.Errorf("remote %s: %w", op, domain.ErrInvalidQuantity)
	}
	return fmt.Errorf("remote %s: %w: %w", op, domain.ErrRemoteUnavailable, err)
}
