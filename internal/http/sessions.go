package http

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sandbeige/storefront/internal/reconciler"
)

// NewCartFunc builds the cart of a browser session.
type NewCartFunc func(ctx context.Context, sessionID string) *reconciler.Reconciler

type sessionEntry struct {
	cart     *reconciler.Reconciler
	lastSeen time.Time
}

// Sessions keeps one live cart per browser session. Idle carts are dropped; the
// anonymous cart is reloaded from the local store and the authenticated one from
// the remote store the next time the session shows up.
type Sessions struct {
	newCart NewCartFunc
	idle    time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	entries map[string]*sessionEntry
}

func NewSessions(newCart NewCartFunc, idle time.Duration, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		newCart: newCart,
		idle:    idle,
		log:     logger,
		entries: make(map[string]*sessionEntry),
	}
}

func (s *Sessions) Get(ctx context.Context, sessionID string) *reconciler.Reconciler {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[sessionID]; ok {
		e.lastSeen = time.Now()
		return e.cart
	}
	cart := s.newCart(ctx, sessionID)
	s.entries[sessionID] = &sessionEntry{cart: cart, lastSeen: time.Now()}
	return cart
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Evict drops sessions not seen since before cutoff and reports how many went.
func (s *Sessions) Evict(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Run evicts idle sessions until ctx is done.
func (s *Sessions) Run(ctx context.Context) {
	ticker := time.NewTicker(s.idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.Evict(time.Now().Add(-s.idle)); n > 0 {
				s.log.Debug("evicted idle cart sessions", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// ReloadAfterCheckout reloads every live cart signed in as userID and reports how
// many there were. Failures are logged; the next cart read refreshes them again.
func (s *Sessions) ReloadAfterCheckout(ctx context.Context, userID string) int {
	s.mu.Lock()
	carts := make([]*reconciler.Reconciler, 0, len(s.entries))
	for _, e := range s.entries {
		carts = append(carts, e.cart)
	}
	s.mu.Unlock()

	n := 0
	for _, cart := range carts {
		ok, err := cart.ReloadAfterCheckout(ctx, userID)
		if !ok {
			continue
		}
		n++
		if err != nil {
			s.log.Warn("reload after checkout failed", "user_id", userID, "error", err)
		}
	}
	return n
}
