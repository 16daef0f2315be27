// Package circuitbreaker fails fast on a backend that keeps erroring, so a dead
// database turns into an immediate error instead of a pile of timed-out requests.
package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrOpen is returned without calling the backend while the breaker is open or
// while half-open probes are exhausted.
var ErrOpen = errors.New("circuit breaker open")

type Config struct {
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold uint32
	// ResetTimeout is the time to wait before transitioning from Open to HalfOpen
	ResetTimeout time.Duration
	// HalfOpenMaxRequests is the maximum number of requests allowed in HalfOpen state
	HalfOpenMaxRequests uint32
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

type Breaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

func New(name string, cfg Config, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = DefaultConfig().FailureThreshold
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxRequests,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		// A caller giving up is not a backend failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[any](st)}
}

func (b *Breaker) Do(fn func() error) error {
	_, err := Call(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Call runs fn through the breaker and returns its typed result.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, ErrOpen
	}
	if err != nil {
		var zero T
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

func (b *Breaker) State() string {
	return b.cb.State().String()
}
