// Package notify publishes success and error surfaces for cart operations.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Action string

const (
	ActionAdd            Action = "add"
	ActionUpdateQuantity Action = "update_quantity"
	ActionRemove         Action = "remove"
	ActionClear          Action = "clear"
	ActionSignIn         Action = "sign_in"
	ActionSignOut        Action = "sign_out"
	ActionCheckoutClear  Action = "checkout_clear"
)

type Event struct {
	Level     Level     `json:"level"`
	Action    Action    `json:"action"`
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	ProductID string    `json:"product_id,omitempty"`
	Variant   string    `json:"variant,omitempty"`
	Quantity  int       `json:"quantity,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier delivers events. Delivery failures are the notifier's own concern and
// never reach the cart.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// LogNotifier writes events to a structured logger.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{log: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, e Event) {
	level := slog.LevelInfo
	if e.Level == LevelError {
		level = slog.LevelWarn
	}
	n.log.Log(ctx, level, "cart event",
		"action", string(e.Action),
		"session_id", e.SessionID,
		"user_id", e.UserID,
		"product_id", e.ProductID,
		"variant", e.Variant,
		"quantity", e.Quantity,
		"error", e.Error,
	)
}

// Multi fans an event out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) {
	for _, n := range m {
		n.Notify(ctx, e)
	}
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
