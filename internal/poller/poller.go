// Package poller clears a shopper's remote cart once their checkout completes.
package poller

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sandbeige/storefront/internal/notify"
	"github.com/segmentio/kafka-go"
)

const readErrorBackoff = time.Second

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CartClearer empties the remote cart of a user.
type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

// LiveCarts reloads the in-memory carts a user has open in browser sessions.
type LiveCarts interface {
	ReloadAfterCheckout(ctx context.Context, userID string) int
}

type checkoutCompleted struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

type Poller struct {
	carts    CartClearer
	live     LiveCarts
	reader   messageReader
	notifier notify.Notifier
	log      *slog.Logger
}

// NewPoller consumes checkout events from topic. live may be nil when no browser
// sessions are held in this process.
func NewPoller(carts CartClearer, live LiveCarts, notifier notify.Notifier, logger *slog.Logger, topic string, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  "cart-service-consumer",
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(carts, live, reader, notifier, logger)
}

func newPoller(carts CartClearer, live LiveCarts, reader messageReader, notifier notify.Notifier, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Multi{}
	}
	return &Poller{carts: carts, live: live, reader: reader, notifier: notifier, log: logger.With("component", "checkout-poller")}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.getMessageAndEmptyCart(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Warn("error closing reader", "error", err)
	}
}

func (p *Poller) getMessageAndEmptyCart(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Warn("error reading message", "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(readErrorBackoff):
		}
		return
	}

	var event checkoutCompleted
	if errUnmarshal := json.Unmarshal(m.Value, &event); errUnmarshal != nil {
		p.log.Warn("error parsing message", "offset", m.Offset, "error", errUnmarshal)
		return
	}
	if event.UserID == "" {
		p.log.Warn("missing or invalid user_id", "offset", m.Offset)
		return
	}

	e := notify.Event{
		Level:  notify.LevelSuccess,
		Action: notify.ActionCheckoutClear,
		UserID: event.UserID,
		At:     time.Now().UTC(),
	}
	if errClear := p.carts.Clear(ctx, event.UserID); errClear != nil {
		p.log.Error("failed to clear cart after checkout", "user_id", event.UserID, "checkout_id", event.CheckoutID, "error", errClear)
		e.Level = notify.LevelError
		e.Error = errClear.Error()
	} else {
		p.log.Info("cart cleared after checkout", "user_id", event.UserID, "checkout_id", event.CheckoutID)
		if p.live != nil {
			if n := p.live.ReloadAfterCheckout(ctx, event.UserID); n > 0 {
				p.log.Debug("live carts reloaded after checkout", "user_id", event.UserID, "sessions", n)
			}
		}
	}
	p.notifier.Notify(ctx, e)
}
