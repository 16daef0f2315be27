package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sandbeige/storefront/internal/domain"
	"github.com/sandbeige/storefront/internal/lineitem"
)

// snapshotVersion guards against silently reading a future layout.
const snapshotVersion = 1

type snapshot struct {
	Version int               `json:"version"`
	Items   []domain.LineItem `json:"items"`
}

// Adapter serializes a session's line items under a single key.
type Adapter struct {
	store Store
	log   *slog.Logger
}

func NewAdapter(store Store, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{store: store, log: logger}
}

// Load never fails: a missing, unreadable or malformed snapshot yields an empty cart.
func (a *Adapter) Load(ctx context.Context, sessionID string) lineitem.Items {
	data, err := a.store.Get(ctx, cartKey(sessionID))
	if errors.Is(err, ErrKeyNotFound) {
		return lineitem.Items{}
	}
	if err != nil {
		a.log.Warn("local cart read failed", "session_id", sessionID, "error", err)
		return lineitem.Items{}
	}

	items, err := decode(data)
	if err != nil {
		a.log.Warn("discarding malformed local cart", "session_id", sessionID, "error", err)
		return lineitem.Items{}
	}
	return items
}

// Save writes the whole sequence. Failures come back wrapped in domain.ErrPersistence;
// callers log them and carry on with the in-memory cart.
func (a *Adapter) Save(ctx context.Context, sessionID string, items lineitem.Items) error {
	data, err := json.Marshal(snapshot{Version: snapshotVersion, Items: items})
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", domain.ErrPersistence, err)
	}
	if err := a.store.Set(ctx, cartKey(sessionID), data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, sessionID string) error {
	if err := a.store.Delete(ctx, cartKey(sessionID)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func decode(data []byte) (lineitem.Items, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}

	seen := make(map[domain.Key]struct{}, len(s.Items))
	for _, item := range s.Items {
		if item.ID == "" || item.ProductID == "" {
			return nil, errors.New("line item without id")
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("line item %s has quantity %d", item.ID, item.Quantity)
		}
		if _, dup := seen[item.Key()]; dup {
			return nil, fmt.Errorf("duplicate line item for %s", item.Key())
		}
		seen[item.Key()] = struct{}{}
	}
	return lineitem.Of(s.Items...), nil
}

func cartKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}
