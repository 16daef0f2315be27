package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sandbeige/storefront/internal/domain"
	"github.com/sandbeige/storefront/internal/rediskv"
)

const (
	receiptPrefix = "cart-merge"
	receiptTTL    = 24 * time.Hour
)

// MergeReceipts stores, per (user, browser session), the remote cart a sign-in
// merge started from. A receipt lives until the merge completes or it expires.
type MergeReceipts struct {
	kv *rediskv.Store
}

func NewMergeReceipts(client *redis.Client) *MergeReceipts {
	return &MergeReceipts{kv: rediskv.New(client, receiptPrefix, receiptTTL, 0)}
}

func (m *MergeReceipts) Load(ctx context.Context, userID, sessionID string) ([]domain.LineItem, bool, error) {
	var base []domain.LineItem
	err := m.kv.GetJSON(ctx, receiptID(userID, sessionID), &base)
	if errors.Is(err, rediskv.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return base, true, nil
}

// Save keeps the first receipt written for the pair; later saves are ignored.
func (m *MergeReceipts) Save(ctx context.Context, userID, sessionID string, base []domain.LineItem) error {
	if base == nil {
		base = []domain.LineItem{}
	}
	_, err := m.kv.SetJSONNX(ctx, receiptID(userID, sessionID), base)
	return err
}

func (m *MergeReceipts) Delete(ctx context.Context, userID, sessionID string) error {
	return m.kv.Delete(ctx, receiptID(userID, sessionID))
}

func receiptID(userID, sessionID string) string {
	return userID + ":" + sessionID
}

func receiptKey(userID, sessionID string) string {
	return receiptPrefix + ":" + receiptID(userID, sessionID)
}
