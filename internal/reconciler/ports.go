package reconciler

import (
	"context"

	"github.com/sandbeige/storefront/internal/domain"
	"github.com/sandbeige/storefront/internal/lineitem"
)

// Local persists the anonymous cart for one browser session.
type Local interface {
	Load(ctx context.Context, sessionID string) lineitem.Items
	Save(ctx context.Context, sessionID string, items lineitem.Items) error
	Delete(ctx context.Context, sessionID string) error
}

// Remote persists the authenticated cart. Every failure is reported as
// domain.ErrRemoteUnavailable.
type Remote interface {
	List(ctx context.Context, userID string) ([]domain.LineItem, error)
	Upsert(ctx context.Context, userID string, item domain.LineItem) (domain.LineItem, error)
	Increment(ctx context.Context, userID string, item domain.LineItem, delta int) (domain.LineItem, error)
	Remove(ctx context.Context, userID string, key domain.Key) error
	Clear(ctx context.Context, userID string) error
}

// Catalog resolves products by id. Unknown ids return domain.ErrProductNotFound.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
}

// Receipts remembers the write plan of a merge that has not finished yet, so a
// retried sign-in replays the plan instead of summing quantities a second time.
type Receipts interface {
	Load(ctx context.Context, userID, sessionID string) ([]domain.LineItem, bool, error)
	Save(ctx context.Context, userID, sessionID string, plan []domain.LineItem) error
	Delete(ctx context.Context, userID, sessionID string) error
}

type noReceipts struct{}

func (noReceipts) Load(context.Context, string, string) ([]domain.LineItem, bool, error) {
	return nil, false, nil
}

func (noReceipts) Save(context.Context, string, string, []domain.LineItem) error { return nil }

func (noReceipts) Delete(context.Context, string, string) error { return nil }
