// Package reconciler owns the in-memory cart of one browser session and keeps it
// in step with whichever store is authoritative: the local adapter while the shopper
// is anonymous, the remote adapter once they sign in.
//
// Mutations are optimistic. The in-memory sequence changes first, then the write is
// queued behind earlier writes to the same (product, variant) key. A failed remote
// write is reported but the in-memory change is not rolled back; the key is kept as
// unsynced and Refresh pushes it again before it trusts the remote rows.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/sandbeige/storefront/internal/domain"
	"github.com/sandbeige/storefront/internal/lineitem"
	"github.com/sandbeige/storefront/internal/notify"
	"github.com/sandbeige/storefront/internal/totals"
)

var now = time.Now

// localKey serializes anonymous saves; each save writes the latest sequence.
const localKey = "local"

type Config struct {
	Local    Local
	Remote   Remote
	Catalog  Catalog
	Notifier notify.Notifier
	Receipts Receipts
	Totals   totals.Config
	Logger   *slog.Logger
}

type state struct {
	kind      domain.OwnerKind
	userID    string
	sessionID string
	items     lineitem.Items
}

type Reconciler struct {
	local    Local
	remote   Remote
	catalog  Catalog
	notifier notify.Notifier
	receipts Receipts
	totals   totals.Config
	log      *slog.Logger

	// transition is held shared by mutations for their whole duration and
	// exclusively by sign-in and sign-out.
	transition sync.RWMutex
	mu         sync.Mutex
	st         state
	queue      *writeQueue

	// unsynced holds keys whose last remote write failed or was skipped.
	// clearPending is set while a failed Clear has not reached the remote store.
	unsynced     map[domain.Key]struct{}
	clearPending bool
	// syncEpoch changes on every transition; hooks from an older epoch are ignored.
	syncEpoch uint64
}

// New starts an anonymous cart for sessionID, seeded from the local adapter.
func New(ctx context.Context, sessionID string, cfg Config) *Reconciler {
	r := &Reconciler{
		local:    cfg.Local,
		remote:   cfg.Remote,
		catalog:  cfg.Catalog,
		notifier: cfg.Notifier,
		receipts: cfg.Receipts,
		totals:   cfg.Totals,
		log:      cfg.Logger,
		queue:    newWriteQueue(),
		unsynced: map[domain.Key]struct{}{},
	}
	if r.notifier == nil {
		r.notifier = notify.Multi{}
	}
	if r.receipts == nil {
		r.receipts = noReceipts{}
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	r.log = r.log.With("session_id", sessionID)

	r.st = state{
		kind:      domain.OwnerAnonymous,
		sessionID: sessionID,
		items:     r.local.Load(ctx, sessionID),
	}
	return r
}

// Snapshot returns the current cart. The returned items are never modified.
func (r *Reconciler) Snapshot() domain.Cart {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.Cart{
		OwnerKind: r.st.kind,
		UserID:    r.st.userID,
		SessionID: r.st.sessionID,
		Items:     r.st.items,
	}
}

func (r *Reconciler) Items() lineitem.Items {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.items
}

func (r *Reconciler) Totals() totals.Totals {
	return totals.Calculate(r.Items(), r.totals)
}

func (r *Reconciler) TotalsConfig() totals.Config {
	return r.totals
}

// Add puts quantity pairs of (productID, variant) in the cart. The unit price is read
// from the catalog now and kept for the life of the line item.
func (r *Reconciler) Add(ctx context.Context, productID, variant string, quantity int) (domain.LineItem, error) {
	if quantity < 1 {
		return domain.LineItem{}, fmt.Errorf("%w: got %d", domain.ErrInvalidQuantity, quantity)
	}
	if variant == "" {
		return domain.LineItem{}, domain.ErrVariantRequired
	}

	product, err := r.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.LineItem{}, err
	}
	if len(product.Sizes) > 0 && !slices.Contains(product.Sizes, variant) {
		return domain.LineItem{}, fmt.Errorf("%w: size %q is not offered for %s", domain.ErrVariantRequired, variant, productID)
	}
	if product.Stock <= 0 {
		return domain.LineItem{}, fmt.Errorf("%w: %s", domain.ErrOutOfStock, productID)
	}

	r.transition.RLock()
	defer r.transition.RUnlock()

	r.mu.Lock()
	items, item, err := r.st.items.Upsert(productID, variant, quantity, product.Price, product.Snapshot())
	if err != nil {
		r.mu.Unlock()
		return domain.LineItem{}, err
	}
	r.st.items = items
	st := r.st
	t := r.ticketFor(st, item.Key())
	r.mu.Unlock()

	err = r.persist(ctx, t, st, r.settleKey(item.Key(), false), func(ctx context.Context) error {
		_, err := r.remote.Increment(ctx, st.userID, item, quantity)
		return err
	})
	r.report(ctx, notify.ActionAdd, st, item, quantity, err)
	return item, err
}

// UpdateQuantity sets the quantity of an item. Values below 1 are rejected without I/O.
func (r *Reconciler) UpdateQuantity(ctx context.Context, itemID string, quantity int) (domain.LineItem, error) {
	if quantity < 1 {
		return domain.LineItem{}, fmt.Errorf("%w: got %d", domain.ErrInvalidQuantity, quantity)
	}

	r.transition.RLock()
	defer r.transition.RUnlock()

	r.mu.Lock()
	items, item, err := r.st.items.SetQuantity(itemID, quantity)
	if err != nil {
		r.mu.Unlock()
		return domain.LineItem{}, err
	}
	r.st.items = items
	st := r.st
	t := r.ticketFor(st, item.Key())
	r.mu.Unlock()

	err = r.persist(ctx, t, st, r.settleKey(item.Key(), true), func(ctx context.Context) error {
		_, err := r.remote.Upsert(ctx, st.userID, item)
		return err
	})
	r.report(ctx, notify.ActionUpdateQuantity, st, item, quantity, err)
	return item, err
}

// Remove deletes an item. Removing an id that is not in the cart does nothing.
func (r *Reconciler) Remove(ctx context.Context, itemID string) error {
	r.transition.RLock()
	defer r.transition.RUnlock()

	r.mu.Lock()
	items, item, ok := r.st.items.Remove(itemID)
	if !ok {
		r.mu.Unlock()
		return nil
	}
	r.st.items = items
	st := r.st
	t := r.ticketFor(st, item.Key())
	r.mu.Unlock()

	err := r.persist(ctx, t, st, r.settleKey(item.Key(), true), func(ctx context.Context) error {
		return r.remote.Remove(ctx, st.userID, item.Key())
	})
	r.report(ctx, notify.ActionRemove, st, item, 0, err)
	return err
}

// Clear empties the cart.
func (r *Reconciler) Clear(ctx context.Context) error {
	r.transition.RLock()
	defer r.transition.RUnlock()

	r.mu.Lock()
	r.st.items = r.st.items.Clear()
	st := r.st
	var t ticket
	if st.kind == domain.OwnerAnonymous {
		t = r.queue.enqueue(localKey)
	} else {
		t = r.queue.enqueueAll()
	}
	r.mu.Unlock()

	err := r.persist(ctx, t, st, r.settleAll(), func(ctx context.Context) error {
		return r.remote.Clear(ctx, st.userID)
	})
	r.report(ctx, notify.ActionClear, st, domain.LineItem{}, 0, err)
	return err
}

// Refresh replaces the authenticated projection with the remote cart. It waits for
// queued writes first, pushes unsynced keys again, and keeps the projection if it
// changed while the read was in flight. Keys that still could not be written keep
// their in-memory rows. Anonymous carts are left alone.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.transition.RLock()
	defer r.transition.RUnlock()

	r.mu.Lock()
	st := r.st
	if st.kind != domain.OwnerAuthenticated {
		r.mu.Unlock()
		return nil
	}
	t := r.queue.enqueueAll()
	r.mu.Unlock()

	return t.run(ctx, func() error {
		if err := r.resync(ctx, st); err != nil {
			r.log.Warn("unsynced cart writes still failing", "user_id", st.userID, "error", err)
		}
		remote, err := r.remote.List(ctx, st.userID)
		if err != nil {
			return err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if lineitem.Same(r.st.items, st.items) {
			r.st.items = r.overlayLocked(remote)
		}
		return nil
	}, nil)
}

// ReloadAfterCheckout reloads the projection of userID's cart after a completed
// checkout emptied its remote rows. Unsynced writes belong to the checked-out cart
// and are dropped. It reports false when the cart is not signed in as userID.
func (r *Reconciler) ReloadAfterCheckout(ctx context.Context, userID string) (bool, error) {
	r.transition.RLock()
	defer r.transition.RUnlock()

	r.mu.Lock()
	st := r.st
	if st.kind != domain.OwnerAuthenticated || st.userID != userID {
		r.mu.Unlock()
		return false, nil
	}
	t := r.queue.enqueueAll()
	r.mu.Unlock()

	return true, t.run(ctx, func() error {
		r.mu.Lock()
		clear(r.unsynced)
		r.clearPending = false
		r.mu.Unlock()

		remote, err := r.remote.List(ctx, userID)
		if err != nil {
			return err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if lineitem.Same(r.st.items, st.items) {
			r.st.items = lineitem.Of(remote...)
		}
		return nil
	}, nil)
}

// resync writes the rows of st for every unsynced key as absolute values. It runs
// behind a barrier, so st holds every change already queued and nothing else writes.
func (r *Reconciler) resync(ctx context.Context, st state) error {
	r.mu.Lock()
	clearing := r.clearPending
	keys := slices.Collect(maps.Keys(r.unsynced))
	r.mu.Unlock()

	if clearing {
		if err := r.remote.Clear(ctx, st.userID); err != nil {
			return err
		}
		keys = keys[:0]
		r.mu.Lock()
		r.clearPending = false
		clear(r.unsynced)
		for _, item := range st.items {
			r.unsynced[item.Key()] = struct{}{}
			keys = append(keys, item.Key())
		}
		r.mu.Unlock()
	}

	var errs []error
	for _, key := range keys {
		var err error
		if i, ok := st.items.IndexOfKey(key); ok {
			_, err = r.remote.Upsert(ctx, st.userID, st.items[i])
		} else {
			err = r.remote.Remove(ctx, st.userID, key)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		r.mu.Lock()
		delete(r.unsynced, key)
		r.mu.Unlock()
	}
	return errors.Join(errs...)
}

// overlayLocked merges remote rows with the in-memory rows of unsynced keys.
// r.mu must be held.
func (r *Reconciler) overlayLocked(remote []domain.LineItem) lineitem.Items {
	if r.clearPending {
		return r.st.items
	}
	if len(r.unsynced) == 0 {
		return lineitem.Of(remote...)
	}
	out := make([]domain.LineItem, 0, len(remote)+len(r.unsynced))
	seen := make(map[domain.Key]struct{}, len(remote))
	for _, row := range remote {
		key := row.Key()
		seen[key] = struct{}{}
		if _, ok := r.unsynced[key]; !ok {
			out = append(out, row)
			continue
		}
		if i, ok := r.st.items.IndexOfKey(key); ok {
			out = append(out, r.st.items[i])
		}
	}
	for _, item := range r.st.items {
		key := item.Key()
		if _, ok := r.unsynced[key]; !ok {
			continue
		}
		if _, ok := seen[key]; !ok {
			out = append(out, item)
		}
	}
	return lineitem.Of(out...)
}

// settleKey returns the hook that records the outcome of a write to key. Only an
// absolute write can bring an unsynced key back in step.
func (r *Reconciler) settleKey(key domain.Key, absolute bool) func(error) {
	r.mu.Lock()
	epoch := r.syncEpoch
	r.mu.Unlock()
	return func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.syncEpoch != epoch {
			return
		}
		switch {
		case err != nil:
			r.unsynced[key] = struct{}{}
		case absolute:
			delete(r.unsynced, key)
		}
	}
}

func (r *Reconciler) settleAll() func(error) {
	r.mu.Lock()
	epoch := r.syncEpoch
	r.mu.Unlock()
	return func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.syncEpoch != epoch {
			return
		}
		clear(r.unsynced)
		r.clearPending = err != nil
	}
}

// persist runs the write for st once the ticket's turn comes. Anonymous carts save
// the latest sequence locally and never fail. For authenticated carts settle sees
// the outcome in queue order, including a write skipped because ctx ended.
func (r *Reconciler) persist(ctx context.Context, t ticket, st state, settle func(error), write func(context.Context) error) error {
	if st.kind == domain.OwnerAnonymous {
		settle = nil
	}
	err := t.run(ctx, func() error {
		if st.kind == domain.OwnerAnonymous {
			r.saveLocal(ctx, st.sessionID)
			return nil
		}
		err := write(ctx)
		settle(err)
		return err
	}, settle)
	if err == nil {
		return nil
	}
	if st.kind == domain.OwnerAnonymous {
		r.log.Warn("local save skipped", "error", err)
		return nil
	}
	if !errors.Is(err, domain.ErrRemoteUnavailable) && !errors.Is(err, domain.ErrInvalidQuantity) {
		err = fmt.Errorf("%w: %w", domain.ErrRemoteUnavailable, err)
	}
	return err
}

func (r *Reconciler) saveLocal(ctx context.Context, sessionID string) {
	r.mu.Lock()
	items, kind := r.st.items, r.st.kind
	r.mu.Unlock()
	if kind != domain.OwnerAnonymous {
		return
	}
	if err := r.local.Save(ctx, sessionID, items); err != nil {
		r.log.Warn("local cart save failed", "error", err)
	}
}

func (r *Reconciler) report(ctx context.Context, action notify.Action, st state, item domain.LineItem, quantity int, err error) {
	e := notify.Event{
		Level:     notify.LevelSuccess,
		Action:    action,
		SessionID: st.sessionID,
		UserID:    st.userID,
		ProductID: item.ProductID,
		Variant:   item.Variant,
		Quantity:  quantity,
		At:        now().UTC(),
	}
	if err != nil {
		e.Level = notify.LevelError
		e.Error = err.Error()
		r.log.Warn("cart write failed", "action", string(action), "user_id", st.userID, "error", err)
	}
	r.notifier.Notify(ctx, e)
}
