package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandbeige/storefront/internal/domain"
	"github.com/sandbeige/storefront/internal/identity"
	"github.com/sandbeige/storefront/internal/lineitem"
	"github.com/sandbeige/storefront/internal/notify"
	"golang.org/x/sync/errgroup"
)

// mergeWriteLimit caps concurrent row writes while a merge is written back.
const mergeWriteLimit = 8

// Apply moves the cart to the state that matches e:
//
//	anonymous     + signed in  -> merge, then authenticated
//	authenticated + signed out -> anonymous with an empty cart
//	authenticated + other user -> sign out, then merge an empty cart
//
// An event that matches the current state is ignored, so the merge runs once per
// sign-in. When the merge fails the cart stays anonymous and the event can be retried.
func (r *Reconciler) Apply(ctx context.Context, e identity.Event) error {
	r.transition.Lock()
	defer r.transition.Unlock()

	r.mu.Lock()
	cur := r.st
	r.mu.Unlock()

	switch {
	case cur.kind == domain.OwnerAuthenticated && cur.userID == e.UserID:
		return nil
	case cur.kind == domain.OwnerAnonymous && !e.Authenticated():
		return nil
	case !e.Authenticated():
		r.signOut(ctx, cur)
		return nil
	case cur.kind == domain.OwnerAuthenticated:
		cur = r.signOut(ctx, cur)
	}
	return r.signIn(ctx, cur, e.UserID)
}

func (r *Reconciler) SignIn(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("sign in: empty user id")
	}
	return r.Apply(ctx, identity.SignedIn(userID))
}

func (r *Reconciler) SignOut(ctx context.Context) error {
	return r.Apply(ctx, identity.SignedOut())
}

// Watch applies identity events until ctx ends or events is closed. Failed
// transitions are logged and reported; the next event is still applied.
func (r *Reconciler) Watch(ctx context.Context, events <-chan identity.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.Apply(ctx, e); err != nil {
				r.log.Warn("identity transition failed", "user_id", e.UserID, "error", err)
			}
		}
	}
}

func (r *Reconciler) signIn(ctx context.Context, cur state, userID string) error {
	next := state{kind: domain.OwnerAuthenticated, userID: userID, sessionID: cur.sessionID}

	current, err := r.remote.List(ctx, userID)
	if err != nil {
		r.report(ctx, notify.ActionSignIn, next, domain.LineItem{}, 0, err)
		return err
	}

	merged := lineitem.Of(current...)
	if len(cur.items) > 0 {
		merged, err = r.merge(ctx, cur, userID, current)
		if err != nil {
			r.report(ctx, notify.ActionSignIn, next, domain.LineItem{}, 0, err)
			return err
		}
	}

	if fresh, err := r.remote.List(ctx, userID); err != nil {
		r.log.Warn("reload after merge failed, keeping merged cart", "user_id", userID, "error", err)
	} else {
		merged = lineitem.Of(fresh...)
	}

	next.items = merged
	r.mu.Lock()
	r.st = next
	r.resetSyncLocked()
	r.mu.Unlock()

	r.log.Info("cart signed in", "user_id", userID, "items", len(merged))
	r.report(ctx, notify.ActionSignIn, next, domain.LineItem{}, 0, nil)
	return nil
}

// merge writes the anonymous items into the remote cart and clears the local copy.
// The remote cart seen by the first attempt is kept as a receipt, and every attempt
// merges against it, so retries write the same absolute quantities.
func (r *Reconciler) merge(ctx context.Context, cur state, userID string, current []domain.LineItem) (lineitem.Items, error) {
	base, found, err := r.receipts.Load(ctx, userID, cur.sessionID)
	if err != nil {
		r.log.Warn("merge receipt load failed", "user_id", userID, "error", err)
		found = false
	}
	if !found {
		base = current
		if err := r.receipts.Save(ctx, userID, cur.sessionID, base); err != nil {
			r.log.Warn("merge receipt save failed", "user_id", userID, "error", err)
		}
	}

	_, plan := Merge(cur.items, base)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mergeWriteLimit)
	for _, row := range plan {
		g.Go(func() error {
			_, err := r.remote.Upsert(gctx, userID, row)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("merge into %s: %w", userID, err)
	}

	if err := r.local.Delete(ctx, cur.sessionID); err != nil {
		r.log.Warn("local cart delete failed", "error", err)
	}
	if err := r.receipts.Delete(ctx, userID, cur.sessionID); err != nil {
		r.log.Warn("merge receipt delete failed", "user_id", userID, "error", err)
	}
	return Apply(current, plan), nil
}

// signOut drops the authenticated projection. The local adapter is not repopulated
// from the discarded remote cart.
func (r *Reconciler) signOut(ctx context.Context, cur state) state {
	next := state{
		kind:      domain.OwnerAnonymous,
		sessionID: cur.sessionID,
		items:     lineitem.Items{},
	}
	r.mu.Lock()
	r.st = next
	r.resetSyncLocked()
	r.mu.Unlock()

	r.log.Info("cart signed out", "user_id", cur.userID)
	r.report(ctx, notify.ActionSignOut, cur, domain.LineItem{}, 0, nil)
	return next
}

func (r *Reconciler) resetSyncLocked() {
	clear(r.unsynced)
	r.clearPending = false
	r.syncEpoch++
}
