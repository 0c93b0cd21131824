// Package migration merges a guest's cart and wishlist into the ledgers of the user who
// just signed in, once per user per browser install.
package migration

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/norun9/shopstate/identity"
	"github.com/norun9/shopstate/kvstore"
	"github.com/norun9/shopstate/ledger"
)

// Outcome describes what happened to one domain during a migration.
type Outcome string

const (
	OutcomeNoGuestData     Outcome = "no_guest_data"
	OutcomeAlreadyMigrated Outcome = "already_migrated"
	OutcomeMerged          Outcome = "merged"
	OutcomeFailed          Outcome = "failed"
)

// DoneKey is the per-user idempotency flag for a domain.
func DoneKey(d identity.Domain, userID string) string {
	if d == identity.DomainCart {
		return fmt.Sprintf("migration-done-%s", userID)
	}
	return fmt.Sprintf("%s-migration-done-%s", d, userID)
}

// DomainResult reports one domain's migration.
type DomainResult struct {
	Domain  identity.Domain
	Outcome Outcome
	// GuestItems is the number of guest entries folded into the user ledger.
	GuestItems int
	Err        error
}

// Result reports a full migration.
type Result struct {
	UserID   string
	Cart     DomainResult
	Wishlist DomainResult
}

// Err returns the first domain error.
func (r Result) Err() error {
	if r.Cart.Err != nil {
		return r.Cart.Err
	}
	return r.Wishlist.Err
}

// Coordinator runs guest-to-user migrations against one store.
type Coordinator struct {
	store  kvstore.IKVStore
	log    logrus.FieldLogger
	tracer trace.Tracer
	runs   metric.Int64Counter
}

// NewCoordinator constructor.
func NewCoordinator(store kvstore.IKVStore, log logrus.FieldLogger) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "migration")

	runs, err := otel.Meter("github.com/norun9/shopstate/migration").Int64Counter(
		"shopstate.migrations",
		metric.WithDescription("Guest ledger migrations by domain and outcome"),
	)
	if err != nil {
		log.WithError(err).Warn("migration counter unavailable")
	}
	return &Coordinator{
		store:  store,
		log:    log,
		tracer: otel.Tracer("shopstate/migration"),
		runs:   runs,
	}
}

// Migrate merges the recorded guest cart and wishlist into userID's ledgers.
// Storage failures never panic or partially write a user ledger; they are reported in the
// Result and as the returned error.
func (c *Coordinator) Migrate(ctx context.Context, userID string) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "Migrate")
	defer span.End()
	span.SetAttributes(attribute.String("app.user_id", userID))

	res := Result{UserID: userID}
	if userID == "" {
		err := errors.New("migration requires a user id")
		res.Cart = DomainResult{Domain: identity.DomainCart, Outcome: OutcomeFailed, Err: err}
		res.Wishlist = DomainResult{Domain: identity.DomainWishlist, Outcome: OutcomeFailed, Err: err}
		return res, err
	}

	res.Cart = c.run(ctx, identity.DomainCart, userID, c.mergeCart)
	res.Wishlist = c.run(ctx, identity.DomainWishlist, userID, c.mergeWishlist)

	if err := res.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	return res, nil
}

// mergeFunc reads the guest ledger at guestKey, merges it into userKey and returns the number
// of guest entries merged. found is false when the guest ledger is absent or empty.
type mergeFunc func(ctx context.Context, guestKey, userKey string, dryRun bool) (merged int, found bool, err error)

func (c *Coordinator) run(ctx context.Context, d identity.Domain, userID string, merge mergeFunc) DomainResult {
	res := c.migrateDomain(ctx, d, userID, merge)

	log := c.log.WithFields(logrus.Fields{"domain": d, "user_id": userID, "outcome": res.Outcome})
	if res.Err != nil {
		log.WithError(res.Err).Warn("guest migration failed")
	} else {
		log.WithField("guest_items", res.GuestItems).Info("guest migration finished")
	}
	if c.runs != nil {
		c.runs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("domain", string(d)),
			attribute.String("outcome", string(res.Outcome)),
		))
	}
	return res
}

func (c *Coordinator) migrateDomain(ctx context.Context, d identity.Domain, userID string, merge mergeFunc) DomainResult {
	res := DomainResult{Domain: d}
	fail := func(err error) DomainResult {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}

	// 1) Find the guest identity.
	pointer := identity.PointerKey(d)
	token, ok, err := c.store.Get(ctx, pointer)
	if err != nil {
		return fail(errors.Wrapf(err, "read %s guest pointer", d))
	}
	if !ok || token == "" {
		res.Outcome = OutcomeNoGuestData
		return res
	}
	guestKey := identity.GuestKey(d, token)
	userKey := identity.UserKey(d, userID)
	doneKey := DoneKey(d, userID)

	// 2) Skip the merge when this user has already absorbed a guest ledger.
	_, done, err := c.store.Get(ctx, doneKey)
	if err != nil {
		return fail(errors.Wrapf(err, "read %s migration flag", d))
	}

	if done {
		_, found, err := merge(ctx, guestKey, userKey, true)
		if err != nil {
			return fail(err)
		}
		if !found {
			res.Outcome = OutcomeNoGuestData
			return res
		}
		res.Outcome = OutcomeAlreadyMigrated
	} else {
		// 3) Merge and persist under the user partition.
		prev, hadPrev, err := c.store.Get(ctx, userKey)
		if err != nil {
			return fail(errors.Wrapf(err, "read %s user ledger", d))
		}
		merged, found, err := merge(ctx, guestKey, userKey, false)
		if err != nil {
			return fail(err)
		}
		if !found {
			res.Outcome = OutcomeNoGuestData
			return res
		}

		// 4) Mark done. Without the flag the merge is undone and the guest data kept,
		// so a retry starts from the pre-migration state.
		if err := c.store.Set(ctx, doneKey, "true"); err != nil {
			err = errors.Wrapf(err, "set %s migration flag", d)
			if rerr := c.restore(ctx, userKey, prev, hadPrev); rerr != nil {
				c.log.WithError(rerr).WithField("key", userKey).Error("merged ledger not rolled back")
			}
			return fail(err)
		}
		res.Outcome = OutcomeMerged
		res.GuestItems = merged
	}

	// 5) Drop the guest ledger and its pointer.
	if err := c.store.Remove(ctx, guestKey); err != nil && res.Err == nil {
		res.Err = errors.Wrapf(err, "remove %s guest ledger", d)
	}
	if err := c.store.Remove(ctx, pointer); err != nil && res.Err == nil {
		res.Err = errors.Wrapf(err, "remove %s guest pointer", d)
	}
	return res
}

// restore puts back the raw value userKey held before a merge.
func (c *Coordinator) restore(ctx context.Context, userKey, prev string, hadPrev bool) error {
	if hadPrev {
		return c.store.Set(ctx, userKey, prev)
	}
	return c.store.Remove(ctx, userKey)
}

func (c *Coordinator) mergeCart(ctx context.Context, guestKey, userKey string, dryRun bool) (int, bool, error) {
	guest, _, err := ledger.ReadCartItems(ctx, c.store, guestKey)
	if err != nil {
		return 0, false, errors.Wrap(err, "read guest cart")
	}
	if len(guest) == 0 || dryRun {
		return 0, len(guest) > 0, nil
	}
	user, _, err := ledger.ReadCartItems(ctx, c.store, userKey)
	if err != nil {
		return 0, false, errors.Wrap(err, "read user cart")
	}
	if err := ledger.WriteCartItems(ctx, c.store, userKey, ledger.MergeCart(user, guest)); err != nil {
		return 0, false, errors.Wrap(err, "write merged cart")
	}
	return len(guest), true, nil
}

func (c *Coordinator) mergeWishlist(ctx context.Context, guestKey, userKey string, dryRun bool) (int, bool, error) {
	guest, _, err := ledger.ReadWishlistItems(ctx, c.store, guestKey)
	if err != nil {
		return 0, false, errors.Wrap(err, "read guest wishlist")
	}
	if len(guest) == 0 || dryRun {
		return 0, len(guest) > 0, nil
	}
	user, _, err := ledger.ReadWishlistItems(ctx, c.store, userKey)
	if err != nil {
		return 0, false, errors.Wrap(err, "read user wishlist")
	}
	if err := ledger.WriteWishlistItems(ctx, c.store, userKey, ledger.UnionWishlist(user, guest)); err != nil {
		return 0, false, errors.Wrap(err, "write merged wishlist")
	}
	return len(guest), true, nil
}
