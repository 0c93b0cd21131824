// Package identity maps the current visitor, guest or signed-in user, to the storage
// partition that holds their cart and wishlist.
package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/norun9/shopstate/kvstore"
)

// Domain names a ledger family.
type Domain string

const (
	DomainCart     Domain = "cart"
	DomainWishlist Domain = "wishlist"
)

// Domains lists every ledger family in migration order.
var Domains = []Domain{DomainCart, DomainWishlist}

// UserKey is the partition of an authenticated user's ledger.
func UserKey(d Domain, userID string) string { return fmt.Sprintf("%s-%s", d, userID) }

// GuestKey is the partition of a guest ledger.
func GuestKey(d Domain, token string) string { return fmt.Sprintf("guest-%s-%s", d, token) }

// PointerKey holds the current guest token for a domain.
func PointerKey(d Domain) string { return fmt.Sprintf("current-guest-%s-key", d) }

// FallbackKey is used when the store cannot be read or written.
func FallbackKey(d Domain) string { return fmt.Sprintf("guest-%s", d) }

// IdentityContext carries the visitor identity and the sources the resolver draws on.
// Zero-valued fields get defaults.
type IdentityContext struct {
	UserID string
	Now    func() time.Time
	Suffix func() string
}

func (ic IdentityContext) withDefaults() IdentityContext {
	if ic.Now == nil {
		ic.Now = time.Now
	}
	if ic.Suffix == nil {
		ic.Suffix = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:9] }
	}
	return ic
}

// Resolver derives partition keys for one browser install.
type Resolver struct {
	store kvstore.IKVStore
	log   logrus.FieldLogger

	mu    sync.RWMutex
	ident IdentityContext
}

// NewResolver constructor.
func NewResolver(store kvstore.IKVStore, ident IdentityContext, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ident = ident.withDefaults()
	ident.UserID = strings.TrimSpace(ident.UserID)
	return &Resolver{store: store, ident: ident, log: log.WithField("component", "identity")}
}

// UserID returns the authenticated user, or "" for a guest.
func (r *Resolver) UserID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ident.UserID
}

// SetUserID switches the resolver to userID; "" returns it to guest mode.
func (r *Resolver) SetUserID(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ident.UserID = strings.TrimSpace(userID)
}

// ResolvePartitionKey returns the partition for domain. It never fails: storage errors
// degrade to FallbackKey.
func (r *Resolver) ResolvePartitionKey(ctx context.Context, d Domain) string {
	r.mu.RLock()
	ident := r.ident
	r.mu.RUnlock()

	if ident.UserID != "" {
		return UserKey(d, ident.UserID)
	}

	token, ok, err := r.GuestToken(ctx, d)
	if err != nil {
		r.log.WithError(err).WithField("domain", d).Warn("guest token unreadable, using fallback partition")
		return FallbackKey(d)
	}
	if ok {
		return GuestKey(d, token)
	}

	token = fmt.Sprintf("%d-%s", ident.Now().UnixMilli(), ident.Suffix())
	if err := r.store.Set(ctx, PointerKey(d), token); err != nil {
		r.log.WithError(err).WithField("domain", d).Warn("guest token not persisted, using fallback partition")
		return FallbackKey(d)
	}
	r.log.WithFields(logrus.Fields{"domain": d, "token": token}).Debug("new guest identity")
	return GuestKey(d, token)
}

// GuestToken reads the recorded guest token without generating one.
func (r *Resolver) GuestToken(ctx context.Context, d Domain) (string, bool, error) {
	token, ok, err := r.store.Get(ctx, PointerKey(d))
	if err != nil {
		return "", false, err
	}
	if !ok || strings.TrimSpace(token) == "" {
		return "", false, nil
	}
	return token, true, nil
}

// ForgetGuest drops the guest token so the next guest visit starts a fresh identity.
func (r *Resolver) ForgetGuest(ctx context.Context, d Domain) error {
	return r.store.Remove(ctx, PointerKey(d))
}
