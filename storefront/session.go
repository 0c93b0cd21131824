// Package storefront wires the identity resolver, ledgers, coupon engine and migration
// coordinator into one session per browser install.
package storefront

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/norun9/shopstate/coupon"
	"github.com/norun9/shopstate/identity"
	"github.com/norun9/shopstate/kvstore"
	"github.com/norun9/shopstate/ledger"
	"github.com/norun9/shopstate/migration"
)

// ErrEmptyCart is returned by Checkout when there is nothing to buy.
var ErrEmptyCart = errors.New("cart is empty")

// Summary is the priced view of the cart.
type Summary struct {
	ItemCount int             `json:"itemCount"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
	Coupon    *coupon.Coupon  `json:"coupon,omitempty"`
}

// Receipt is what Checkout hands back before the cart is cleared.
type Receipt struct {
	UserID  string            `json:"userId,omitempty"`
	Items   []ledger.CartItem `json:"items"`
	Summary Summary           `json:"summary"`
}

// State is everything a client renders, taken at one instant.
type State struct {
	UserID        string                `json:"userId,omitempty"`
	Cart          []ledger.CartItem     `json:"cart"`
	Wishlist      []ledger.WishlistItem `json:"wishlist"`
	WishlistCount int                   `json:"wishlistCount"`
	Summary       Summary               `json:"summary"`
	CouponSuccess bool                  `json:"couponSuccess"`
	CouponError   string                `json:"couponError,omitempty"`
}

// Session is the shopping state of one browser install. Every exported method runs under
// the session lock and persists whatever it changed before returning.
type Session struct {
	mu sync.Mutex

	resolver *identity.Resolver
	cart     *ledger.Cart
	wishlist *ledger.Wishlist
	coupons  *coupon.Engine
	migrator *migration.Coordinator
	log      logrus.FieldLogger

	lastPersistErr error
}

// NewSession builds a session over store and loads both ledgers.
func NewSession(ctx context.Context, store kvstore.IKVStore, ident identity.IdentityContext, log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := ident.Now
	if now == nil {
		now = time.Now
	}
	resolver := identity.NewResolver(store, ident, log)
	s := &Session{
		resolver: resolver,
		cart:     ledger.NewCart(store, resolver, log),
		wishlist: ledger.NewWishlist(store, resolver, log),
		coupons:  coupon.NewEngine(now, log),
		migrator: migration.NewCoordinator(store, log),
		log:      log,
	}
	s.reload(ctx)
	return s
}

// CurrentUserID is the signed-in user, or "" for a guest.
func (s *Session) CurrentUserID() string {
	return s.resolver.UserID()
}

// AddToCart adds quantity of p to the cart.
func (s *Session) AddToCart(ctx context.Context, p ledger.Product, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cart.AddToCart(p, quantity); err != nil {
		return err
	}
	s.persistCart(ctx)
	return nil
}

// RemoveFromCart deletes productID from the cart.
func (s *Session) RemoveFromCart(ctx context.Context, productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := s.cart.RemoveFromCart(productID)
	if ok {
		s.persistCart(ctx)
	}
	return ok
}

// UpdateQuantity sets productID's quantity; q <= 0 removes it.
func (s *Session) UpdateQuantity(ctx context.Context, productID string, q int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := s.cart.UpdateQuantity(productID, q)
	if ok {
		s.persistCart(ctx)
	}
	return ok
}

// ClearCart empties the cart.
func (s *Session) ClearCart(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart.ClearCart()
	s.persistCart(ctx)
}

// CartItems returns the cart lines.
func (s *Session) CartItems() []ledger.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Items()
}

// AddToWishlist saves p; false when it was already saved.
func (s *Session) AddToWishlist(ctx context.Context, p ledger.Product) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := s.wishlist.AddToWishlist(p)
	if added {
		s.persistWishlist(ctx)
	}
	return added
}

// RemoveFromWishlist deletes productID from the wishlist.
func (s *Session) RemoveFromWishlist(ctx context.Context, productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := s.wishlist.RemoveFromWishlist(productID)
	if ok {
		s.persistWishlist(ctx)
	}
	return ok
}

// IsInWishlist reports whether productID is saved.
func (s *Session) IsInWishlist(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wishlist.IsInWishlist(productID)
}

// ClearWishlist removes every saved product.
func (s *Session) ClearWishlist(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wishlist.ClearWishlist()
	s.persistWishlist(ctx)
}

// WishlistItems returns the saved products.
func (s *Session) WishlistItems() []ledger.WishlistItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wishlist.Items()
}

// WishlistCount is the number of saved products.
func (s *Session) WishlistCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wishlist.Count()
}

// MoveToCart moves a saved product into the cart.
func (s *Session) MoveToCart(ctx context.Context, productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.wishlist.MoveToCart(productID, s.cart) {
		return false
	}
	s.persistCart(ctx)
	s.persistWishlist(ctx)
	return true
}

// ApplyCoupon applies raw. On rejection the returned error is a coupon.UserInputError.
func (s *Session) ApplyCoupon(raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coupons.ApplyCoupon(raw) {
		return nil
	}
	return s.coupons.LastError()
}

// RemoveCoupon drops the applied coupon.
func (s *Session) RemoveCoupon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons.RemoveCoupon()
}

// CouponStatus exposes the transient coupon messages.
func (s *Session) CouponStatus() (success bool, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupons.Success(), s.coupons.ErrorMessage()
}

// State snapshots the session under one lock.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		UserID:        s.resolver.UserID(),
		Cart:          s.cart.Items(),
		Wishlist:      s.wishlist.Items(),
		WishlistCount: s.wishlist.Count(),
		Summary:       s.summary(),
		CouponSuccess: s.coupons.Success(),
		CouponError:   s.coupons.ErrorMessage(),
	}
}

// Summary prices the cart with the applied coupon.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary()
}

func (s *Session) summary() Summary {
	subtotal := s.cart.TotalPrice()
	discount := s.coupons.CalculateDiscount(subtotal).Round(2)
	sum := Summary{
		ItemCount: s.cart.TotalItems(),
		Subtotal:  subtotal,
		Discount:  discount,
		Total:     subtotal.Sub(discount),
	}
	if c, ok := s.coupons.AppliedCoupon(); ok {
		sum.Coupon = &c
	}
	return sum
}

// Checkout returns the receipt for the current cart, then empties the cart and drops the
// coupon.
func (s *Session) Checkout(ctx context.Context) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cart.Len() == 0 {
		return Receipt{}, ErrEmptyCart
	}
	r := Receipt{
		UserID:  s.resolver.UserID(),
		Items:   s.cart.Items(),
		Summary: s.summary(),
	}
	s.cart.ClearCart()
	s.persistCart(ctx)
	s.coupons.RemoveCoupon()
	s.log.WithFields(logrus.Fields{"user_id": r.UserID, "total": r.Summary.Total.String()}).Info("checkout completed")
	return r, nil
}

// Login switches the session to userID, migrates the guest ledgers into the user's and
// reloads both ledgers. Migration failures are logged and returned in the result; the
// session still switches to the user.
func (s *Session) Login(ctx context.Context, userID string) (migration.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID == "" {
		return migration.Result{}, errors.New("user id is required")
	}
	res, err := s.migrator.Migrate(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("guest data not migrated")
	}
	s.resolver.SetUserID(userID)
	s.reload(ctx)
	return res, nil
}

// Logout returns the session to a fresh guest identity.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resolver.SetUserID("")
	for _, d := range identity.Domains {
		if err := s.resolver.ForgetGuest(ctx, d); err != nil {
			s.log.WithError(err).WithField("domain", d).Warn("guest pointer not cleared")
		}
	}
	s.coupons.RemoveCoupon()
	s.reload(ctx)
}

// LastPersistError is the most recent persistence failure, nil once a later persist succeeds.
func (s *Session) LastPersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPersistErr
}

// LastRepair reports corruption repaired by the latest cart load.
func (s *Session) LastRepair() *ledger.DataCorruptionError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.LastRepair()
}

func (s *Session) reload(ctx context.Context) {
	if err := s.cart.Load(ctx); err != nil {
		s.log.WithError(err).Warn("cart not loaded, continuing with an empty cart")
	}
	if err := s.wishlist.Load(ctx); err != nil {
		s.log.WithError(err).Warn("wishlist not loaded, continuing with an empty wishlist")
	}
}

func (s *Session) persistCart(ctx context.Context) {
	s.lastPersistErr = s.cart.Persist(ctx)
	if s.lastPersistErr != nil {
		s.log.WithError(s.lastPersistErr).Warn("cart change kept in memory only")
	}
}

func (s *Session) persistWishlist(ctx context.Context) {
	s.lastPersistErr = s.wishlist.Persist(ctx)
	if s.lastPersistErr != nil {
		s.log.WithError(s.lastPersistErr).Warn("wishlist change kept in memory only")
	}
}
