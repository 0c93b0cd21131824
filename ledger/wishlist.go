package ledger

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/norun9/shopstate/identity"
	"github.com/norun9/shopstate/kvstore"
)

// Wishlist is the deduplicated set of saved products for one browser install.
type Wishlist struct {
	store    kvstore.IKVStore
	resolver PartitionResolver
	log      logrus.FieldLogger

	items []WishlistItem
	dirty bool
}

// NewWishlist constructor.
func NewWishlist(store kvstore.IKVStore, resolver PartitionResolver, log logrus.FieldLogger) *Wishlist {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Wishlist{store: store, resolver: resolver, log: log.WithField("ledger", identity.DomainWishlist)}
}

// PartitionKey is the key the wishlist currently loads from and persists to.
func (w *Wishlist) PartitionKey(ctx context.Context) string {
	return w.resolver.ResolvePartitionKey(ctx, identity.DomainWishlist)
}

// AddToWishlist saves p. It returns false, changing nothing, when p is already saved
// or has no id.
func (w *Wishlist) AddToWishlist(p Product) bool {
	if p.ID == "" || w.IsInWishlist(p.ID) {
		return false
	}
	w.items = append(w.items, wishlistItemFrom(p))
	w.dirty = true
	return true
}

// RemoveFromWishlist deletes productID if present.
func (w *Wishlist) RemoveFromWishlist(productID string) bool {
	for i, it := range w.items {
		if it.ProductID == productID {
			w.items = append(w.items[:i], w.items[i+1:]...)
			w.dirty = true
			return true
		}
	}
	return false
}

// IsInWishlist reports whether productID is saved.
func (w *Wishlist) IsInWishlist(productID string) bool {
	_, ok := w.Item(productID)
	return ok
}

// Item returns the saved entry for productID.
func (w *Wishlist) Item(productID string) (WishlistItem, bool) {
	for _, it := range w.items {
		if it.ProductID == productID {
			it.Images = cloneImages(it.Images)
			return it, true
		}
	}
	return WishlistItem{}, false
}

// ClearWishlist removes every entry.
func (w *Wishlist) ClearWishlist() {
	w.items = nil
	w.dirty = true
}

// Count is the number of saved products.
func (w *Wishlist) Count() int { return len(w.items) }

// Items returns a copy of the entries in insertion order.
func (w *Wishlist) Items() []WishlistItem {
	out := make([]WishlistItem, len(w.items))
	for i, it := range w.items {
		it.Images = cloneImages(it.Images)
		out[i] = it
	}
	return out
}

// Dirty reports whether memory has changes not yet persisted.
func (w *Wishlist) Dirty() bool { return w.dirty }

// MoveToCart adds the saved product to cart with quantity 1 and removes it from the wishlist.
func (w *Wishlist) MoveToCart(productID string, cart *Cart) bool {
	it, ok := w.Item(productID)
	if !ok {
		return false
	}
	p := Product{ID: it.ProductID, Title: it.Title, Price: it.Price, Images: it.Images}
	if err := cart.AddToCart(p, 1); err != nil {
		return false
	}
	return w.RemoveFromWishlist(productID)
}

// Persist writes the wishlist to the current partition.
func (w *Wishlist) Persist(ctx context.Context) error {
	key := w.PartitionKey(ctx)
	if err := WriteWishlistItems(ctx, w.store, key, w.items); err != nil {
		return errors.Wrap(err, "persist wishlist")
	}
	w.dirty = false
	return nil
}

// Load replaces memory with the wishlist persisted for the current partition.
func (w *Wishlist) Load(ctx context.Context) error {
	key := w.PartitionKey(ctx)
	w.items = nil
	w.dirty = false

	items, _, err := ReadWishlistItems(ctx, w.store, key)
	if err != nil {
		return errors.Wrap(err, "load wishlist")
	}
	w.items = UnionWishlist(nil, items)
	return nil
}

// UnionWishlist returns base followed by the entries of extra whose product is not already
// present. Entries already in base are never overwritten.
func UnionWishlist(base, extra []WishlistItem) []WishlistItem {
	out := make([]WishlistItem, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]WishlistItem{base, extra} {
		for _, it := range list {
			if _, ok := seen[it.ProductID]; ok {
				continue
			}
			seen[it.ProductID] = struct{}{}
			out = append(out, it)
		}
	}
	return out
}
