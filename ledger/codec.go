package ledger

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/norun9/shopstate/kvstore"
)

// itemRecord is the persisted shape of both cart and wishlist entries.
type itemRecord struct {
	ProductID string   `json:"productId"`
	Title     string   `json:"title"`
	Price     float64  `json:"price"`
	Images    []string `json:"images"`
	Quantity  int      `json:"quantity,omitempty"`
}

type cartEnvelope struct {
	State struct {
		Items []itemRecord `json:"items"`
	} `json:"state"`
}

type wishlistEnvelope struct {
	State struct {
		Wishlist []itemRecord `json:"wishlist"`
	} `json:"state"`
}

// ReadCartItems loads the raw cart list stored under key. found is false when the key is absent.
// No clamping or repair is applied.
func ReadCartItems(ctx context.Context, store kvstore.IKVStore, key string) (items []CartItem, found bool, err error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	var env cartEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, true, errors.Wrapf(err, "decode cart %q", key)
	}
	items = make([]CartItem, 0, len(env.State.Items))
	for _, r := range env.State.Items {
		if r.ProductID == "" {
			continue
		}
		items = append(items, CartItem{
			ProductID: r.ProductID,
			Title:     r.Title,
			Price:     decimal.NewFromFloat(r.Price),
			Images:    cloneImages(r.Images),
			Quantity:  r.Quantity,
		})
	}
	return items, true, nil
}

// WriteCartItems persists items under key.
func WriteCartItems(ctx context.Context, store kvstore.IKVStore, key string, items []CartItem) error {
	var env cartEnvelope
	env.State.Items = make([]itemRecord, 0, len(items))
	for _, it := range items {
		env.State.Items = append(env.State.Items, itemRecord{
			ProductID: it.ProductID,
			Title:     it.Title,
			Price:     it.Price.InexactFloat64(),
			Images:    cloneImages(it.Images),
			Quantity:  it.Quantity,
		})
	}
	data, err := json.Marshal(env)
	if err != nil {
		return errors.Wrapf(err, "encode cart %q", key)
	}
	return store.Set(ctx, key, string(data))
}

// ReadWishlistItems loads the wishlist stored under key.
func ReadWishlistItems(ctx context.Context, store kvstore.IKVStore, key string) (items []WishlistItem, found bool, err error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	var env wishlistEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, true, errors.Wrapf(err, "decode wishlist %q", key)
	}
	items = make([]WishlistItem, 0, len(env.State.Wishlist))
	for _, r := range env.State.Wishlist {
		if r.ProductID == "" {
			continue
		}
		items = append(items, WishlistItem{
			ProductID: r.ProductID,
			Title:     r.Title,
			Price:     decimal.NewFromFloat(r.Price),
			Images:    cloneImages(r.Images),
		})
	}
	return items, true, nil
}

// WriteWishlistItems persists items under key.
func WriteWishlistItems(ctx context.Context, store kvstore.IKVStore, key string, items []WishlistItem) error {
	var env wishlistEnvelope
	env.State.Wishlist = make([]itemRecord, 0, len(items))
	for _, it := range items {
		env.State.Wishlist = append(env.State.Wishlist, itemRecord{
			ProductID: it.ProductID,
			Title:     it.Title,
			Price:     it.Price.InexactFloat64(),
			Images:    cloneImages(it.Images),
		})
	}
	data, err := json.Marshal(env)
	if err != nil {
		return errors.Wrapf(err, "encode wishlist %q", key)
	}
	return store.Set(ctx, key, string(data))
}
