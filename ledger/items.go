// Package ledger holds the cart and wishlist state containers and their persisted form.
package ledger

import (
	"github.com/shopspring/decimal"
)

// Quantity bounds for a cart line.
const (
	MinQuantity = 1
	MaxQuantity = 10

	// CorruptionThreshold marks quantities that can only come from corrupted data.
	CorruptionThreshold = 100
)

// Product is the catalog record a ledger entry is seeded from.
type Product struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	Price  decimal.Decimal `json:"price"`
	Images []string        `json:"images"`
}

// CartItem is one cart line. Price is the value recorded when the product was added.
type CartItem struct {
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Images    []string        `json:"images"`
	Quantity  int             `json:"quantity"`
}

// LineTotal is Price × Quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// WishlistItem is a saved product snapshot.
type WishlistItem struct {
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Images    []string        `json:"images"`
}

// ClampQuantity forces q into [MinQuantity, MaxQuantity].
func ClampQuantity(q int) int {
	if q < MinQuantity {
		return MinQuantity
	}
	if q > MaxQuantity {
		return MaxQuantity
	}
	return q
}

func cartItemFrom(p Product, quantity int) CartItem {
	return CartItem{
		ProductID: p.ID,
		Title:     p.Title,
		Price:     p.Price,
		Images:    cloneImages(p.Images),
		Quantity:  ClampQuantity(quantity),
	}
}

func wishlistItemFrom(p Product) WishlistItem {
	return WishlistItem{
		ProductID: p.ID,
		Title:     p.Title,
		Price:     p.Price,
		Images:    cloneImages(p.Images),
	}
}

func cloneImages(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
