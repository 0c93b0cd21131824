// shopstate/ledger/cart.go

package ledger

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/norun9/shopstate/identity"
	"github.com/norun9/shopstate/kvstore"
)

const instrumentationName = "github.com/norun9/shopstate/ledger"

// ErrMissingProductID is returned when a product without an id is added.
var ErrMissingProductID = errors.New("product id is required")

// PartitionResolver picks the storage partition for the current visitor.
type PartitionResolver interface {
	ResolvePartitionKey(ctx context.Context, d identity.Domain) string
}

// DataCorruptionError describes a persisted cart whose quantities could not have been written
// by a legitimate mutation.
type DataCorruptionError struct {
	Key         string
	MaxQuantity int
}

// Error names the key and the largest quantity found.
func (e *DataCorruptionError) Error() string {
	return fmt.Sprintf("cart %q holds quantity %d (limit %d)", e.Key, e.MaxQuantity, MaxQuantity)
}

// Cart is the cart ledger for one browser install. Mutators change memory only;
// Persist writes the list to the resolved partition.
type Cart struct {
	store    kvstore.IKVStore
	resolver PartitionResolver
	log      logrus.FieldLogger
	repairs  metric.Int64Counter

	items      []CartItem
	dirty      bool
	lastRepair *DataCorruptionError
}

// NewCart constructor. The cart starts empty; call Load to read the persisted list.
func NewCart(store kvstore.IKVStore, resolver PartitionResolver, log logrus.FieldLogger) *Cart {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("ledger", identity.DomainCart)

	repairs, err := otel.Meter(instrumentationName).Int64Counter(
		"shopstate.cart.repairs",
		metric.WithDescription("Persisted carts clamped after quantity corruption was detected"),
	)
	if err != nil {
		log.WithError(err).Warn("cart repair counter unavailable")
	}

	return &Cart{store: store, resolver: resolver, log: log, repairs: repairs}
}

// PartitionKey is the key the cart currently loads from and persists to.
func (c *Cart) PartitionKey(ctx context.Context) string {
	return c.resolver.ResolvePartitionKey(ctx, identity.DomainCart)
}

// AddToCart inserts p or increases its quantity by quantity (values below 1 count as 1).
// The resulting quantity is capped at MaxQuantity.
func (c *Cart) AddToCart(p Product, quantity int) error {
	if p.ID == "" {
		return ErrMissingProductID
	}
	if quantity < MinQuantity {
		quantity = MinQuantity
	}
	if i := c.index(p.ID); i >= 0 {
		c.items[i].Quantity = ClampQuantity(c.items[i].Quantity + quantity)
	} else {
		c.items = append(c.items, cartItemFrom(p, quantity))
	}
	c.dirty = true
	return nil
}

// RemoveFromCart deletes the line for productID. It reports whether a line was removed.
func (c *Cart) RemoveFromCart(productID string) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.dirty = true
	return true
}

// UpdateQuantity sets the quantity of productID; q <= 0 removes the line.
// It reports whether the cart held productID.
func (c *Cart) UpdateQuantity(productID string, q int) bool {
	if q <= 0 {
		return c.RemoveFromCart(productID)
	}
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.items[i].Quantity = ClampQuantity(q)
	c.dirty = true
	return true
}

// ClearCart empties the cart.
func (c *Cart) ClearCart() {
	c.items = nil
	c.dirty = true
}

// TotalItems is the sum of quantities.
func (c *Cart) TotalItems() int {
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// TotalPrice is the pre-discount subtotal.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []CartItem {
	out := make([]CartItem, len(c.items))
	for i, it := range c.items {
		it.Images = cloneImages(it.Images)
		out[i] = it
	}
	return out
}

// Item returns the line for productID.
func (c *Cart) Item(productID string) (CartItem, bool) {
	i := c.index(productID)
	if i < 0 {
		return CartItem{}, false
	}
	it := c.items[i]
	it.Images = cloneImages(it.Images)
	return it, true
}

// Len is the number of distinct products.
func (c *Cart) Len() int { return len(c.items) }

// Dirty reports whether memory has changes not yet persisted.
func (c *Cart) Dirty() bool { return c.dirty }

// LastRepair returns the corruption found by the most recent Load, if any.
func (c *Cart) LastRepair() *DataCorruptionError { return c.lastRepair }

// Persist writes the full item list to the current partition.
func (c *Cart) Persist(ctx context.Context) error {
	key := c.PartitionKey(ctx)
	if err := WriteCartItems(ctx, c.store, key, c.items); err != nil {
		return errors.Wrap(err, "persist cart")
	}
	c.dirty = false
	return nil
}

// Load replaces memory with the list persisted for the current partition.
// A list holding any quantity above CorruptionThreshold is clamped as a whole and
// written back before it is loaded. On error the cart is left empty.
func (c *Cart) Load(ctx context.Context) error {
	key := c.PartitionKey(ctx)
	c.items = nil
	c.dirty = false
	c.lastRepair = nil

	items, _, err := ReadCartItems(ctx, c.store, key)
	if err != nil {
		return errors.Wrap(err, "load cart")
	}

	maxQ := 0
	for _, it := range items {
		if it.Quantity > maxQ {
			maxQ = it.Quantity
		}
	}

	if maxQ > CorruptionThreshold {
		for i := range items {
			if items[i].Quantity > MaxQuantity {
				items[i].Quantity = MaxQuantity
			}
		}
		items = normalizeCart(items)
		c.lastRepair = &DataCorruptionError{Key: key, MaxQuantity: maxQ}
		c.log.WithError(c.lastRepair).Warn("repairing corrupted cart quantities")
		if c.repairs != nil {
			c.repairs.Add(ctx, 1)
		}
		if err := WriteCartItems(ctx, c.store, key, items); err != nil {
			c.log.WithError(err).Warn("repaired cart not persisted")
			c.dirty = true
		}
		c.items = items
		return nil
	}

	normalized := normalizeCart(items)
	if len(normalized) != len(items) || !sameQuantities(normalized, items) {
		c.dirty = true
	}
	c.items = normalized
	return nil
}

func (c *Cart) index(productID string) int {
	for i, it := range c.items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// normalizeCart drops lines below MinQuantity, merges duplicate products and clamps quantities.
func normalizeCart(items []CartItem) []CartItem {
	out := make([]CartItem, 0, len(items))
	seen := make(map[string]int, len(items))
	for _, it := range items {
		if it.Quantity < MinQuantity {
			continue
		}
		if i, ok := seen[it.ProductID]; ok {
			out[i].Quantity = ClampQuantity(out[i].Quantity + it.Quantity)
			continue
		}
		it.Quantity = ClampQuantity(it.Quantity)
		seen[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

func sameQuantities(a, b []CartItem) bool {
	for i := range a {
		if a[i].ProductID != b[i].ProductID || a[i].Quantity != b[i].Quantity {
			return false
		}
	}
	return true
}

// MergeCart folds guest lines into user lines. Shared products add their quantities,
// guest-only products are appended, and every resulting quantity is capped at MaxQuantity.
func MergeCart(user, guest []CartItem) []CartItem {
	out := normalizeCart(user)
	idx := make(map[string]int, len(out)+len(guest))
	for i, it := range out {
		idx[it.ProductID] = i
	}
	for _, g := range guest {
		if g.Quantity < MinQuantity {
			continue
		}
		if i, ok := idx[g.ProductID]; ok {
			out[i].Quantity = ClampQuantity(out[i].Quantity + g.Quantity)
			continue
		}
		g.Quantity = ClampQuantity(g.Quantity)
		g.Images = cloneImages(g.Images)
		idx[g.ProductID] = len(out)
		out = append(out, g)
	}
	return out
}
