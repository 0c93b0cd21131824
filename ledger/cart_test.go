package ledger

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/norun9/shopstate/kvstore"
	"github.com/norun9/shopstate/kvstore/kvstoretest"
)

func quantities(items []CartItem) map[string]int {
	out := make(map[string]int, len(items))
	for _, it := range items {
		out[it.ProductID] = it.Quantity
	}
	return out
}

func TestCartMutations(t *testing.T) {
	c := NewCart(newLocal(), staticResolver{"u1"}, quietLogger())

	t.Run("add inserts then increments", func(t *testing.T) {
		if err := c.AddToCart(product("A", 50), 1); err != nil {
			t.Fatal(err)
		}
		if err := c.AddToCart(product("A", 50), 2); err != nil {
			t.Fatal(err)
		}
		if err := c.AddToCart(product("B", 5), 0); err != nil {
			t.Fatal(err)
		}
		want := map[string]int{"A": 3, "B": 1}
		if diff := cmp.Diff(want, quantities(c.Items())); diff != "" {
			t.Fatalf("quantities (-want +got):\n%s", diff)
		}
	})

	t.Run("add caps at max quantity", func(t *testing.T) {
		_ = c.AddToCart(product("A", 50), 25)
		if it, _ := c.Item("A"); it.Quantity != MaxQuantity {
			t.Fatalf("quantity = %d, want %d", it.Quantity, MaxQuantity)
		}
	})

	t.Run("missing id rejected", func(t *testing.T) {
		if err := c.AddToCart(Product{Title: "nameless"}, 1); err != ErrMissingProductID {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("update sets and caps", func(t *testing.T) {
		if !c.UpdateQuantity("A", 4) {
			t.Fatal("UpdateQuantity(A) = false")
		}
		if !c.UpdateQuantity("B", 99) {
			t.Fatal("UpdateQuantity(B) = false")
		}
		want := map[string]int{"A": 4, "B": 10}
		if diff := cmp.Diff(want, quantities(c.Items())); diff != "" {
			t.Fatalf("quantities (-want +got):\n%s", diff)
		}
		if c.UpdateQuantity("missing", 3) {
			t.Fatal("UpdateQuantity on missing product reported success")
		}
	})

	t.Run("totals", func(t *testing.T) {
		if got := c.TotalItems(); got != 14 {
			t.Fatalf("TotalItems() = %d", got)
		}
		mustEqualDecimal(t, c.TotalPrice(), "250")
	})

	t.Run("clear", func(t *testing.T) {
		c.ClearCart()
		if c.Len() != 0 || c.TotalItems() != 0 || !c.TotalPrice().IsZero() {
			t.Fatal("cart not empty after ClearCart")
		}
	})
}

func TestUpdateQuantityZeroRemoves(t *testing.T) {
	for _, q := range []int{0, -3} {
		viaUpdate := NewCart(newLocal(), staticResolver{"u"}, quietLogger())
		viaRemove := NewCart(newLocal(), staticResolver{"u"}, quietLogger())
		for _, c := range []*Cart{viaUpdate, viaRemove} {
			_ = c.AddToCart(product("A", 10), 2)
			_ = c.AddToCart(product("B", 20), 1)
		}

		viaUpdate.UpdateQuantity("A", q)
		viaRemove.RemoveFromCart("A")

		if diff := cmp.Diff(viaRemove.Items(), viaUpdate.Items()); diff != "" {
			t.Fatalf("q=%d: update differs from remove (-remove +update):\n%s", q, diff)
		}
	}
}

func TestCartPriceRecordedAtAdd(t *testing.T) {
	c := NewCart(newLocal(), staticResolver{"u"}, quietLogger())
	p := product("A", 40)
	_ = c.AddToCart(p, 1)

	p.Price = p.Price.Mul(p.Price)
	_ = c.AddToCart(p, 1)

	mustEqualDecimal(t, c.TotalPrice(), "80")
}

func TestCartPersistAndLoad(t *testing.T) {
	store := newLocal()
	c := NewCart(store, staticResolver{"u1"}, quietLogger())
	_ = c.AddToCart(product("A", 12), 3)
	if !c.Dirty() {
		t.Fatal("Dirty() = false after mutation")
	}
	if err := c.Persist(bg); err != nil {
		t.Fatal(err)
	}
	if c.Dirty() {
		t.Fatal("Dirty() = true after Persist")
	}

	raw, ok, _ := store.Get(bg, "cart-u1")
	want := `{"state":{"items":[{"productId":"A","title":"Product A","price":12,"images":["A.png"],"quantity":3}]}}`
	if !ok || raw != want {
		t.Fatalf("persisted %q", raw)
	}

	reloaded := NewCart(store, staticResolver{"u1"}, quietLogger())
	if err := reloaded.Load(bg); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c.Items(), reloaded.Items()); diff != "" {
		t.Fatalf("reloaded items (-want +got):\n%s", diff)
	}

	c.ClearCart()
	_ = c.Persist(bg)
	raw, _, _ = store.Get(bg, "cart-u1")
	if raw != `{"state":{"items":[]}}` {
		t.Fatalf("cleared cart persisted as %q", raw)
	}
}

func TestCartLoadRepairsCorruption(t *testing.T) {
	store := newLocal()
	corrupt := `{"state":{"items":[` +
		`{"productId":"A","title":"A","price":5,"images":[],"quantity":250},` +
		`{"productId":"B","title":"B","price":2,"images":[],"quantity":4},` +
		`{"productId":"C","title":"C","price":1,"images":[],"quantity":60}]}}`
	_ = store.Set(bg, "cart-u1", corrupt)

	c := NewCart(store, staticResolver{"u1"}, quietLogger())
	if err := c.Load(bg); err != nil {
		t.Fatal(err)
	}

	want := map[string]int{"A": 10, "B": 4, "C": 10}
	if diff := cmp.Diff(want, quantities(c.Items())); diff != "" {
		t.Fatalf("quantities (-want +got):\n%s", diff)
	}
	for _, it := range c.Items() {
		if it.Quantity > MaxQuantity {
			t.Fatalf("%s quantity %d above max after Load", it.ProductID, it.Quantity)
		}
	}
	if r := c.LastRepair(); r == nil || r.MaxQuantity != 250 {
		t.Fatalf("LastRepair() = %+v", r)
	}

	persisted, _, err := ReadCartItems(bg, store, "cart-u1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, quantities(persisted)); diff != "" {
		t.Fatalf("repaired list not re-persisted (-want +got):\n%s", diff)
	}
}

func TestCartLoadWithoutCorruptionDoesNotRewrite(t *testing.T) {
	store := newLocal()
	raw := `{"state":{"items":[{"productId":"A","title":"A","price":5,"images":[],"quantity":40}]}}`
	_ = store.Set(bg, "cart-u1", raw)

	c := NewCart(store, staticResolver{"u1"}, quietLogger())
	if err := c.Load(bg); err != nil {
		t.Fatal(err)
	}
	if c.LastRepair() != nil {
		t.Fatal("quantity 40 reported as corruption")
	}
	if it, _ := c.Item("A"); it.Quantity != MaxQuantity {
		t.Fatalf("in-memory quantity = %d", it.Quantity)
	}
	if got, _, _ := store.Get(bg, "cart-u1"); got != raw {
		t.Fatal("store rewritten although no corruption was found")
	}
	if !c.Dirty() {
		t.Fatal("clamped cart should be marked dirty")
	}
}

func TestCartStorageFailures(t *testing.T) {
	log, _ := test.NewNullLogger()
	f := kvstoretest.NewFaulty(kvstore.NewLocalKVStore(log))
	c := NewCart(f, staticResolver{"u1"}, log)
	_ = c.AddToCart(product("A", 1), 1)

	f.FailAll()
	if err := c.Persist(bg); !kvstore.IsStorageAccess(err) {
		t.Fatalf("Persist error = %v, want StorageAccessError", err)
	}
	if !c.Dirty() {
		t.Fatal("failed Persist cleared the dirty flag")
	}
	if err := c.Load(bg); !kvstore.IsStorageAccess(err) {
		t.Fatalf("Load error = %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("failed Load left stale items")
	}
}

func TestCartLoadRejectsUndecodable(t *testing.T) {
	store := newLocal()
	_ = store.Set(bg, "cart-u1", "{not json")
	c := NewCart(store, staticResolver{"u1"}, quietLogger())
	if err := c.Load(bg); err == nil {
		t.Fatal("Load accepted undecodable data")
	}
	if c.Len() != 0 {
		t.Fatal("cart not empty after decode failure")
	}
}

func TestMergeCart(t *testing.T) {
	tests := []struct {
		name  string
		user  []CartItem
		guest []CartItem
		want  map[string]int
	}{
		{
			name:  "shared product sums",
			user:  []CartItem{{ProductID: "A", Quantity: 4}},
			guest: []CartItem{{ProductID: "A", Quantity: 3}},
			want:  map[string]int{"A": 7},
		},
		{
			name:  "shared product clamps",
			user:  []CartItem{{ProductID: "A", Quantity: 6}},
			guest: []CartItem{{ProductID: "A", Quantity: 8}},
			want:  map[string]int{"A": 10},
		},
		{
			name:  "guest only product clamped",
			user:  nil,
			guest: []CartItem{{ProductID: "B", Quantity: 40}, {ProductID: "C", Quantity: 2}},
			want:  map[string]int{"B": 10, "C": 2},
		},
		{
			name:  "user only product kept",
			user:  []CartItem{{ProductID: "D", Quantity: 1}},
			guest: nil,
			want:  map[string]int{"D": 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := quantities(MergeCart(tt.user, tt.guest))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
		})
	}
}
