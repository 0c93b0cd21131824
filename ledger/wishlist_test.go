package ledger

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func wishlistIDs(items []WishlistItem) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

func TestWishlistIdempotentAdd(t *testing.T) {
	w := NewWishlist(newLocal(), staticResolver{"u1"}, quietLogger())
	p := product("P", 30)

	if !w.AddToWishlist(p) {
		t.Fatal("first AddToWishlist() = false")
	}
	if w.AddToWishlist(p) {
		t.Fatal("second AddToWishlist() = true")
	}
	if w.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", w.Count())
	}
	if w.AddToWishlist(Product{}) {
		t.Fatal("product without id was saved")
	}
}

func TestWishlistOperations(t *testing.T) {
	store := newLocal()
	w := NewWishlist(store, staticResolver{"u1"}, quietLogger())
	w.AddToWishlist(product("A", 1))
	w.AddToWishlist(product("B", 2))
	w.AddToWishlist(product("C", 3))

	if !w.IsInWishlist("B") || w.IsInWishlist("Z") {
		t.Fatal("IsInWishlist mismatch")
	}
	if !w.RemoveFromWishlist("B") || w.RemoveFromWishlist("B") {
		t.Fatal("RemoveFromWishlist should succeed once")
	}
	if diff := cmp.Diff([]string{"A", "C"}, wishlistIDs(w.Items())); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	if err := w.Persist(bg); err != nil {
		t.Fatal(err)
	}
	raw, _, _ := store.Get(bg, "wishlist-u1")
	want := `{"state":{"wishlist":[{"productId":"A","title":"Product A","price":1,"images":["A.png"]},` +
		`{"productId":"C","title":"Product C","price":3,"images":["C.png"]}]}}`
	if raw != want {
		t.Fatalf("persisted %s", raw)
	}

	reloaded := NewWishlist(store, staticResolver{"u1"}, quietLogger())
	if err := reloaded.Load(bg); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(w.Items(), reloaded.Items()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	reloaded.ClearWishlist()
	if reloaded.Count() != 0 {
		t.Fatal("ClearWishlist left entries")
	}
}

func TestWishlistMoveToCart(t *testing.T) {
	w := NewWishlist(newLocal(), staticResolver{"u1"}, quietLogger())
	c := NewCart(newLocal(), staticResolver{"u1"}, quietLogger())
	w.AddToWishlist(product("A", 15))

	if !w.MoveToCart("A", c) {
		t.Fatal("MoveToCart() = false")
	}
	if w.IsInWishlist("A") {
		t.Fatal("moved product still in wishlist")
	}
	it, ok := c.Item("A")
	if !ok || it.Quantity != 1 {
		t.Fatalf("cart line = %+v, %v", it, ok)
	}
	mustEqualDecimal(t, it.Price, "15")
	if w.MoveToCart("A", c) {
		t.Fatal("MoveToCart of missing product reported success")
	}
}

func TestUnionWishlistUserWins(t *testing.T) {
	user := []WishlistItem{{ProductID: "A", Title: "user copy"}}
	guest := []WishlistItem{{ProductID: "A", Title: "guest copy"}, {ProductID: "B", Title: "guest B"}}

	got := UnionWishlist(user, guest)
	want := []WishlistItem{{ProductID: "A", Title: "user copy"}, {ProductID: "B", Title: "guest B"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}
