package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newEngine() (*Engine, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	log, _ := test.NewNullLogger()
	return NewEngine(clock.Now, log), clock
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyCoupon(t *testing.T) {
	t.Run("percentage exactness", func(t *testing.T) {
		e, _ := newEngine()
		if !e.ApplyCoupon("SAVE20") {
			t.Fatal("ApplyCoupon(SAVE20) = false")
		}
		if got := e.CalculateDiscount(dec("100")); !got.Equal(dec("20")) {
			t.Fatalf("discount = %s, want 20", got)
		}
	})

	t.Run("input normalized", func(t *testing.T) {
		e, _ := newEngine()
		e.SetInput("  fixed10 ")
		if !e.ApplyCoupon(e.Input()) {
			t.Fatal("lower-case padded code rejected")
		}
		c, ok := e.AppliedCoupon()
		if !ok || c.Code != "FIXED10" {
			t.Fatalf("AppliedCoupon() = %+v, %v", c, ok)
		}
		if e.Input() != "" {
			t.Fatalf("input buffer not cleared: %q", e.Input())
		}
	})

	t.Run("empty code", func(t *testing.T) {
		e, _ := newEngine()
		if e.ApplyCoupon("   ") {
			t.Fatal("blank code accepted")
		}
		if e.ErrorMessage() != "Please enter a coupon code" {
			t.Fatalf("ErrorMessage() = %q", e.ErrorMessage())
		}
		if _, ok := e.LastError().(EmptyCodeError); !ok {
			t.Fatalf("LastError() = %T", e.LastError())
		}
		if _, ok := e.AppliedCoupon(); ok {
			t.Fatal("coupon applied after rejection")
		}
	})

	t.Run("invalid code keeps previous coupon", func(t *testing.T) {
		e, _ := newEngine()
		e.ApplyCoupon("SAVE10")
		if e.ApplyCoupon("NOTREAL") {
			t.Fatal("ApplyCoupon(NOTREAL) = true")
		}
		if e.ErrorMessage() != "Invalid coupon code" {
			t.Fatalf("ErrorMessage() = %q", e.ErrorMessage())
		}
		if _, ok := e.LastError().(InvalidCodeError); !ok {
			t.Fatalf("LastError() = %T", e.LastError())
		}
		c, ok := e.AppliedCoupon()
		if !ok || c.Code != "SAVE10" {
			t.Fatalf("applied coupon changed to %+v", c)
		}
	})

	t.Run("invalid code with none applied", func(t *testing.T) {
		e, _ := newEngine()
		if e.ApplyCoupon("NOTREAL") {
			t.Fatal("ApplyCoupon(NOTREAL) = true")
		}
		if _, ok := e.AppliedCoupon(); ok {
			t.Fatal("coupon present after rejection")
		}
	})

	t.Run("latest success replaces", func(t *testing.T) {
		e, _ := newEngine()
		e.ApplyCoupon("SAVE10")
		e.ApplyCoupon("FIXED25")
		if c, _ := e.AppliedCoupon(); c.Code != "FIXED25" {
			t.Fatalf("applied = %s", c.Code)
		}
	})
}

func TestSuccessFlagExpires(t *testing.T) {
	e, clock := newEngine()
	e.ApplyCoupon("SAVE10")
	if !e.Success() {
		t.Fatal("Success() = false right after apply")
	}
	clock.Advance(2999 * time.Millisecond)
	if !e.Success() {
		t.Fatal("Success() = false before 3000ms")
	}
	clock.Advance(time.Millisecond)
	if e.Success() {
		t.Fatal("Success() = true at 3000ms")
	}

	e.ApplyCoupon("SAVE20")
	clock.Advance(time.Second)
	e.ApplyCoupon("FIXED10")
	clock.Advance(2500 * time.Millisecond)
	if !e.Success() {
		t.Fatal("reapplying did not restart the success window")
	}
}

func TestRemoveCoupon(t *testing.T) {
	e, _ := newEngine()
	e.ApplyCoupon("nope")
	e.ApplyCoupon("SAVE10")
	e.RemoveCoupon()

	if _, ok := e.AppliedCoupon(); ok {
		t.Fatal("coupon still applied")
	}
	if e.Success() || e.ErrorMessage() != "" || e.LastError() != nil {
		t.Fatal("messages not cleared")
	}
	if !e.CalculateDiscount(dec("80")).IsZero() {
		t.Fatal("discount without coupon should be zero")
	}
}

func TestCalculateDiscount(t *testing.T) {
	tests := []struct {
		code     string
		subtotal string
		want     string
	}{
		{"SAVE10", "100", "10"},
		{"SAVE10", "0", "0"},
		{"WELCOME15", "40", "6"},
		{"FIXED10", "100", "10"},
		{"FIXED10", "7.5", "7.5"},
		{"FIXED25", "0", "0"},
		{"FREESHIP", "3", "3"},
	}
	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.subtotal, func(t *testing.T) {
			e, _ := newEngine()
			if !e.ApplyCoupon(tt.code) {
				t.Fatalf("ApplyCoupon(%s) = false", tt.code)
			}
			if got := e.CalculateDiscount(dec(tt.subtotal)); !got.Equal(dec(tt.want)) {
				t.Fatalf("discount = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFixedDiscountNeverExceedsSubtotal(t *testing.T) {
	for _, c := range Catalog() {
		if c.Kind != KindFixed {
			continue
		}
		for cents := int64(0); cents <= 5000; cents += 37 {
			subtotal := decimal.New(cents, -2)
			d := c.Discount(subtotal)
			if d.GreaterThan(subtotal) || d.IsNegative() {
				t.Fatalf("%s on %s gave %s", c.Code, subtotal, d)
			}
		}
	}
}

func TestExpiring(t *testing.T) {
	var e Expiring[string]
	now := time.Unix(0, 0)
	if _, ok := e.Get(now); ok {
		t.Fatal("zero Expiring reported a value")
	}
	e.Set("x", now, time.Second)
	if v, ok := e.Get(now.Add(500 * time.Millisecond)); !ok || v != "x" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	if _, ok := e.Get(now.Add(time.Second)); ok {
		t.Fatal("value visible at expiry")
	}
	e.Clear()
	if _, ok := e.Get(now); ok {
		t.Fatal("value visible after Clear")
	}
}
