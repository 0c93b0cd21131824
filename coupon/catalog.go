// Package coupon validates coupon codes against the fixed catalog and computes discounts.
package coupon

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Kind is how a coupon's value is applied.
type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
)

// Coupon is a catalog entry.
type Coupon struct {
	Code          string          `json:"code"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	Kind          Kind            `json:"kind"`
	Description   string          `json:"description"`
}

// catalog holds coupons by normalized code.
var catalog = map[string]Coupon{
	"SAVE10":    {Code: "SAVE10", DiscountValue: decimal.NewFromInt(10), Kind: KindPercentage, Description: "10% off your order"},
	"SAVE20":    {Code: "SAVE20", DiscountValue: decimal.NewFromInt(20), Kind: KindPercentage, Description: "20% off your order"},
	"WELCOME15": {Code: "WELCOME15", DiscountValue: decimal.NewFromInt(15), Kind: KindPercentage, Description: "15% off for new customers"},
	"FIXED10":   {Code: "FIXED10", DiscountValue: decimal.NewFromInt(10), Kind: KindFixed, Description: "$10 off your order"},
	"FIXED25":   {Code: "FIXED25", DiscountValue: decimal.NewFromInt(25), Kind: KindFixed, Description: "$25 off your order"},
	"FREESHIP":  {Code: "FREESHIP", DiscountValue: decimal.NewFromInt(5), Kind: KindFixed, Description: "$5 off shipping"},
}

// Lookup finds a coupon by already-normalized code.
func Lookup(code string) (Coupon, bool) {
	c, ok := catalog[code]
	return c, ok
}

// Catalog returns every coupon ordered by code.
func Catalog() []Coupon {
	out := make([]Coupon, 0, len(catalog))
	for _, c := range catalog {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Discount is the amount c takes off subtotal. It is never negative and never exceeds
// subtotal for fixed coupons.
func (c Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.IsNegative() {
		return decimal.Zero
	}
	switch c.Kind {
	case KindPercentage:
		return subtotal.Mul(c.DiscountValue).Div(decimal.NewFromInt(100))
	case KindFixed:
		return decimal.Min(c.DiscountValue, subtotal)
	default:
		return decimal.Zero
	}
}
