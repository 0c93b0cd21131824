// shopstate/coupon/engine.go

package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SuccessTTL is how long the success flag stays up after a coupon is applied.
const SuccessTTL = 3000 * time.Millisecond

// Engine holds the single applied-coupon slot of a checkout session plus the UI messages
// around it.
type Engine struct {
	now      func() time.Time
	log      logrus.FieldLogger
	attempts metric.Int64Counter

	applied *Coupon
	input   string
	errMsg  string
	lastErr error
	success Expiring[bool]
}

// NewEngine constructor. now may be nil to use the wall clock.
func NewEngine(now func() time.Time, log logrus.FieldLogger) *Engine {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "coupon")

	attempts, err := otel.Meter("github.com/norun9/shopstate/coupon").Int64Counter(
		"shopstate.coupon.applications",
		metric.WithDescription("Coupon apply attempts by outcome"),
	)
	if err != nil {
		log.WithError(err).Warn("coupon counter unavailable")
	}
	return &Engine{now: now, log: log, attempts: attempts}
}

// Normalize trims and upper-cases a typed code.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// SetInput records what the visitor has typed so far.
func (e *Engine) SetInput(s string) { e.input = s }

// Input returns the typed code buffer.
func (e *Engine) Input() string { return e.input }

// ApplyCoupon validates raw and, on success, replaces the applied coupon.
// On failure the applied coupon is left as it was and ErrorMessage is set.
func (e *Engine) ApplyCoupon(raw string) bool {
	code := Normalize(raw)

	var err UserInputError
	c, ok := Lookup(code)
	switch {
	case code == "":
		err = EmptyCodeError{}
	case !ok:
		err = InvalidCodeError{Code: code}
	}

	if err != nil {
		e.errMsg = err.UserMessage()
		e.lastErr = err
		e.success.Clear()
		e.count("rejected")
		e.log.WithField("code", code).Debug(err.Error())
		return false
	}

	e.applied = &c
	e.input = ""
	e.errMsg = ""
	e.lastErr = nil
	e.success.Set(true, e.now(), SuccessTTL)
	e.count("applied")
	e.log.WithField("code", code).Info("coupon applied")
	return true
}

// RemoveCoupon clears the applied coupon and every message.
func (e *Engine) RemoveCoupon() {
	e.applied = nil
	e.errMsg = ""
	e.lastErr = nil
	e.success.Clear()
}

// AppliedCoupon returns the applied coupon, if any.
func (e *Engine) AppliedCoupon() (Coupon, bool) {
	if e.applied == nil {
		return Coupon{}, false
	}
	return *e.applied, true
}

// CalculateDiscount is the discount the applied coupon grants on subtotal; zero without one.
func (e *Engine) CalculateDiscount(subtotal decimal.Decimal) decimal.Decimal {
	if e.applied == nil {
		return decimal.Zero
	}
	return e.applied.Discount(subtotal)
}

// ErrorMessage is the message of the last rejected code.
func (e *Engine) ErrorMessage() string { return e.errMsg }

// LastError is the typed error of the last rejected code.
func (e *Engine) LastError() error { return e.lastErr }

// Success reports whether the success flag is still up.
func (e *Engine) Success() bool {
	v, ok := e.success.Get(e.now())
	return ok && v
}

func (e *Engine) count(outcome string) {
	if e.attempts == nil {
		return
	}
	e.attempts.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
