package coupon

import "time"

// Expiring holds a value until a deadline. Readers pass the current time.
type Expiring[T any] struct {
	value     T
	expiresAt time.Time
	set       bool
}

// Set stores v until now+ttl.
func (e *Expiring[T]) Set(v T, now time.Time, ttl time.Duration) {
	e.value = v
	e.expiresAt = now.Add(ttl)
	e.set = true
}

// Get returns the value if it has not expired at now.
func (e *Expiring[T]) Get(now time.Time) (T, bool) {
	if !e.set || !now.Before(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Clear drops the value.
func (e *Expiring[T]) Clear() {
	var zero T
	e.value = zero
	e.set = false
}
