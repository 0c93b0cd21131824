package coupon

// UserInputError is a recoverable rejection of what the visitor typed.
type UserInputError interface {
	error
	UserMessage() string
}

// EmptyCodeError is returned for a blank code.
type EmptyCodeError struct{}

// Error and UserMessage share the same text.
func (EmptyCodeError) Error() string { return "Please enter a coupon code" }
func (EmptyCodeError) UserMessage() string { return "Please enter a coupon code" }

// InvalidCodeError is returned for a code that is not in the catalog.
type InvalidCodeError struct {
	Code string
}

// Error includes the rejected code; UserMessage does not.
func (e InvalidCodeError) Error() string { return "Invalid coupon code: " + e.Code }
func (InvalidCodeError) UserMessage() string { return "Invalid coupon code" }
