package orders

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrAlreadyClaimed      = errors.New("order already claimed by another carrier")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrCancelWindowExpired = errors.New("cancellation window expired")
	ErrUnauthorized        = errors.New("actor not allowed to perform this transition")
)

// ValidationError rejects a request before any state is touched; Field
// names the offending input so the caller can explain the rejection.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}
