package catalog

import (
	"errors"
	"fmt"
)

var ErrProductNotFound = errors.New("product not found")

// InsufficientStockError reports a failed reservation with the stock that
// was actually available at the time of the attempt.
type InsufficientStockError struct {
	ProductID string
	Requested float64
	Available float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %.2f kg, available %.2f kg",
		e.ProductID, e.Requested, e.Available)
}
