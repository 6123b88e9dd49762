package orders

import (
	"fmt"
	"time"
)

// Business policy for checkout and cancellation. Windows are wall-clock
// checks evaluated at request time; nothing expires orders in the
// background.
const (
	VATRate       = 0.18
	MinOrderTotal = 100.00

	MinDeliveryLead = 1 * time.Hour
	MaxDeliveryLead = 48 * time.Hour

	CancelWindow = 1 * time.Hour
)

func Subtotal(lines []CartLine) float64 {
	var sum float64
	for _, l := range lines {
		sum += l.Kg * l.UnitPrice
	}
	return sum
}

// TotalWithVAT applies the discount to the subtotal, floors at zero, and
// adds VAT.
func TotalWithVAT(subtotal, discount float64) float64 {
	after := subtotal - discount
	if after < 0 {
		after = 0
	}
	return after + after*VATRate
}

// ValidateCheckout enforces the checkout preconditions: non-empty cart,
// positive quantities and prices, delivery inside the bounded window, and
// the VAT-inclusive total at or above the minimum.
func ValidateCheckout(lines []CartLine, requestedDelivery time.Time, total float64, now time.Time) error {
	if len(lines) == 0 {
		return &ValidationError{Field: "lines", Reason: "cart is empty"}
	}
	for _, l := range lines {
		if l.ProductID == "" {
			return &ValidationError{Field: "lines", Reason: "missing product id"}
		}
		if l.Kg <= 0 {
			return &ValidationError{Field: "lines", Reason: fmt.Sprintf("non-positive quantity for product %s", l.ProductID)}
		}
		if l.UnitPrice < 0 {
			return &ValidationError{Field: "lines", Reason: fmt.Sprintf("negative unit price for product %s", l.ProductID)}
		}
	}
	if requestedDelivery.Before(now.Add(MinDeliveryLead)) || requestedDelivery.After(now.Add(MaxDeliveryLead)) {
		return &ValidationError{
			Field:  "requested_delivery",
			Reason: fmt.Sprintf("must be between %v and %v from now", MinDeliveryLead, MaxDeliveryLead),
		}
	}
	if total < MinOrderTotal {
		return &ValidationError{
			Field:  "total",
			Reason: fmt.Sprintf("VAT-inclusive total %.2f is below the minimum %.2f", total, MinOrderTotal),
		}
	}
	return nil
}

// ValidateDeliveryStamp rejects future-dated or pre-order delivery claims.
func ValidateDeliveryStamp(deliveredAt, orderCreatedAt, now time.Time) error {
	if deliveredAt.Before(orderCreatedAt) {
		return &ValidationError{Field: "delivered_at", Reason: "delivery before order creation"}
	}
	if deliveredAt.After(now) {
		return &ValidationError{Field: "delivered_at", Reason: "delivery timestamp in the future"}
	}
	return nil
}
