package coupons

import "time"

type Coupon struct {
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	DiscountPercent float64    `json:"discount_percent"`
	DiscountAmount  float64    `json:"discount_amount"`
	MinOrderTotal   float64    `json:"min_order_total"`
	ValidFrom       *time.Time `json:"valid_from,omitempty"`
	ValidUntil      *time.Time `json:"valid_until,omitempty"`
	MaxUses         int        `json:"max_uses"`
	UsedCount       int        `json:"used_count"`
	AssignedTo      *string    `json:"assigned_to,omitempty"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Valid reports whether the coupon can be redeemed at the given instant:
// active, usage headroom, inside the validity window.
func (c Coupon) Valid(now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.UsedCount >= c.MaxUses {
		return false
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	return true
}

// DiscountFor computes the discount off the pre-VAT subtotal: the larger
// of the percentage and the flat amount, capped at the subtotal. The
// minimum-order gate compares against the VAT-inclusive total, because
// that is the figure shown to the customer.
func (c Coupon) DiscountFor(subtotal, vatIncTotal float64, now time.Time) float64 {
	if !c.Valid(now) {
		return 0
	}
	if vatIncTotal < c.MinOrderTotal {
		return 0
	}
	var discount float64
	if c.DiscountPercent > 0 {
		discount = subtotal * c.DiscountPercent / 100
	}
	if c.DiscountAmount > discount {
		discount = c.DiscountAmount
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount
}
