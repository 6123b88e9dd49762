package coupons

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestCouponValid(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	base := Coupon{Code: "SAVE10", DiscountPercent: 10, MaxUses: 5, Active: true}
	assert.True(t, base.Valid(now))

	t.Run("inactive", func(t *testing.T) {
		c := base
		c.Active = false
		assert.False(t, c.Valid(now))
	})

	t.Run("exhausted", func(t *testing.T) {
		c := base
		c.UsedCount = 5
		assert.False(t, c.Valid(now))
	})

	t.Run("not yet valid", func(t *testing.T) {
		c := base
		c.ValidFrom = ptr(now.Add(time.Hour))
		assert.False(t, c.Valid(now))
	})

	t.Run("expired", func(t *testing.T) {
		c := base
		c.ValidUntil = ptr(now.Add(-time.Hour))
		assert.False(t, c.Valid(now))
	})

	t.Run("inside window", func(t *testing.T) {
		c := base
		c.ValidFrom = ptr(now.Add(-time.Hour))
		c.ValidUntil = ptr(now.Add(time.Hour))
		assert.True(t, c.Valid(now))
	})
}

func TestDiscountFor(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("percent off the subtotal, gate on the gross total", func(t *testing.T) {
		c := Coupon{DiscountPercent: 10, MinOrderTotal: 100, MaxUses: 1, Active: true}
		// subtotal 150 carries a gross of 177; the gate passes and 10%
		// is taken off the subtotal, not the gross
		assert.InDelta(t, 15.00, c.DiscountFor(150, 177, now), 1e-9)
	})

	t.Run("below minimum order", func(t *testing.T) {
		c := Coupon{DiscountPercent: 10, MinOrderTotal: 200, MaxUses: 1, Active: true}
		assert.Zero(t, c.DiscountFor(150, 177, now))
	})

	t.Run("flat beats percent when larger", func(t *testing.T) {
		c := Coupon{DiscountPercent: 10, DiscountAmount: 25, MaxUses: 1, Active: true}
		assert.InDelta(t, 25.00, c.DiscountFor(150, 177, now), 1e-9)
	})

	t.Run("percent beats flat when larger", func(t *testing.T) {
		c := Coupon{DiscountPercent: 20, DiscountAmount: 25, MaxUses: 1, Active: true}
		assert.InDelta(t, 30.00, c.DiscountFor(150, 177, now), 1e-9)
	})

	t.Run("capped at the subtotal", func(t *testing.T) {
		c := Coupon{DiscountAmount: 500, MaxUses: 1, Active: true}
		assert.InDelta(t, 150.00, c.DiscountFor(150, 177, now), 1e-9)
	})

	t.Run("invalid coupon discounts nothing", func(t *testing.T) {
		c := Coupon{DiscountPercent: 10, MaxUses: 1, UsedCount: 1, Active: true}
		assert.Zero(t, c.DiscountFor(150, 177, now))
	})
}
