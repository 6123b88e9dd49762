package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectivePrice(t *testing.T) {
	t.Run("plain price", func(t *testing.T) {
		p := Product{Price: 20.00, Stock: 50, Threshold: 5}
		assert.InDelta(t, 20.00, p.EffectivePrice(), 1e-9)
	})

	t.Run("discount applied", func(t *testing.T) {
		p := Product{Price: 20.00, DiscountPercent: 25, Stock: 50, Threshold: 5}
		assert.InDelta(t, 15.00, p.EffectivePrice(), 1e-9)
	})

	t.Run("scarcity doubles the discounted price", func(t *testing.T) {
		// 19.00 kiwi at 5% discount, stock at the threshold: 19*0.95*2
		p := Product{Price: 19.00, DiscountPercent: 5, Stock: 5, Threshold: 5}
		assert.InDelta(t, 36.10, p.EffectivePrice(), 1e-9)
	})

	t.Run("scarcity without discount", func(t *testing.T) {
		p := Product{Price: 19.00, Stock: 2, Threshold: 5}
		assert.InDelta(t, 38.00, p.EffectivePrice(), 1e-9)
	})
}

func TestLowStock(t *testing.T) {
	assert.True(t, Product{Stock: 5, Threshold: 5}.LowStock())
	assert.True(t, Product{Stock: 4.9, Threshold: 5}.LowStock())
	assert.False(t, Product{Stock: 5.1, Threshold: 5}.LowStock())
}
