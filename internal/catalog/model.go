package catalog

import "time"

type Product struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Kind            string    `json:"kind"`
	Price           float64   `json:"price"`
	DiscountPercent float64   `json:"discount_percent"`
	Stock           float64   `json:"stock"`
	Threshold       float64   `json:"threshold"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EffectivePrice is the display and charge price: the discount is applied
// first, then the result doubles while stock sits at or below the
// threshold (scarcity pricing).
func (p Product) EffectivePrice() float64 {
	price := p.Price
	if p.DiscountPercent > 0 {
		price = p.Price * (1 - p.DiscountPercent/100)
	}
	if p.Stock <= p.Threshold {
		price *= 2
	}
	return price
}

func (p Product) LowStock() bool { return p.Stock <= p.Threshold }
