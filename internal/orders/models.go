package orders

import "time"

type Order struct {
	ID                string     `json:"id"`
	ExternalID        string     `json:"external_id"`
	Customer          string     `json:"customer"`
	Status            Status     `json:"status"`
	RequestedDelivery time.Time  `json:"requested_delivery"`
	Total             float64    `json:"total"` // VAT inclusive
	Carrier           *string    `json:"carrier,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	CancelReason      *string    `json:"cancel_reason,omitempty"`
}

// Line is an order line with the unit price frozen at checkout time; it is
// never recomputed from the catalog afterwards.
type Line struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name,omitempty"`
	Kg          float64 `json:"kg"`
	UnitPrice   float64 `json:"unit_price"`
}

func (l Line) Subtotal() float64 { return l.Kg * l.UnitPrice }

// CartLine is checkout input: the unit price is the effective price the
// customer saw at add-to-cart time.
type CartLine struct {
	ProductID string  `json:"product_id"`
	Kg        float64 `json:"kg"`
	UnitPrice float64 `json:"unit_price"`
}

type HistoryEntry struct {
	ID        int64     `json:"id"`
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	Actor     string    `json:"actor"`
	Note      string    `json:"note"`
	ChangedAt time.Time `json:"changed_at"`
}

// Detail is the carrier/owner read model: the order plus its lines and the
// customer's contact info.
type Detail struct {
	Order
	Lines           []Line `json:"lines"`
	CustomerAddress string `json:"customer_address,omitempty"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
}
