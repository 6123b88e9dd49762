package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderClaimed   = "OrderClaimed"
	EventOrderDelivered = "OrderDelivered"
	EventOrderCancelled = "OrderCancelled"
	EventStockLow       = "StockLow"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payload per event ----

type LinePayload struct {
	ProductID string  `json:"product_id"`
	Kg        float64 `json:"kg"`
	UnitPrice float64 `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID    string        `json:"order_id"`
	ExternalID string        `json:"external_id"`
	Customer   string        `json:"customer"`
	Lines      []LinePayload `json:"lines"`
	Total      float64       `json:"total"`
}

type OrderClaimedPayload struct {
	OrderID string `json:"order_id"`
	Carrier string `json:"carrier"`
}

type OrderDeliveredPayload struct {
	OrderID     string    `json:"order_id"`
	Customer    string    `json:"customer"`
	Carrier     string    `json:"carrier"`
	Total       float64   `json:"total"`
	DeliveredAt time.Time `json:"delivered_at"`
}

type OrderCancelledPayload struct {
	OrderID  string        `json:"order_id"`
	Customer string        `json:"customer"`
	Reason   string        `json:"reason"`
	Restored []LinePayload `json:"restored,omitempty"`
}

type StockLowPayload struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Stock     float64 `json:"stock"`
	Threshold float64 `json:"threshold"`
}
