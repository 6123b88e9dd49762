package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/selvitopi/greengrocer/internal/coupons"
	kafkax "github.com/selvitopi/greengrocer/internal/kafka"
	"github.com/selvitopi/greengrocer/internal/orders"
	"github.com/selvitopi/greengrocer/internal/redisx"
)

type OrderStore interface {
	Checkout(ctx context.Context, in orders.CheckoutInput) (orders.CheckoutResult, error)
	Claim(ctx context.Context, orderID, carrier string) (orders.Order, error)
	Deliver(ctx context.Context, orderID, carrier string, deliveredAt time.Time) (orders.Order, error)
	Cancel(ctx context.Context, orderID, customer, reason string) (orders.Order, []orders.Line, error)
	StatusOf(ctx context.Context, orderID string) (orders.Status, error)
	HistoryFor(ctx context.Context, orderID string) ([]orders.HistoryEntry, error)
	GetDetail(ctx context.Context, orderID string) (orders.Detail, error)
	ListAvailable(ctx context.Context) ([]orders.Detail, error)
	ListByCustomer(ctx context.Context, customer string) ([]orders.Detail, error)
	ListByCarrier(ctx context.Context, carrier string, status orders.Status) ([]orders.Detail, error)
}

type CouponStore interface {
	GetByCode(ctx context.Context, code string) (coupons.Coupon, error)
	Redeem(ctx context.Context, code string) error
}

// Publisher is the topic-bound producer surface; one per topic, as the
// writers are.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type OrdersHandler struct {
	Store   OrderStore
	Coupons CouponStore
	Redis   *redis.Client
	Service string

	PubCreated   Publisher
	PubClaimed   Publisher
	PubDelivered Publisher
	PubCancelled Publisher
	PubStockLow  Publisher
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders/available", h.listAvailable)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/history", h.getHistory)
	r.Get("/orders/{id}/detail", h.getDetail)
	r.Post("/orders/{id}/claim", h.claim)
	r.Post("/orders/{id}/deliver", h.deliver)
	r.Post("/orders/{id}/cancel", h.cancel)
}

type CheckoutReq struct {
	ExternalID        string            `json:"external_id"`
	Customer          string            `json:"customer"`
	RequestedDelivery time.Time         `json:"requested_delivery"`
	CouponCode        string            `json:"coupon_code,omitempty"`
	Lines             []orders.CartLine `json:"lines"`
}

type CheckoutResp struct {
	Order         orders.Order `json:"order"`
	CouponApplied bool         `json:"coupon_applied"`
	Discount      float64      `json:"discount"`
	Idempotent    bool         `json:"idempotent"`
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.ExternalID == "" || req.Customer == "" || len(req.Lines) == 0 {
		badRequest(w, "missing fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Coupon re-validation against current state, using the prices the
	// customer saw. A coupon that went stale between display and submit
	// drops silently: checkout proceeds without the discount.
	subtotal := orders.Subtotal(req.Lines)
	var discount float64
	if req.CouponCode != "" {
		if c, err := h.Coupons.GetByCode(ctx, req.CouponCode); err == nil {
			discount = c.DiscountFor(subtotal, orders.TotalWithVAT(subtotal, 0), time.Now())
		} else {
			log.Printf("checkout %s: coupon %s lookup: %v", req.ExternalID, req.CouponCode, err)
		}
	}
	total := orders.TotalWithVAT(subtotal, discount)

	res, err := h.Store.Checkout(ctx, orders.CheckoutInput{
		ExternalID:        req.ExternalID,
		Customer:          req.Customer,
		RequestedDelivery: req.RequestedDelivery,
		Lines:             req.Lines,
		Total:             total,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !res.Existed {
		// Best-effort side effects after the committed transaction.
		// None of these can undo the order; failures are logged.
		if discount > 0 {
			if err := h.Coupons.Redeem(ctx, req.CouponCode); err != nil {
				log.Printf("checkout %s: redeem coupon %s: %v", res.Order.ID, req.CouponCode, err)
				discount = 0
			}
		}

		idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, req.ExternalID)
		_ = h.Redis.Set(ctx, idemKey, res.Order.ID, redisx.TTLIdempotency).Err()
		h.cacheStatus(ctx, res.Order.ID, orders.StatusNew)

		h.publishCreated(r, res, req)
		for _, ls := range res.LowStock {
			h.publishStockLow(r, ls.ProductID, ls.Name, ls.Stock, ls.Threshold)
		}
	}

	writeJSON(w, http.StatusCreated, CheckoutResp{
		Order:         res.Order,
		CouponApplied: discount > 0 && !res.Existed,
		Discount:      discount,
		Idempotent:    res.Existed,
	})
}

type claimReq struct {
	Carrier string `json:"carrier"`
}

func (h *OrdersHandler) claim(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req claimReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Carrier == "" {
		badRequest(w, "missing carrier")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Store.Claim(ctx, orderID, req.Carrier)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	h.publish(r, h.PubClaimed, orders.EventOrderClaimed, o.ID,
		orders.OrderClaimedPayload{OrderID: o.ID, Carrier: req.Carrier})
	writeJSON(w, http.StatusOK, o)
}

type deliverReq struct {
	Carrier     string    `json:"carrier"`
	DeliveredAt time.Time `json:"delivered_at"`
}

func (h *OrdersHandler) deliver(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req deliverReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Carrier == "" {
		badRequest(w, "missing carrier")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// a zero timestamp is passed through; the store stamps it with the
	// database clock
	o, err := h.Store.Deliver(ctx, orderID, req.Carrier, req.DeliveredAt)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	deliveredAt := req.DeliveredAt
	if o.DeliveredAt != nil {
		deliveredAt = *o.DeliveredAt
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	// loyalty accrual rides on this event, consumed by the notifier
	h.publish(r, h.PubDelivered, orders.EventOrderDelivered, o.ID,
		orders.OrderDeliveredPayload{
			OrderID: o.ID, Customer: o.Customer, Carrier: req.Carrier,
			Total: o.Total, DeliveredAt: deliveredAt,
		})
	writeJSON(w, http.StatusOK, o)
}

type cancelReq struct {
	Customer string `json:"customer"`
	Reason   string `json:"reason"`
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Customer == "" {
		badRequest(w, "missing customer")
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by customer"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, restored, err := h.Store.Cancel(ctx, orderID, req.Customer, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	h.publish(r, h.PubCancelled, orders.EventOrderCancelled, o.ID,
		orders.OrderCancelledPayload{
			OrderID: o.ID, Customer: req.Customer, Reason: req.Reason,
			Restored: toLinePayloads(restored),
		})
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// cache first, DB as the source of truth
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	status, err := h.Store.StatusOf(ctx, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	b, _ := json.Marshal(map[string]any{"status": status})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *OrdersHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	hist, err := h.Store.HistoryFor(ctx, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (h *OrdersHandler) getDetail(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	d, err := h.Store.GetDetail(ctx, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *OrdersHandler) listAvailable(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ds, err := h.Store.ListAvailable(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if customer := r.URL.Query().Get("customer"); customer != "" {
		ds, err := h.Store.ListByCustomer(ctx, customer)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ds)
		return
	}
	if carrier := r.URL.Query().Get("carrier"); carrier != "" {
		status := orders.StatusInProgress
		if r.URL.Query().Get("state") == "completed" {
			status = orders.StatusDelivered
		}
		ds, err := h.Store.ListByCarrier(ctx, carrier, status)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ds)
		return
	}
	badRequest(w, "customer or carrier query parameter required")
}

// ---- event publishing ----

func (h *OrdersHandler) publishCreated(r *http.Request, res orders.CheckoutResult, req CheckoutReq) {
	h.publish(r, h.PubCreated, orders.EventOrderCreated, res.Order.ID,
		orders.OrderCreatedPayload{
			OrderID:    res.Order.ID,
			ExternalID: req.ExternalID,
			Customer:   req.Customer,
			Lines:      toLinePayloadsFromCart(res.Lines),
			Total:      res.Order.Total,
		})
}

func (h *OrdersHandler) publishStockLow(r *http.Request, productID, name string, stock, threshold float64) {
	h.publishKeyed(r, h.PubStockLow, orders.EventStockLow, productID, productID,
		orders.StockLowPayload{ProductID: productID, Name: name, Stock: stock, Threshold: threshold})
}

func (h *OrdersHandler) publish(r *http.Request, p Publisher, eventType, orderID string, payload any) {
	h.publishKeyed(r, p, eventType, orderID, orderID, payload)
}

func (h *OrdersHandler) publishKeyed(r *http.Request, p Publisher, eventType, correlationID, key string, payload any) {
	if p == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(orders.PartitionKey(key), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID string, status orders.Status) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	b, _ := json.Marshal(map[string]any{"status": status})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func toLinePayloads(lines []orders.Line) []orders.LinePayload {
	out := make([]orders.LinePayload, 0, len(lines))
	for _, l := range lines {
		out = append(out, orders.LinePayload{ProductID: l.ProductID, Kg: l.Kg, UnitPrice: l.UnitPrice})
	}
	return out
}

func toLinePayloadsFromCart(lines []orders.CartLine) []orders.LinePayload {
	out := make([]orders.LinePayload, 0, len(lines))
	for _, l := range lines {
		out = append(out, orders.LinePayload{ProductID: l.ProductID, Kg: l.Kg, UnitPrice: l.UnitPrice})
	}
	return out
}
