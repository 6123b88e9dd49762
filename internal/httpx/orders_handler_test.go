package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selvitopi/greengrocer/internal/catalog"
	"github.com/selvitopi/greengrocer/internal/coupons"
	"github.com/selvitopi/greengrocer/internal/orders"
)

// deadRedis returns a client with no server behind it. The handlers treat
// every Redis failure as a cache miss, so tests exercise the DB path.
func deadRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 10 * time.Millisecond,
		MaxRetries:  -1,
	})
}

type fakeOrderStore struct {
	checkoutRes orders.CheckoutResult
	checkoutErr error
	claimRes    orders.Order
	claimErr    error
	deliverRes  orders.Order
	deliverErr  error
	deliverAt   []time.Time
	cancelRes   orders.Order
	cancelLines []orders.Line
	cancelErr   error
	status      orders.Status
	statusErr   error

	checkoutCalls []orders.CheckoutInput
}

func (f *fakeOrderStore) Checkout(_ context.Context, in orders.CheckoutInput) (orders.CheckoutResult, error) {
	f.checkoutCalls = append(f.checkoutCalls, in)
	return f.checkoutRes, f.checkoutErr
}

func (f *fakeOrderStore) Claim(context.Context, string, string) (orders.Order, error) {
	return f.claimRes, f.claimErr
}

func (f *fakeOrderStore) Deliver(_ context.Context, _, _ string, deliveredAt time.Time) (orders.Order, error) {
	f.deliverAt = append(f.deliverAt, deliveredAt)
	return f.deliverRes, f.deliverErr
}

func (f *fakeOrderStore) Cancel(context.Context, string, string, string) (orders.Order, []orders.Line, error) {
	return f.cancelRes, f.cancelLines, f.cancelErr
}

func (f *fakeOrderStore) StatusOf(context.Context, string) (orders.Status, error) {
	return f.status, f.statusErr
}

func (f *fakeOrderStore) HistoryFor(context.Context, string) ([]orders.HistoryEntry, error) {
	return nil, nil
}

func (f *fakeOrderStore) GetDetail(context.Context, string) (orders.Detail, error) {
	return orders.Detail{}, nil
}

func (f *fakeOrderStore) ListAvailable(context.Context) ([]orders.Detail, error) {
	return nil, nil
}

func (f *fakeOrderStore) ListByCustomer(context.Context, string) ([]orders.Detail, error) {
	return nil, nil
}

func (f *fakeOrderStore) ListByCarrier(context.Context, string, orders.Status) ([]orders.Detail, error) {
	return nil, nil
}

type fakeCouponStore struct {
	coupon    coupons.Coupon
	getErr    error
	redeemErr error
	redeemed  []string
}

func (f *fakeCouponStore) GetByCode(context.Context, string) (coupons.Coupon, error) {
	return f.coupon, f.getErr
}

func (f *fakeCouponStore) Redeem(_ context.Context, code string) error {
	if f.redeemErr != nil {
		return f.redeemErr
	}
	f.redeemed = append(f.redeemed, code)
	return nil
}

type fakePublisher struct {
	messages [][]byte
}

func (f *fakePublisher) Publish(_, value []byte, _ ...kafkago.Header) {
	f.messages = append(f.messages, value)
}

func newOrdersHandler(store *fakeOrderStore, cs *fakeCouponStore) (*OrdersHandler, *fakePublisher) {
	pub := &fakePublisher{}
	if cs == nil {
		cs = &fakeCouponStore{getErr: coupons.ErrCouponNotFound}
	}
	return &OrdersHandler{
		Store:        store,
		Coupons:      cs,
		Redis:        deadRedis(),
		Service:      "grocery-api-test",
		PubCreated:   pub,
		PubClaimed:   pub,
		PubDelivered: pub,
		PubCancelled: pub,
		PubStockLow:  pub,
	}, pub
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func checkoutBody(coupon string) CheckoutReq {
	return CheckoutReq{
		ExternalID:        "ext-1",
		Customer:          "ayse",
		RequestedDelivery: time.Now().Add(4 * time.Hour),
		CouponCode:        coupon,
		Lines:             []orders.CartLine{{ProductID: "p-1", Kg: 5.0, UnitPrice: 38.00}},
	}
}

func TestCheckoutCreated(t *testing.T) {
	store := &fakeOrderStore{checkoutRes: orders.CheckoutResult{
		Order: orders.Order{ID: "o-1", Status: orders.StatusNew, Total: 224.20},
		Lines: []orders.CartLine{{ProductID: "p-1", Kg: 5.0, UnitPrice: 38.00}},
	}}
	h, pub := newOrdersHandler(store, nil)
	r := NewRouter()
	h.Register(r)

	rec := doJSON(t, r, http.MethodPost, "/checkout", checkoutBody(""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp CheckoutResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "o-1", resp.Order.ID)
	assert.False(t, resp.CouponApplied)
	assert.False(t, resp.Idempotent)

	require.Len(t, store.checkoutCalls, 1)
	// subtotal 190 plus 18% VAT
	assert.InDelta(t, 224.20, store.checkoutCalls[0].Total, 1e-9)
	assert.Len(t, pub.messages, 1)
}

func TestCheckoutAppliesCoupon(t *testing.T) {
	store := &fakeOrderStore{checkoutRes: orders.CheckoutResult{
		Order: orders.Order{ID: "o-1", Status: orders.StatusNew},
	}}
	cs := &fakeCouponStore{coupon: coupons.Coupon{
		Code: "SAVE10", DiscountPercent: 10, MaxUses: 5, Active: true,
	}}
	h, _ := newOrdersHandler(store, cs)
	r := NewRouter()
	h.Register(r)

	rec := doJSON(t, r, http.MethodPost, "/checkout", checkoutBody("SAVE10"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp CheckoutResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.CouponApplied)
	assert.InDelta(t, 19.00, resp.Discount, 1e-9)
	assert.Equal(t, []string{"SAVE10"}, cs.redeemed)

	require.Len(t, store.checkoutCalls, 1)
	// (190 - 19) * 1.18
	assert.InDelta(t, 201.78, store.checkoutCalls[0].Total, 1e-9)
}

func TestCheckoutStaleCouponProceedsUndiscounted(t *testing.T) {
	store := &fakeOrderStore{checkoutRes: orders.CheckoutResult{
		Order: orders.Order{ID: "o-1", Status: orders.StatusNew},
	}}
	cs := &fakeCouponStore{getErr: coupons.ErrCouponNotFound}
	h, _ := newOrdersHandler(store, cs)
	r := NewRouter()
	h.Register(r)

	rec := doJSON(t, r, http.MethodPost, "/checkout", checkoutBody("GONE"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CheckoutResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.CouponApplied)
	assert.Zero(t, resp.Discount)
	assert.Empty(t, cs.redeemed)
}

func TestCheckoutIdempotentReplay(t *testing.T) {
	store := &fakeOrderStore{checkoutRes: orders.CheckoutResult{
		Order:   orders.Order{ID: "o-1", Status: orders.StatusNew},
		Existed: true,
	}}
	h, pub := newOrdersHandler(store, nil)
	r := NewRouter()
	h.Register(r)

	rec := doJSON(t, r, http.MethodPost, "/checkout", checkoutBody(""))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CheckoutResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Idempotent)
	assert.Empty(t, pub.messages, "a replayed checkout must not publish again")
}

func TestCheckoutInsufficientStock(t *testing.T) {
	store := &fakeOrderStore{checkoutErr: &catalog.InsufficientStockError{
		ProductID: "p-1", Requested: 5, Available: 2,
	}}
	h, pub := newOrdersHandler(store, nil)
	r := NewRouter()
	h.Register(r)

	rec := doJSON(t, r, http.MethodPost, "/checkout", checkoutBody(""))
	require.Equal(t, http.StatusConflict, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "insufficient_stock", body.Kind)
	assert.Equal(t, "p-1", body.ProductID)
	assert.Empty(t, pub.messages)
}

func TestCheckoutValidationFailure(t *testing.T) {
	store := &fakeOrderStore{checkoutErr: &orders.ValidationError{
		Field: "requested_delivery", Reason: "must be between 1h0m0s and 48h0m0s from now",
	}}
	h, _ := newOrdersHandler(store, nil)
	r := NewRouter()
	h.Register(r)

	rec := doJSON(t, r, http.MethodPost, "/checkout", checkoutBody(""))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation_failure", body.Kind)
	assert.Equal(t, "requested_delivery", body.Field)
}

func TestClaimConflict(t *testing.T) {
	store := &fakeOrderStore{claimErr: fmt.Errorf("claim o-1: %w", orders.ErrAlreadyClaimed)}
	h, pub := newOrdersHandler(store, nil)
	r := NewRouter()
	h.Register(r)

	rec := doJSON(t, r, http.MethodPost, "/orders/o-1/claim", map[string]string{"carrier": "mehmet"})
	require.Equal(t, http.StatusConflict, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "already_claimed", body.Kind)
	assert.Empty(t, pub.messages)
}

func TestClaimOK(t *testing.T) {
	store := &fakeOrderStore{claimRes: orders.Order{ID: "o-1", Status: orders.StatusInProgress}}
	h, pub := newOrdersHandler(store, nil)
	r := NewRouter()
	h.Register(r)

	rec := doJSON(t, r, http.MethodPost, "/orders/o-1/claim", map[string]string{"carrier": "mehmet"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, pub.messages, 1)

	var env orders.Envelope
	require.NoError(t, json.Unmarshal(pub.messages[0], &env))
	assert.Equal(t, orders.EventOrderClaimed, env.EventType)
	assert.Equal(t, "o-1", env.CorrelationID)
}

func TestDeliverWithoutTimestampLetsStoreStamp(t *testing.T) {
	stamped := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	store := &fakeOrderStore{deliverRes: orders.Order{
		ID: "o-1", Customer: "ayse", Status: orders.StatusDelivered,
		Total: 224.20, DeliveredAt: &stamped,
	}}
	h, pub := newOrdersHandler(store, nil)
	r := NewRouter()
	h.Register(r)

	rec := doJSON(t, r, http.MethodPost, "/orders/o-1/deliver", map[string]string{"carrier": "mehmet"})
	require.Equal(t, http.StatusOK, rec.Code)

	// the handler must not invent a timestamp; the store stamps it
	require.Len(t, store.deliverAt, 1)
	assert.True(t, store.deliverAt[0].IsZero())

	// the event carries the stamped time, not the zero value
	require.Len(t, pub.messages, 1)
	var env orders.Envelope
	require.NoError(t, json.Unmarshal(pub.messages[0], &env))
	var payload orders.OrderDeliveredPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.True(t, payload.DeliveredAt.Equal(stamped))
}

func TestDeliverWrongCarrier(t *testing.T) {
	store := &fakeOrderStore{deliverErr: fmt.Errorf("deliver o-1: %w", orders.ErrUnauthorized)}
	h, _ := newOrdersHandler(store, nil)
	r := NewRouter()
	h.Register(r)

	rec := doJSON(t, r, http.MethodPost, "/orders/o-1/deliver", map[string]any{
		"carrier": "someone-else", "delivered_at": time.Now(),
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCancelWindowExpired(t *testing.T) {
	store := &fakeOrderStore{cancelErr: fmt.Errorf("cancel o-1: %w", orders.ErrCancelWindowExpired)}
	h, pub := newOrdersHandler(store, nil)
	r := NewRouter()
	h.Register(r)

	rec := doJSON(t, r, http.MethodPost, "/orders/o-1/cancel", map[string]string{"customer": "ayse"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cancellation_window_expired", body.Kind)
	assert.Empty(t, pub.messages)
}

func TestGetOrderFallsBackToStore(t *testing.T) {
	store := &fakeOrderStore{status: orders.StatusInProgress}
	h, _ := newOrdersHandler(store, nil)
	r := NewRouter()
	h.Register(r)

	req := httptest.NewRequest(http.MethodGet, "/orders/o-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "IN_PROGRESS", body["status"])
}

func TestGetOrderNotFound(t *testing.T) {
	store := &fakeOrderStore{statusErr: fmt.Errorf("order o-x: %w", orders.ErrOrderNotFound)}
	h, _ := newOrdersHandler(store, nil)
	r := NewRouter()
	h.Register(r)

	req := httptest.NewRequest(http.MethodGet, "/orders/o-x", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
