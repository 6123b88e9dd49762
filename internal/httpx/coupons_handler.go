package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/selvitopi/greengrocer/internal/coupons"
)

type CouponAdminStore interface {
	Create(ctx context.Context, in coupons.CreateInput) (coupons.Coupon, error)
	GetByCode(ctx context.Context, code string) (coupons.Coupon, error)
	SetActive(ctx context.Context, id string, active bool) error
	AssignTo(ctx context.Context, code, username string) error
	ListAll(ctx context.Context) ([]coupons.Coupon, error)
	ListActive(ctx context.Context) ([]coupons.Coupon, error)
}

type CouponsHandler struct {
	Store CouponAdminStore
}

func (h *CouponsHandler) Register(r *chi.Mux) {
	r.Post("/coupons", h.create)
	r.Get("/coupons", h.list)
	r.Get("/coupons/{code}", h.get)
	r.Post("/coupons/{code}/assign", h.assign)
	r.Post("/coupons/{id}/deactivate", h.deactivate)
}

type createCouponReq struct {
	Code            string     `json:"code"`
	DiscountPercent float64    `json:"discount_percent"`
	DiscountAmount  float64    `json:"discount_amount"`
	MinOrderTotal   float64    `json:"min_order_total"`
	ValidFrom       *time.Time `json:"valid_from,omitempty"`
	ValidUntil      *time.Time `json:"valid_until,omitempty"`
	MaxUses         int        `json:"max_uses"`
}

func (h *CouponsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createCouponReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		badRequest(w, "missing code")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Store.Create(ctx, coupons.CreateInput{
		Code:            req.Code,
		DiscountPercent: req.DiscountPercent,
		DiscountAmount:  req.DiscountAmount,
		MinOrderTotal:   req.MinOrderTotal,
		ValidFrom:       req.ValidFrom,
		ValidUntil:      req.ValidUntil,
		MaxUses:         req.MaxUses,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CouponsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Store.GetByCode(ctx, chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CouponsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var (
		cs  []coupons.Coupon
		err error
	)
	if r.URL.Query().Get("state") == "active" {
		cs, err = h.Store.ListActive(ctx)
	} else {
		cs, err = h.Store.ListAll(ctx)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *CouponsHandler) assign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		badRequest(w, "missing username")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Store.AssignTo(ctx, chi.URLParam(r, "code"), req.Username); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CouponsHandler) deactivate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Store.SetActive(ctx, chi.URLParam(r, "id"), false); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
