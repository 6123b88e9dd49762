package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/selvitopi/greengrocer/internal/loyalty"
)

type LoyaltyStore interface {
	Get(ctx context.Context, username string) (loyalty.Account, error)
	RedeemPoints(ctx context.Context, username string, points int) error
	Top(ctx context.Context, limit int) ([]loyalty.Account, error)
}

type LoyaltyHandler struct {
	Store LoyaltyStore
}

func (h *LoyaltyHandler) Register(r *chi.Mux) {
	r.Get("/loyalty/top", h.top)
	r.Get("/loyalty/{username}", h.get)
	r.Post("/loyalty/{username}/redeem", h.redeem)
}

func (h *LoyaltyHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	a, err := h.Store.Get(ctx, chi.URLParam(r, "username"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *LoyaltyHandler) redeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points int `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Points <= 0 {
		badRequest(w, "points must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	username := chi.URLParam(r, "username")
	if err := h.Store.RedeemPoints(ctx, username, req.Points); err != nil {
		writeDomainError(w, err)
		return
	}
	a, err := h.Store.Get(ctx, username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *LoyaltyHandler) top(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, _ = strconv.Atoi(s)
	}
	as, err := h.Store.Top(ctx, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, as)
}
