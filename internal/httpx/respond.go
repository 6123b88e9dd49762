package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/selvitopi/greengrocer/internal/catalog"
	"github.com/selvitopi/greengrocer/internal/coupons"
	"github.com/selvitopi/greengrocer/internal/loyalty"
	"github.com/selvitopi/greengrocer/internal/orders"
	"github.com/selvitopi/greengrocer/internal/users"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	ProductID string `json:"product_id,omitempty"`
	Field     string `json:"field,omitempty"`
}

// writeDomainError maps the typed failure taxonomy onto HTTP statuses.
// Every rejection names its kind so the UI can explain why.
func writeDomainError(w http.ResponseWriter, err error) {
	var stockErr *catalog.InsufficientStockError
	var valErr *orders.ValidationError

	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, errorBody{
			Error: stockErr.Error(), Kind: "insufficient_stock", ProductID: stockErr.ProductID,
		})
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error: valErr.Error(), Kind: "validation_failure", Field: valErr.Field,
		})
	case errors.Is(err, orders.ErrAlreadyClaimed):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: "already_claimed"})
	case errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Kind: "invalid_transition"})
	case errors.Is(err, orders.ErrCancelWindowExpired):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Kind: "cancellation_window_expired"})
	case errors.Is(err, orders.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Kind: "unauthorized_actor"})
	case errors.Is(err, coupons.ErrNotRedeemable):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: "coupon_exhausted"})
	case errors.Is(err, loyalty.ErrInsufficientPoints):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: "insufficient_points"})
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, coupons.ErrCouponNotFound),
		errors.Is(err, loyalty.ErrAccountNotFound),
		errors.Is(err, users.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Kind: "not_found"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error(), Kind: "internal"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: "bad_request"})
}
