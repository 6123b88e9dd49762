package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/selvitopi/greengrocer/internal/catalog"
)

type CatalogStore interface {
	Create(ctx context.Context, name, kind string, price, stock, threshold float64) (catalog.Product, error)
	GetByID(ctx context.Context, id string) (catalog.Product, error)
	List(ctx context.Context) ([]catalog.Product, error)
	ListByKind(ctx context.Context, kind string) ([]catalog.Product, error)
	ListLowStock(ctx context.Context) ([]catalog.Product, error)
	UpdatePrice(ctx context.Context, id string, price float64) error
	UpdateDiscount(ctx context.Context, id string, percent float64) error
	UpdateThreshold(ctx context.Context, id string, threshold float64) error
	AddStock(ctx context.Context, id string, kg float64) error
}

type CatalogHandler struct {
	Store CatalogStore
}

func (h *CatalogHandler) Register(r *chi.Mux) {
	r.Post("/products", h.create)
	r.Get("/products", h.list)
	r.Get("/products/low-stock", h.listLowStock)
	r.Get("/products/{id}", h.get)
	r.Patch("/products/{id}/price", h.patchPrice)
	r.Patch("/products/{id}/discount", h.patchDiscount)
	r.Patch("/products/{id}/threshold", h.patchThreshold)
	r.Post("/products/{id}/stock", h.addStock)
}

// productView adds the computed charge price to the stored row.
type productView struct {
	catalog.Product
	EffectivePrice float64 `json:"effective_price"`
	LowStock       bool    `json:"low_stock"`
}

func view(p catalog.Product) productView {
	return productView{Product: p, EffectivePrice: p.EffectivePrice(), LowStock: p.LowStock()}
}

func views(ps []catalog.Product) []productView {
	out := make([]productView, 0, len(ps))
	for _, p := range ps {
		out = append(out, view(p))
	}
	return out
}

type createProductReq struct {
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Price     float64 `json:"price"`
	Stock     float64 `json:"stock"`
	Threshold float64 `json:"threshold"`
}

func (h *CatalogHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.Name == "" || req.Kind == "" || req.Price <= 0 || req.Stock < 0 {
		badRequest(w, "missing or invalid fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Store.Create(ctx, req.Name, req.Kind, req.Price, req.Stock, req.Threshold)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view(p))
}

func (h *CatalogHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Store.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(p))
}

func (h *CatalogHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var (
		ps  []catalog.Product
		err error
	)
	if kind := r.URL.Query().Get("kind"); kind != "" {
		ps, err = h.Store.ListByKind(ctx, kind)
	} else {
		ps, err = h.Store.List(ctx)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views(ps))
}

func (h *CatalogHandler) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Store.ListLowStock(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views(ps))
}

func (h *CatalogHandler) patchPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Price <= 0 {
		badRequest(w, "price must be positive")
		return
	}
	h.patch(w, r, func(ctx context.Context, id string) error {
		return h.Store.UpdatePrice(ctx, id, req.Price)
	})
}

func (h *CatalogHandler) patchDiscount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Percent float64 `json:"percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Percent < 0 || req.Percent > 100 {
		badRequest(w, "percent must be between 0 and 100")
		return
	}
	h.patch(w, r, func(ctx context.Context, id string) error {
		return h.Store.UpdateDiscount(ctx, id, req.Percent)
	})
}

func (h *CatalogHandler) patchThreshold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Threshold float64 `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Threshold < 1 {
		badRequest(w, "threshold must be at least 1")
		return
	}
	h.patch(w, r, func(ctx context.Context, id string) error {
		return h.Store.UpdateThreshold(ctx, id, req.Threshold)
	})
}

func (h *CatalogHandler) addStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kg float64 `json:"kg"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Kg <= 0 {
		badRequest(w, "kg must be positive")
		return
	}
	h.patch(w, r, func(ctx context.Context, id string) error {
		return h.Store.AddStock(ctx, id, req.Kg)
	})
}

// patch runs the mutation and replies with the fresh row.
func (h *CatalogHandler) patch(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := fn(ctx, id); err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := h.Store.GetByID(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(p))
}
