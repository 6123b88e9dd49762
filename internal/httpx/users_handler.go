package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/selvitopi/greengrocer/internal/users"
)

type UserStore interface {
	Create(ctx context.Context, u users.User) (users.User, error)
	Get(ctx context.Context, username string) (users.User, error)
}

type UsersHandler struct {
	Store UserStore
}

func (h *UsersHandler) Register(r *chi.Mux) {
	r.Post("/users", h.create)
	r.Get("/users/{username}", h.get)
}

func (h *UsersHandler) create(w http.ResponseWriter, r *http.Request) {
	var u users.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if u.Username == "" || !u.Role.Valid() {
		badRequest(w, "missing username or invalid role")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	created, err := h.Store.Create(ctx, u)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *UsersHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	u, err := h.Store.Get(ctx, chi.URLParam(r, "username"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
