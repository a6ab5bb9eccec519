package token

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	tokenservice "github.com/curiolabs/curio/internal/service/token"
	"github.com/curiolabs/curio/pkg/utils"
)

// Handler exposes virtual-user token management for the demo proxy.
type Handler struct {
	store    *tokenservice.Store
	adminKey string
}

// New creates a token handler. An empty adminKey leaves the management
// endpoints open, which is acceptable only for local demos.
func New(store *tokenservice.Store, adminKey string) *Handler {
	return &Handler{store: store, adminKey: adminKey}
}

// RegisterRoutes mounts the token management endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/tokens", h.handleIssue)
	r.Get("/tokens", h.handleList)
	r.Delete("/tokens/{userID}", h.handleRevoke)
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.adminKey == "" {
		return true
	}
	return r.Header.Get("X-Admin-Key") == h.adminKey
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		utils.RespondError(w, http.StatusUnauthorized, "admin key required")
		return
	}

	var payload struct {
		Label string `json:"label"`
	}
	if r.Body != nil {
		// An empty body is fine; the store falls back to a default label.
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	user, plaintext, err := h.store.Issue(r.Context(), payload.Label)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"user":  user,
		"token": plaintext,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		utils.RespondError(w, http.StatusUnauthorized, "admin key required")
		return
	}

	users, err := h.store.List(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to list tokens")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		utils.RespondError(w, http.StatusUnauthorized, "admin key required")
		return
	}

	err := h.store.Revoke(r.Context(), chi.URLParam(r, "userID"))
	if errors.Is(err, tokenservice.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "virtual user not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to revoke token")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
