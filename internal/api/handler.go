// Package api serves the authenticated REST endpoints backing the chat UI.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/chat"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/identity"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/ledger"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/store"
)

// Handler serves the REST API. Every route here runs behind the identity
// middleware, so the user ID is always present on the request context.
type Handler struct {
	repo     store.Repository
	ledger   *ledger.Ledger
	registry *chat.Registry
}

// NewHandler creates the API handler.
func NewHandler(repo store.Repository, ldg *ledger.Ledger, registry *chat.Registry) *Handler {
	return &Handler{repo: repo, ledger: ldg, registry: registry}
}

// RegisterRoutes mounts the API routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/me", h.handleMe)
	r.Get("/api/requests", h.handleListRequests)
	r.Post("/api/requests/clear-history", h.handleClearHistory)
	r.Get("/api/notifications", h.handleListNotifications)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load user", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if user == nil {
		h.writeError(w, http.StatusNotFound, "user not found")
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	reqs, err := h.ledger.ListVisible(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list requests", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "failed to list requests")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	clearedAt, err := h.ledger.ClearHistory(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to clear request history", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"cleared_at": clearedAt.Format(time.RFC3339)})
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	pending, err := h.repo.PendingNotifications(r.Context(), userID, time.Now().UTC())
	if err != nil {
		slog.Error("Failed to list notifications", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"notifications": pending})
}

// HandleChatHealth reports liveness plus the connected-user count. It is
// mounted outside the authenticated group.
func (h *Handler) HandleChatHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"connected_users": h.registry.ConnectedUsers(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
