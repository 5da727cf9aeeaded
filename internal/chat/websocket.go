package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/identity"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/store"
)

// Close code sent when the handshake credential is bad, mirroring the
// client's expectation of 4001 on auth failure.
const statusAuthRejected = websocket.StatusCode(4001)

// WebSocketHandler upgrades chat connections, authenticates the handshake,
// and pumps inbound frames into the router.
type WebSocketHandler struct {
	registry      *Registry
	router        *Router
	verifier      identity.Verifier
	repo          store.Repository
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates the chat WebSocket handler.
func NewWebSocketHandler(registry *Registry, router *Router, verifier identity.Verifier, repo store.Repository, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		registry:      registry,
		router:        router,
		verifier:      verifier,
		repo:          repo,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}

	// The credential is resolved before any registration; a bad token never
	// yields an anonymous session.
	userID, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		slog.Warn("WebSocket auth rejected", "error", err, "ip", r.RemoteAddr)
		_ = ws.Close(statusAuthRejected, "invalid token")
		return
	}

	if _, err := identity.EnsureUser(r.Context(), h.repo, userID); err != nil {
		slog.Error("Failed to ensure user", "error", err, "user_id", userID)
		_ = ws.Close(websocket.StatusInternalError, "user initialization failed")
		return
	}

	slog.Info("WebSocket connection accepted", "user_id", userID, "ip", r.RemoteAddr)

	conn := NewWebSocketConn(ws)
	connID := h.registry.Register(userID, conn)
	defer h.registry.Unregister(connID)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.readLoop(ctx, ws, connID, userID)
	slog.Info("WebSocket connection ended", "user_id", userID, "conn_id", connID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, connID, userID string) {
	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "user_id", userID, "conn_id", connID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID, "conn_id", connID)
			}
			return
		}
		h.router.HandleInbound(ctx, connID, userID, raw)
	}
}
