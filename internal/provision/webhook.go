package provision

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/chat"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/domain"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/notify"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/store"
)

// deploymentCallback is the payload the pipeline posts back on status changes.
type deploymentCallback struct {
	RequestIdentifier string `json:"request_identifier"`
	UserEmail         string `json:"user_email"`
	Status            string `json:"status"`
	PRNumber          int    `json:"pr_number"`
	InstanceID        string `json:"instance_id"`
	PublicIP          string `json:"public_ip"`
	ConsoleURL        string `json:"console_url"`
	SSHCommand        string `json:"ssh_command"`
	ErrorMessage      string `json:"error_message"`
}

type chatResponsePush struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	ShowTextInput bool   `json:"show_text_input"`
	Timestamp     int64  `json:"timestamp,omitempty"`
}

// WebhookHandler receives deployment status callbacks from the pipeline,
// authenticated with the shared service token.
type WebhookHandler struct {
	repo       store.Repository
	dispatcher *notify.Dispatcher
	registry   *chat.Registry
	apiToken   string
}

// NewWebhookHandler creates the pipeline callback handler.
func NewWebhookHandler(repo store.Repository, dispatcher *notify.Dispatcher, registry *chat.Registry, apiToken string) *WebhookHandler {
	return &WebhookHandler{
		repo:       repo,
		dispatcher: dispatcher,
		registry:   registry,
		apiToken:   apiToken,
	}
}

// RegisterRoutes mounts the webhook endpoints on the router.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Route("/infrastructure", func(r chi.Router) {
		r.Use(h.requireServiceToken)
		r.Post("/notify-deployment", h.handleNotifyDeployment)
		r.Get("/health", h.handleHealth)
	})
}

func (h *WebhookHandler) requireServiceToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token != h.apiToken {
			slog.Warn("Webhook rejected: bad service token", "ip", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *WebhookHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) handleNotifyDeployment(w http.ResponseWriter, r *http.Request) {
	var cb deploymentCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if cb.RequestIdentifier == "" || cb.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request_identifier and status are required"})
		return
	}

	req, err := h.repo.GetRequestByIdentifier(r.Context(), cb.RequestIdentifier)
	if err != nil {
		slog.Error("Failed to look up request", "error", err, "request_identifier", cb.RequestIdentifier)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	if req == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown request"})
		return
	}

	slog.Info("Deployment callback received",
		"request_identifier", cb.RequestIdentifier, "status", cb.Status, "user_id", req.UserID)

	var ev *domain.NotificationEvent
	var chatText string

	switch cb.Status {
	case "pr_created", "pending_approval":
		if err := h.repo.UpdateRequestStatus(r.Context(), cb.RequestIdentifier, domain.RequestStatusPendingApproval, cb.PRNumber, nil); err != nil {
			slog.Error("Failed to update request status", "error", err, "request_identifier", cb.RequestIdentifier)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "update failed"})
			return
		}
		ev = &domain.NotificationEvent{
			UserID:   req.UserID,
			Title:    "Request Submitted",
			Body:     fmt.Sprintf("Request %s is awaiting approval (PR #%d).", req.ShortID(), cb.PRNumber),
			Severity: domain.SeverityInfo,
		}
		chatText = fmt.Sprintf("Your request %s has been submitted for approval. Pull request #%d is under review.", req.ShortID(), cb.PRNumber)

	case "deployed":
		now := time.Now().UTC()
		if err := h.repo.UpdateRequestStatus(r.Context(), cb.RequestIdentifier, domain.RequestStatusDeployed, cb.PRNumber, &now); err != nil {
			slog.Error("Failed to update request status", "error", err, "request_identifier", cb.RequestIdentifier)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "update failed"})
			return
		}
		details := map[string]any{
			"instance_id": cb.InstanceID,
			"public_ip":   cb.PublicIP,
			"console_url": cb.ConsoleURL,
			"ssh_command": cb.SSHCommand,
		}
		ev = &domain.NotificationEvent{
			UserID:    req.UserID,
			Title:     "Deployment Complete",
			Body:      fmt.Sprintf("Request %s deployed successfully.", req.ShortID()),
			Severity:  domain.SeveritySuccess,
			ActionURL: cb.ConsoleURL,
			RequestID: req.RequestIdentifier,
			Details:   details,
		}
		chatText = fmt.Sprintf("Your infrastructure for request %s is ready. Instance %s is reachable at %s.", req.ShortID(), cb.InstanceID, cb.PublicIP)

	case "failed", "pr_failed":
		status := domain.RequestStatusFailed
		if cb.Status == "pr_failed" {
			status = domain.RequestStatusPRFailed
		}
		if err := h.repo.UpdateRequestStatus(r.Context(), cb.RequestIdentifier, status, cb.PRNumber, nil); err != nil {
			slog.Error("Failed to update request status", "error", err, "request_identifier", cb.RequestIdentifier)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "update failed"})
			return
		}
		body := fmt.Sprintf("Request %s failed.", req.ShortID())
		if cb.ErrorMessage != "" {
			body = fmt.Sprintf("Request %s failed: %s", req.ShortID(), cb.ErrorMessage)
		}
		ev = &domain.NotificationEvent{
			UserID:   req.UserID,
			Title:    "Deployment Failed",
			Body:     body,
			Severity: domain.SeverityError,
		}
		chatText = body + " You can start a new request."

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status: " + cb.Status})
		return
	}

	ev.ID = uuid.New().String()
	ev.CreatedAt = time.Now().UTC()
	if err := h.dispatcher.Deliver(r.Context(), ev); err != nil {
		slog.Error("Failed to deliver notification", "error", err, "request_identifier", cb.RequestIdentifier)
	}

	// Best effort: surface the status change in open chat tabs too.
	h.registry.Broadcast(r.Context(), req.UserID, chatResponsePush{
		Type:          "chat_response",
		Message:       chatText,
		ShowTextInput: true,
		Timestamp:     time.Now().UnixMilli(),
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
