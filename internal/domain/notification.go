package domain

import (
	"time"
)

// Severity classifies a popup notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// NotificationEvent is an ephemeral notification produced from a
// provisioning completion callback. It exists only for delivery and the
// client-side display countdown; the durable record of the underlying
// provisioning result lives on the request row.
type NotificationEvent struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Severity  Severity       `json:"severity"`
	ActionURL string         `json:"action_url,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// DisplayDuration returns how long the client should show the popup
// before auto-dismissing it. Success popups linger longer.
func (e *NotificationEvent) DisplayDuration() time.Duration {
	if e.Severity == SeveritySuccess {
		return 8 * time.Second
	}
	return 5 * time.Second
}
