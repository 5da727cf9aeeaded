// Package notify delivers popup notifications to live chat connections and
// queues them durably for users who are offline.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/chat"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/domain"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/store"
)

type popupPayload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Duration  int64  `json:"duration"`
	ActionURL string `json:"actionUrl,omitempty"`
}

type popupFrame struct {
	Type  string       `json:"type"`
	Popup popupPayload `json:"popup"`
}

type deploymentCompleteFrame struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"`
	Details   map[string]any `json:"details"`
}

// Dispatcher fans notification events out to every live connection of the
// target user, arming a per-connection auto-dismiss timer for each delivery.
// Events for offline users are queued and replayed on the next connect,
// within the retry window.
type Dispatcher struct {
	registry *chat.Registry
	repo     store.Repository
	timers   *TimerSet
	window   time.Duration
}

// NewDispatcher creates a dispatcher with the given offline retry window.
func NewDispatcher(registry *chat.Registry, repo store.Repository, window time.Duration) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		repo:     repo,
		timers:   NewTimerSet(),
		window:   window,
	}
}

// Deliver sends the event to every live connection of its user, or queues it
// when the user has none or when no connection takes the write. Delivery is
// at-least-once; a user connected on several tabs sees the popup on every
// tab.
func (d *Dispatcher) Deliver(ctx context.Context, ev *domain.NotificationEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	if !d.registry.Connected(ev.UserID) {
		return d.enqueue(ctx, ev)
	}

	// The user may have disconnected between the check and the write, or the
	// only live connection's write may fail. Either way zero deliveries means
	// the event goes to the durable queue instead of being dropped.
	if d.push(ctx, ev) == 0 {
		return d.enqueue(ctx, ev)
	}
	return nil
}

func (d *Dispatcher) enqueue(ctx context.Context, ev *domain.NotificationEvent) error {
	expiresAt := ev.CreatedAt.Add(d.window)
	if err := d.repo.EnqueueNotification(ctx, ev, expiresAt); err != nil {
		slog.Error("Failed to queue notification", "error", err, "user_id", ev.UserID, "notification_id", ev.ID)
		return err
	}
	slog.Info("Notification queued for offline user", "user_id", ev.UserID, "notification_id", ev.ID, "expires_at", expiresAt)
	return nil
}

// push writes the popup frame to every live connection and arms the
// auto-dismiss timers, returning how many connections actually took the
// write. Zero means nobody saw the popup and the caller must keep the event.
func (d *Dispatcher) push(ctx context.Context, ev *domain.NotificationEvent) int {
	frame := popupFrame{
		Type: "popup_notification",
		Popup: popupPayload{
			ID:        ev.ID,
			Title:     ev.Title,
			Message:   ev.Body,
			Type:      string(ev.Severity),
			Duration:  ev.DisplayDuration().Milliseconds(),
			ActionURL: ev.ActionURL,
		},
	}

	delivered := d.registry.Broadcast(ctx, ev.UserID, frame)
	for _, connID := range delivered {
		connID := connID
		d.timers.Schedule(connID, ev.ID, ev.DisplayDuration(), func() {
			slog.Debug("Notification auto-dismissed", "conn_id", connID, "notification_id", ev.ID)
		})
	}
	slog.Info("Notification delivered", "user_id", ev.UserID, "notification_id", ev.ID, "connections", len(delivered))

	if len(delivered) > 0 && ev.RequestID != "" && ev.Details != nil {
		d.registry.Broadcast(ctx, ev.UserID, deploymentCompleteFrame{
			Type:      "deployment_complete",
			RequestID: ev.RequestID,
			Details:   ev.Details,
		})
	}
	return len(delivered)
}

// Dismiss cancels the auto-dismiss timer for one connection's copy of a
// notification. Other tabs keep their own countdowns.
func (d *Dispatcher) Dismiss(connID, notificationID string) {
	if d.timers.Cancel(connID, notificationID) {
		slog.Debug("Notification dismissed", "conn_id", connID, "notification_id", notificationID)
	}
}

// DropConnection cancels every timer owned by a departed connection.
func (d *Dispatcher) DropConnection(connID string) {
	d.timers.CancelConn(connID)
}

// FlushPending replays queued notifications to a user who just connected.
// Each entry is deleted only after at least one connection took the write,
// so a crash between the two at worst redelivers. A flush that delivers
// nothing (the user vanished again) leaves the rest of the queue intact.
func (d *Dispatcher) FlushPending(ctx context.Context, userID string) {
	pending, err := d.repo.PendingNotifications(ctx, userID, time.Now().UTC())
	if err != nil {
		slog.Error("Failed to load pending notifications", "error", err, "user_id", userID)
		return
	}
	for _, ev := range pending {
		if !d.registry.Connected(userID) {
			return
		}
		if d.push(ctx, ev) == 0 {
			return
		}
		if err := d.repo.DeleteNotification(ctx, ev.ID); err != nil {
			slog.Error("Failed to delete delivered notification", "error", err, "notification_id", ev.ID)
		}
	}
}

// ExpireSweep purges queued notifications past the retry window, logging
// each permanently missed delivery.
func (d *Dispatcher) ExpireSweep(ctx context.Context) {
	expired, err := d.repo.PurgeExpiredNotifications(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("Failed to purge expired notifications", "error", err)
		return
	}
	for _, ev := range expired {
		slog.Warn("Notification delivery window expired",
			"user_id", ev.UserID, "notification_id", ev.ID, "title", ev.Title, "created_at", ev.CreatedAt)
	}
}

// Close stops all pending auto-dismiss timers.
func (d *Dispatcher) Close() {
	d.timers.Close()
}
