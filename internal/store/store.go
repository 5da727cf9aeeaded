// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/domain"
)

// Repository defines the interface for persisting users, provisioning
// requests, history watermarks, queued notifications, and chat sessions.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns (nil, nil) when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// CreateRequest inserts a new provisioning request row with status pending.
	CreateRequest(ctx context.Context, req *domain.ProvisionRequest) error

	// GetRequestByIdentifier looks up a request by its request identifier.
	// Returns (nil, nil) when absent.
	GetRequestByIdentifier(ctx context.Context, identifier string) (*domain.ProvisionRequest, error)

	// UpdateRequestStatus updates the status of a request. A non-zero prNumber
	// records the pull request; a non-nil deployedAt records completion time.
	UpdateRequestStatus(ctx context.Context, identifier, status string, prNumber int, deployedAt *time.Time) error

	// ListRequestsAfter returns the user's requests created strictly after the
	// given time, newest first.
	ListRequestsAfter(ctx context.Context, userID string, after time.Time) ([]*domain.ProvisionRequest, error)

	// GetWatermark returns the user's history watermark, zero time when unset.
	GetWatermark(ctx context.Context, userID string) (time.Time, error)

	// AdvanceWatermark durably sets the user's watermark to ts. The stored
	// value is monotonically non-decreasing; an earlier ts is a no-op.
	AdvanceWatermark(ctx context.Context, userID string, ts time.Time) error

	// EnqueueNotification stores a notification for later delivery. The entry
	// is dropped by PurgeExpiredNotifications once expiresAt passes.
	EnqueueNotification(ctx context.Context, ev *domain.NotificationEvent, expiresAt time.Time) error

	// PendingNotifications returns the user's queued notifications that have
	// not expired as of now, oldest first.
	PendingNotifications(ctx context.Context, userID string, now time.Time) ([]*domain.NotificationEvent, error)

	// DeleteNotification removes a queued notification after delivery.
	DeleteNotification(ctx context.Context, id string) error

	// PurgeExpiredNotifications deletes entries past their expiry and returns
	// them so misses can be logged.
	PurgeExpiredNotifications(ctx context.Context, now time.Time) ([]*domain.NotificationEvent, error)

	// GetChatSession retrieves persisted conversation state for a user.
	// Returns (nil, nil) when absent.
	GetChatSession(ctx context.Context, userID string) (*domain.ChatSessionRecord, error)

	// UpsertChatSession creates or updates persisted conversation state.
	UpsertChatSession(ctx context.Context, rec *domain.ChatSessionRecord) error

	// CleanupStaleChatSessions removes persisted sessions idle longer than ttl.
	CleanupStaleChatSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
