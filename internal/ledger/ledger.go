// Package ledger controls which provisioning requests a user can see.
// Clearing history never deletes rows; it advances a per-user watermark and
// listing filters to requests created after it.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/domain"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/store"
)

// Ledger serializes visibility reads against history clears per user, so a
// list started after a clear completes never shows pre-clear requests.
type Ledger struct {
	repo store.Repository

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

// New creates a ledger backed by the given repository.
func New(repo store.Repository) *Ledger {
	return &Ledger{
		repo:  repo,
		users: make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) userLock(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.users[userID]
	if !ok {
		m = &sync.Mutex{}
		l.users[userID] = m
	}
	return m
}

// ListVisible returns the user's requests created after their watermark,
// newest first. A user who never cleared sees everything.
func (l *Ledger) ListVisible(ctx context.Context, userID string) ([]*domain.ProvisionRequest, error) {
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	watermark, err := l.repo.GetWatermark(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read history watermark: %w", err)
	}
	reqs, err := l.repo.ListRequestsAfter(ctx, userID, watermark)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return reqs, nil
}

// ClearHistory advances the user's watermark to now and returns it. The
// underlying rows are untouched; requests completing later remain visible
// because their creation time is after the watermark. A persistence failure
// is surfaced so the caller never reports a clear that did not stick.
func (l *Ledger) ClearHistory(ctx context.Context, userID string) (time.Time, error) {
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	if err := l.repo.AdvanceWatermark(ctx, userID, now); err != nil {
		return time.Time{}, fmt.Errorf("advance history watermark: %w", err)
	}
	slog.Info("Request history cleared", "user_id", userID, "cleared_at", now)
	return now, nil
}
