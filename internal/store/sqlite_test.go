package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestUserRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetUser(ctx, "alice@corp.test")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for an unknown user")
	}

	now := time.Now()
	user := &domain.User{
		UserID:       "alice@corp.test",
		Email:        "alice@corp.test",
		Name:         "Alice",
		Department:   "platform",
		ManagerEmail: "boss@corp.test",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.UpsertUser(ctx, user); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err = repo.GetUser(ctx, "alice@corp.test")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || got.Name != "Alice" || got.ManagerEmail != "boss@corp.test" {
		t.Fatalf("unexpected user: %+v", got)
	}

	user.Department = "infra"
	if err := repo.UpsertUser(ctx, user); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	got, _ = repo.GetUser(ctx, "alice@corp.test")
	if got.Department != "infra" {
		t.Fatalf("upsert must update in place, got %+v", got)
	}
}

func TestRequestLifecycle(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	req := &domain.ProvisionRequest{
		ID:                "r1",
		UserID:            "alice@corp.test",
		RequestIdentifier: "platform_aws_dev_aaaa1111",
		CloudProvider:     "aws",
		Environment:       "dev",
		ResourceType:      "vm",
		Parameters:        map[string]any{"instance_type": "t3.micro", "storage_gb": float64(50)},
		Status:            domain.RequestStatusPending,
		CreatedAt:         time.Now().Add(-time.Hour),
	}
	if err := repo.CreateRequest(ctx, req); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := repo.GetRequestByIdentifier(ctx, "platform_aws_dev_aaaa1111")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got == nil || got.Status != domain.RequestStatusPending {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.Parameters["instance_type"] != "t3.micro" {
		t.Fatalf("parameters must survive the round trip, got %v", got.Parameters)
	}

	if err := repo.UpdateRequestStatus(ctx, "platform_aws_dev_aaaa1111", domain.RequestStatusPendingApproval, 7, nil); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, _ = repo.GetRequestByIdentifier(ctx, "platform_aws_dev_aaaa1111")
	if got.Status != domain.RequestStatusPendingApproval || got.PRNumber != 7 {
		t.Fatalf("unexpected state after PR: %+v", got)
	}
	if got.DeployedAt != nil {
		t.Fatal("deployed_at must stay unset until deployment")
	}

	deployedAt := time.Now()
	if err := repo.UpdateRequestStatus(ctx, "platform_aws_dev_aaaa1111", domain.RequestStatusDeployed, 0, &deployedAt); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, _ = repo.GetRequestByIdentifier(ctx, "platform_aws_dev_aaaa1111")
	if got.Status != domain.RequestStatusDeployed || got.DeployedAt == nil {
		t.Fatalf("unexpected state after deploy: %+v", got)
	}
	if got.PRNumber != 7 {
		t.Fatal("a zero prNumber must not overwrite the recorded PR")
	}

	if err := repo.UpdateRequestStatus(ctx, "does-not-exist", domain.RequestStatusFailed, 0, nil); err == nil {
		t.Fatal("updating an unknown request must fail")
	}
}

func TestListRequestsAfterFiltersAndOrders(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-3 * time.Hour)

	for i, id := range []string{"platform_aws_dev_aaaa1111", "platform_aws_dev_bbbb2222", "platform_aws_dev_cccc3333"} {
		err := repo.CreateRequest(ctx, &domain.ProvisionRequest{
			ID:                id + "-id",
			UserID:            "alice@corp.test",
			RequestIdentifier: id,
			CloudProvider:     "aws",
			Environment:       "dev",
			ResourceType:      "vm",
			Status:            domain.RequestStatusPending,
			CreatedAt:         base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	reqs, err := repo.ListRequestsAfter(ctx, "alice@corp.test", base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests after the cutoff, got %d", len(reqs))
	}
	if reqs[0].RequestIdentifier != "platform_aws_dev_cccc3333" {
		t.Fatalf("expected newest first, got %s", reqs[0].RequestIdentifier)
	}

	reqs, err = repo.ListRequestsAfter(ctx, "someone-else", time.Time{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("expected no requests for another user, got %d", len(reqs))
	}
}

func TestNotificationQueue(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	fresh := &domain.NotificationEvent{
		ID:        "n-fresh",
		UserID:    "alice@corp.test",
		Title:     "Deployment Complete",
		Body:      "done",
		Severity:  domain.SeveritySuccess,
		Details:   map[string]any{"public_ip": "203.0.113.7"},
		CreatedAt: now,
	}
	stale := &domain.NotificationEvent{
		ID:        "n-stale",
		UserID:    "alice@corp.test",
		Title:     "Old News",
		Body:      "missed",
		Severity:  domain.SeverityInfo,
		CreatedAt: now.Add(-48 * time.Hour),
	}
	if err := repo.EnqueueNotification(ctx, fresh, now.Add(24*time.Hour)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := repo.EnqueueNotification(ctx, stale, now.Add(-24*time.Hour)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	pending, err := repo.PendingNotifications(ctx, "alice@corp.test", now)
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "n-fresh" {
		t.Fatalf("expected only the unexpired entry, got %v", pending)
	}
	if pending[0].Details["public_ip"] != "203.0.113.7" {
		t.Fatalf("details must survive the round trip, got %v", pending[0].Details)
	}

	purged, err := repo.PurgeExpiredNotifications(ctx, now)
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if len(purged) != 1 || purged[0].ID != "n-stale" {
		t.Fatalf("expected the stale entry to be purged, got %v", purged)
	}

	if err := repo.DeleteNotification(ctx, "n-fresh"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	pending, _ = repo.PendingNotifications(ctx, "alice@corp.test", now)
	if len(pending) != 0 {
		t.Fatalf("expected empty queue, got %d", len(pending))
	}
}

func TestChatSessionPersistence(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetChatSession(ctx, "alice@corp.test")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for an unknown session")
	}

	rec := &domain.ChatSessionRecord{
		UserID:       "alice@corp.test",
		InputMode:    domain.InputChoice,
		MessagesJSON: `[{"role":"user","text":"hi"}]`,
		CreatedAt:    time.Now().Add(-time.Hour),
	}
	if err := repo.UpsertChatSession(ctx, rec); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err = repo.GetChatSession(ctx, "alice@corp.test")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || got.InputMode != domain.InputChoice {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Sessions idle longer than the TTL are cleaned up. A negative TTL puts
	// the threshold in the future, making every session stale.
	deleted, err := repo.CleanupStaleChatSessions(ctx, -time.Minute)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 stale session removed, got %d", deleted)
	}
	got, _ = repo.GetChatSession(ctx, "alice@corp.test")
	if got != nil {
		t.Fatal("expected the stale session to be gone")
	}
}
