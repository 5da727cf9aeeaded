package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/domain"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, store.Repository) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return New(repo), repo
}

func seedRequest(t *testing.T, repo store.Repository, userID, identifier string, createdAt time.Time) {
	t.Helper()
	err := repo.CreateRequest(context.Background(), &domain.ProvisionRequest{
		ID:                identifier + "-id",
		UserID:            userID,
		RequestIdentifier: identifier,
		CloudProvider:     "aws",
		Environment:       "dev",
		ResourceType:      "vm",
		Status:            domain.RequestStatusPending,
		CreatedAt:         createdAt,
	})
	if err != nil {
		t.Fatalf("failed to seed request %s: %v", identifier, err)
	}
}

func TestListVisibleWithoutClearShowsEverything(t *testing.T) {
	t.Parallel()

	ldg, repo := newTestLedger(t)
	now := time.Now()
	seedRequest(t, repo, "u1", "platform_aws_dev_aaaa1111", now.Add(-2*time.Hour))
	seedRequest(t, repo, "u1", "platform_aws_dev_bbbb2222", now.Add(-time.Hour))

	reqs, err := ldg.ListVisible(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].RequestIdentifier != "platform_aws_dev_bbbb2222" {
		t.Fatalf("expected newest first, got %s", reqs[0].RequestIdentifier)
	}
}

func TestClearHistoryHidesOldKeepsNew(t *testing.T) {
	t.Parallel()

	ldg, repo := newTestLedger(t)
	now := time.Now()
	seedRequest(t, repo, "u1", "platform_aws_dev_aaaa1111", now.Add(-2*time.Hour))

	clearedAt, err := ldg.ClearHistory(context.Background(), "u1")
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if clearedAt.IsZero() {
		t.Fatal("clear must return the watermark time")
	}

	reqs, err := ldg.ListVisible(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("pre-clear requests must be hidden, got %d", len(reqs))
	}

	// The row is hidden, not deleted.
	row, err := repo.GetRequestByIdentifier(context.Background(), "platform_aws_dev_aaaa1111")
	if err != nil || row == nil {
		t.Fatalf("clear must not delete rows: %v %v", row, err)
	}

	// A request created after the clear is visible.
	seedRequest(t, repo, "u1", "platform_aws_dev_cccc3333", now.Add(time.Hour))
	reqs, err = ldg.ListVisible(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(reqs) != 1 || reqs[0].RequestIdentifier != "platform_aws_dev_cccc3333" {
		t.Fatalf("post-clear request must be visible, got %v", reqs)
	}
}

func TestRequestCreatedSubSecondAfterClearStaysVisible(t *testing.T) {
	t.Parallel()

	ldg, repo := newTestLedger(t)

	clearedAt, err := ldg.ClearHistory(context.Background(), "u1")
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	// Same wall-clock second as the watermark, but strictly after it.
	seedRequest(t, repo, "u1", "platform_aws_dev_dddd4444", clearedAt.Add(200*time.Millisecond))

	reqs, err := ldg.ListVisible(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(reqs) != 1 || reqs[0].RequestIdentifier != "platform_aws_dev_dddd4444" {
		t.Fatalf("a request created after the clear must be visible, got %v", reqs)
	}
}

func TestClearHistoryIsPerUser(t *testing.T) {
	t.Parallel()

	ldg, repo := newTestLedger(t)
	now := time.Now()
	seedRequest(t, repo, "u1", "platform_aws_dev_aaaa1111", now.Add(-time.Hour))
	seedRequest(t, repo, "u2", "platform_aws_dev_bbbb2222", now.Add(-time.Hour))

	if _, err := ldg.ClearHistory(context.Background(), "u1"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	reqs, err := ldg.ListVisible(context.Background(), "u2")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("another user's history must be unaffected, got %d", len(reqs))
	}
}

func TestWatermarkIsMonotonic(t *testing.T) {
	t.Parallel()

	_, repo := newTestLedger(t)
	ctx := context.Background()
	later := time.Now()
	earlier := later.Add(-time.Hour)

	if err := repo.AdvanceWatermark(ctx, "u1", later); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if err := repo.AdvanceWatermark(ctx, "u1", earlier); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	got, err := repo.GetWatermark(ctx, "u1")
	if err != nil {
		t.Fatalf("get watermark failed: %v", err)
	}
	if got.Unix() != later.Unix() {
		t.Fatalf("watermark must never move backwards: got %v want %v", got, later)
	}
}

func TestConcurrentClearAndList(t *testing.T) {
	t.Parallel()

	ldg, repo := newTestLedger(t)
	now := time.Now()
	for i := 0; i < 5; i++ {
		seedRequest(t, repo, "u1", fmt.Sprintf("platform_aws_dev_seed000%d", i), now.Add(-time.Duration(i+1)*time.Hour))
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ldg.ClearHistory(context.Background(), "u1"); err != nil {
				t.Errorf("clear failed: %v", err)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ldg.ListVisible(context.Background(), "u1"); err != nil {
				t.Errorf("list failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// After every clear has finished, nothing seeded earlier is visible.
	reqs, err := ldg.ListVisible(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("expected empty visible history after clears, got %d", len(reqs))
	}
}
