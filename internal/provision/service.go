// Package provision records provisioning requests and bridges the external
// delivery pipeline: outbound to trigger a run, inbound via its status
// webhook.
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/domain"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/store"
)

// Submitter accepts a finished provisioning request for execution.
type Submitter interface {
	Submit(ctx context.Context, req *domain.ProvisionRequest) error
}

// Service persists requests and triggers the pipeline. A trigger failure is
// logged but does not fail the submission: the request row is durable and an
// operator can re-trigger it.
type Service struct {
	repo       store.Repository
	triggerURL string
	apiToken   string
	httpc      *http.Client
}

// NewService creates a provisioning service. An empty triggerURL disables
// the outbound pipeline call, leaving requests in pending for manual pickup.
func NewService(repo store.Repository, triggerURL, apiToken string) *Service {
	return &Service{
		repo:       repo,
		triggerURL: triggerURL,
		apiToken:   apiToken,
		httpc:      &http.Client{Timeout: 15 * time.Second},
	}
}

// Submit stores the request and asks the pipeline to start working on it.
func (s *Service) Submit(ctx context.Context, req *domain.ProvisionRequest) error {
	if req.Status == "" {
		req.Status = domain.RequestStatusPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return fmt.Errorf("persist provisioning request: %w", err)
	}
	slog.Info("Provisioning request created",
		"request_identifier", req.RequestIdentifier,
		"user_id", req.UserID,
		"provider", req.CloudProvider,
		"environment", req.Environment)

	if s.triggerURL == "" {
		return nil
	}
	if err := s.trigger(ctx, req); err != nil {
		slog.Error("Failed to trigger provisioning pipeline",
			"error", err, "request_identifier", req.RequestIdentifier)
	}
	return nil
}

func (s *Service) trigger(ctx context.Context, req *domain.ProvisionRequest) error {
	payload := map[string]any{
		"request_identifier": req.RequestIdentifier,
		"user_id":            req.UserID,
		"cloud_provider":     req.CloudProvider,
		"environment":        req.Environment,
		"resource_type":      req.ResourceType,
		"parameters":         req.Parameters,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal trigger payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.triggerURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build trigger request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiToken)

	resp, err := s.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call pipeline trigger: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("pipeline trigger returned %d", resp.StatusCode)
	}
	return nil
}
