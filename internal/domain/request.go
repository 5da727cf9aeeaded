package domain

import (
	"time"
)

// Provisioning request lifecycle statuses. The pipeline moves a request
// from pending through pending_approval (PR open) to deployed or failed.
const (
	RequestStatusPending         = "pending"
	RequestStatusPendingApproval = "pending_approval"
	RequestStatusPRFailed        = "pr_failed"
	RequestStatusDeployed        = "deployed"
	RequestStatusFailed          = "failed"
)

// ProvisionRequest is one infrastructure provisioning request record.
// The record itself is never deleted; "clear history" only hides records
// created before the user's watermark.
type ProvisionRequest struct {
	ID                string         `json:"id"`
	UserID            string         `json:"user_id"`
	RequestIdentifier string         `json:"request_identifier"`
	CloudProvider     string         `json:"cloud_provider"`
	Environment       string         `json:"environment"`
	ResourceType      string         `json:"resource_type"`
	Parameters        map[string]any `json:"parameters"`
	Status            string         `json:"status"`
	PRNumber          int            `json:"pr_number,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	DeployedAt        *time.Time     `json:"deployed_at,omitempty"`
}

// ShortID returns the trailing segment of the request identifier, used in
// user-facing messages (identifiers look like "platform_aws_dev_1a2b3c4d").
func (r *ProvisionRequest) ShortID() string {
	for i := len(r.RequestIdentifier) - 1; i >= 0; i-- {
		if r.RequestIdentifier[i] == '_' {
			return r.RequestIdentifier[i+1:]
		}
	}
	return r.RequestIdentifier
}
