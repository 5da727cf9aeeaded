package planner

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/domain"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/provision"
	"github.com/kadimisettimanoharreddy/Aiopsplatformfinal/internal/store"
)

type flowStep string

const (
	stepProvider     flowStep = "provider"
	stepEnvironment  flowStep = "environment"
	stepInstanceType flowStep = "instance_type"
	stepOS           flowStep = "os"
	stepStorage      flowStep = "storage"
	stepRegion       flowStep = "region"
	stepConfirm      flowStep = "confirm"
)

const (
	minStorageGB = 8
	maxStorageGB = 500
)

var cancelWords = map[string]bool{
	"cancel": true,
	"stop":   true,
	"abort":  true,
	"quit":   true,
}

var (
	awsRegionRe = regexp.MustCompile(`^[a-z]{2}-[a-z]+-[0-9]$`)
	gcpRegionRe = regexp.MustCompile(`^[a-z]+-[a-z]+[0-9]$`)
)

var instanceTypes = map[string][]string{
	"aws": {"t3.micro", "t3.small", "t3.medium", "m5.large", "c5.large"},
	"gcp": {"e2-micro", "e2-small", "e2-medium", "e2-standard-2", "e2-standard-4"},
}

var osOptions = map[string][]domain.ChoiceOption{
	"aws": {
		{Text: "Ubuntu 22.04", Value: "ubuntu"},
		{Text: "Amazon Linux 2023", Value: "amazon-linux"},
		{Text: "Windows Server", Value: "windows"},
		{Text: "CentOS Stream", Value: "centos"},
	},
	"gcp": {
		{Text: "Ubuntu 22.04", Value: "ubuntu"},
		{Text: "Debian 12", Value: "debian"},
		{Text: "Windows Server", Value: "windows"},
		{Text: "CentOS Stream", Value: "centos"},
	},
}

type flowState struct {
	step         flowStep
	provider     string
	environment  string
	instanceType string
	os           string
	storageGB    int
	region       string
}

// GuidedPlanner walks one user at a time through the provisioning dialogue.
// An utterance may prefill several fields at once; the flow then asks only
// for what is still missing, in a fixed order.
type GuidedPlanner struct {
	mu     sync.Mutex
	flows  map[string]*flowState
	repo   store.Repository
	submit provision.Submitter
	intel  IntentExtractor
}

// NewGuided creates the guided planner.
func NewGuided(repo store.Repository, submit provision.Submitter, intel IntentExtractor) *GuidedPlanner {
	return &GuidedPlanner{
		flows:  make(map[string]*flowState),
		repo:   repo,
		submit: submit,
		intel:  intel,
	}
}

// Reset abandons any in-progress flow for the user.
func (p *GuidedPlanner) Reset(_ context.Context, userID string) error {
	p.mu.Lock()
	delete(p.flows, userID)
	p.mu.Unlock()
	return nil
}

// Plan produces the assistant's reply for one user turn.
func (p *GuidedPlanner) Plan(ctx context.Context, userID, text string) (*domain.Reply, error) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	p.mu.Lock()
	flow, active := p.flows[userID]
	p.mu.Unlock()

	if cancelWords[lower] {
		if active {
			_ = p.Reset(ctx, userID)
			return &domain.Reply{
				Message:       "Request cancelled. Tell me what you'd like to provision when you're ready.",
				AllowFreeText: true,
			}, nil
		}
		return &domain.Reply{
			Message:       "Nothing to cancel. Tell me what you'd like to provision.",
			AllowFreeText: true,
		}, nil
	}

	if !active {
		return p.begin(ctx, userID, trimmed)
	}
	return p.advance(ctx, userID, flow, trimmed)
}

// begin handles an utterance with no flow in progress.
func (p *GuidedPlanner) begin(ctx context.Context, userID, text string) (*domain.Reply, error) {
	intent, err := p.intel.Extract(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("extract intent: %w", err)
	}
	if !intent.Provision {
		return &domain.Reply{
			Message:       "I can help you provision cloud infrastructure. Try something like \"I need a small VM for testing\".",
			AllowFreeText: true,
		}, nil
	}

	flow := &flowState{
		provider:     intent.Provider,
		environment:  intent.Environment,
		instanceType: intent.InstanceType,
		os:           intent.OS,
		region:       intent.Region,
	}
	if intent.StorageGB >= minStorageGB && intent.StorageGB <= maxStorageGB {
		flow.storageGB = intent.StorageGB
	}
	// Prefilled values that don't fit the catalogs are dropped and re-asked,
	// so an extractor answer never skips a step's validation.
	if flow.provider != "aws" && flow.provider != "gcp" {
		flow.provider = ""
	}
	if flow.environment != "" && flow.environment != "dev" && flow.environment != "qa" && flow.environment != "prod" {
		flow.environment = ""
	}
	if flow.provider != "" {
		if flow.instanceType != "" && !contains(instanceTypes[flow.provider], flow.instanceType) {
			flow.instanceType = ""
		}
		if flow.os != "" && !optionValue(osOptions[flow.provider], flow.os) {
			flow.os = ""
		}
		if flow.region != "" && !validRegion(flow.provider, flow.region) {
			flow.region = ""
		}
	}

	p.mu.Lock()
	p.flows[userID] = flow
	p.mu.Unlock()

	slog.Info("Provisioning flow started", "user_id", userID,
		"provider", flow.provider, "environment", flow.environment)
	return p.prompt(userID, flow), nil
}

// advance consumes the user's answer for the current step.
func (p *GuidedPlanner) advance(ctx context.Context, userID string, flow *flowState, answer string) (*domain.Reply, error) {
	lower := strings.ToLower(answer)

	switch flow.step {
	case stepProvider:
		if lower != "aws" && lower != "gcp" {
			return p.retry(flow, "Please pick a cloud provider."), nil
		}
		flow.provider = lower
		// A provider switch invalidates provider-specific answers.
		if flow.instanceType != "" && !contains(instanceTypes[lower], flow.instanceType) {
			flow.instanceType = ""
		}
		if flow.os != "" && !optionValue(osOptions[lower], flow.os) {
			flow.os = ""
		}
		flow.region = ""

	case stepEnvironment:
		if lower != "dev" && lower != "qa" && lower != "prod" {
			return p.retry(flow, "Please pick an environment."), nil
		}
		flow.environment = lower

	case stepInstanceType:
		if !contains(instanceTypes[flow.provider], lower) {
			return p.retry(flow, "Please pick one of the listed instance types."), nil
		}
		flow.instanceType = lower

	case stepOS:
		if !optionValue(osOptions[flow.provider], lower) {
			return p.retry(flow, "Please pick one of the listed operating systems."), nil
		}
		flow.os = lower

	case stepStorage:
		gb, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSuffix(lower, "gb"), " "))
		if err != nil || gb < minStorageGB || gb > maxStorageGB {
			return p.retry(flow, fmt.Sprintf("Enter a storage size between %d and %d GB.", minStorageGB, maxStorageGB)), nil
		}
		flow.storageGB = gb

	case stepRegion:
		if !validRegion(flow.provider, lower) {
			return p.retry(flow, "That doesn't look like a valid region for "+strings.ToUpper(flow.provider)+"."), nil
		}
		flow.region = lower

	case stepConfirm:
		switch lower {
		case "deploy", "yes", "confirm":
			return p.finish(ctx, userID, flow)
		case "cancel", "no":
			_ = p.Reset(ctx, userID)
			return &domain.Reply{
				Message:       "Request cancelled. Tell me what you'd like to provision when you're ready.",
				AllowFreeText: true,
			}, nil
		default:
			return p.retry(flow, "Please choose Deploy or Cancel."), nil
		}
	}

	return p.prompt(userID, flow), nil
}

// prompt asks for the first still-missing field, updating flow.step.
func (p *GuidedPlanner) prompt(userID string, flow *flowState) *domain.Reply {
	switch {
	case flow.provider == "":
		flow.step = stepProvider
		return &domain.Reply{
			Message: "Which cloud provider would you like to use?",
			Options: []domain.ChoiceOption{
				{Text: "AWS", Value: "aws", Variant: "primary"},
				{Text: "GCP", Value: "gcp", Variant: "primary"},
			},
		}
	case flow.environment == "":
		flow.step = stepEnvironment
		return &domain.Reply{
			Message: "Which environment is this for?",
			Options: []domain.ChoiceOption{
				{Text: "Development", Value: "dev"},
				{Text: "QA", Value: "qa"},
				{Text: "Production", Value: "prod", Color: "red"},
			},
		}
	case flow.instanceType == "":
		flow.step = stepInstanceType
		var opts []domain.ChoiceOption
		for _, it := range instanceTypes[flow.provider] {
			opts = append(opts, domain.ChoiceOption{Text: it, Value: it})
		}
		return &domain.Reply{
			Message: "Which instance type do you need?",
			Options: opts,
		}
	case flow.os == "":
		flow.step = stepOS
		return &domain.Reply{
			Message: "Which operating system?",
			Options: osOptions[flow.provider],
		}
	case flow.storageGB == 0:
		flow.step = stepStorage
		return &domain.Reply{
			Message:       fmt.Sprintf("How much storage do you need, in GB? (%d-%d)", minStorageGB, maxStorageGB),
			AllowFreeText: true,
		}
	case flow.region == "":
		flow.step = stepRegion
		return &domain.Reply{
			Message:       "Which region should this run in? (for example us-east-1)",
			AllowFreeText: true,
		}
	default:
		flow.step = stepConfirm
		return &domain.Reply{
			Message: fmt.Sprintf(
				"Here's your request:\n- Provider: %s\n- Environment: %s\n- Instance: %s\n- OS: %s\n- Storage: %d GB\n- Region: %s\n\nReady to deploy?",
				strings.ToUpper(flow.provider), flow.environment, flow.instanceType, flow.os, flow.storageGB, flow.region),
			Options: []domain.ChoiceOption{
				{Text: "Deploy", Value: "deploy", Variant: "primary", Color: "green"},
				{Text: "Cancel", Value: "cancel", Color: "red"},
			},
		}
	}
}

// retry re-asks the current step with its original buttons.
func (p *GuidedPlanner) retry(flow *flowState, hint string) *domain.Reply {
	step := flow.step
	reply := p.prompt("", flow)
	flow.step = step
	reply.Message = hint + " " + reply.Message
	return reply
}

// finish submits the completed request and ends the flow.
func (p *GuidedPlanner) finish(ctx context.Context, userID string, flow *flowState) (*domain.Reply, error) {
	department := "platform"
	if user, err := p.repo.GetUser(ctx, userID); err != nil {
		slog.Warn("Failed to load user for request identifier", "error", err, "user_id", userID)
	} else if user != nil && user.Department != "" {
		department = strings.ToLower(user.Department)
	}

	identifier := fmt.Sprintf("%s_%s_%s_%s",
		department, flow.provider, flow.environment, strings.ReplaceAll(uuid.New().String(), "-", "")[:8])

	req := &domain.ProvisionRequest{
		ID:                uuid.New().String(),
		UserID:            userID,
		RequestIdentifier: identifier,
		CloudProvider:     flow.provider,
		Environment:       flow.environment,
		ResourceType:      "vm",
		Parameters: map[string]any{
			"instance_type": flow.instanceType,
			"os":            flow.os,
			"storage_gb":    flow.storageGB,
			"region":        flow.region,
		},
	}

	if err := p.submit.Submit(ctx, req); err != nil {
		slog.Error("Failed to submit provisioning request", "error", err, "user_id", userID)
		return &domain.Reply{
			Message:       "I couldn't submit your request just now. Say \"deploy\" to try again, or \"cancel\" to abandon it.",
			AllowFreeText: true,
		}, nil
	}

	_ = p.Reset(ctx, userID)
	return &domain.Reply{
		Message: fmt.Sprintf(
			"Request %s submitted. I'll notify you when the approval PR is open and again once it's deployed.",
			req.ShortID()),
		AllowFreeText: true,
	}, nil
}

func validRegion(provider, region string) bool {
	switch provider {
	case "aws":
		return awsRegionRe.MatchString(region)
	case "gcp":
		return gcpRegionRe.MatchString(region)
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func optionValue(opts []domain.ChoiceOption, v string) bool {
	for _, o := range opts {
		if o.Value == v {
			return true
		}
	}
	return false
}
