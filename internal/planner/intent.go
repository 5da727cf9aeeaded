// Package planner drives the guided provisioning conversation: it extracts
// what it can from free text, then walks the user through the remaining
// fields with button choices.
package planner

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// Intent is what could be extracted from one free-text utterance. Empty
// fields are asked for step by step.
type Intent struct {
	Provider     string
	Environment  string
	InstanceType string
	OS           string
	Region       string
	StorageGB    int
	Provision    bool
}

// IntentExtractor pulls provisioning parameters out of free text.
type IntentExtractor interface {
	Extract(ctx context.Context, text string) (Intent, error)
}

var (
	provisionRe   = regexp.MustCompile(`(?i)\b(create|provision|deploy|launch|spin up|need|want|new)\b.*\b(vm|instance|server|machine|ec2|infrastructure)\b`)
	environmentRe = regexp.MustCompile(`(?i)\b(dev|qa|prod)\b`)
	instanceRe    = regexp.MustCompile(`(?i)\b([tmcr][0-9][a-z]?\.(nano|micro|small|medium|large|xlarge|[0-9]+xlarge)|e2-(micro|small|medium|standard-[0-9]+))\b`)
	regionRe      = regexp.MustCompile(`(?i)\b([a-z]{2}-[a-z]+-[0-9]|[a-z]+-[a-z]+[0-9]-[a-z])\b`)
	storageRe     = regexp.MustCompile(`(?i)\b([0-9]+)\s?gb\b`)
)

var osKeywords = []struct {
	keyword string
	value   string
}{
	{"ubuntu", "ubuntu"},
	{"amazon linux", "amazon-linux"},
	{"amazon-linux", "amazon-linux"},
	{"windows", "windows"},
	{"centos", "centos"},
}

// heuristicExtractor recognizes common phrasings without any model call.
type heuristicExtractor struct{}

// NewHeuristicExtractor creates the regex-based extractor.
func NewHeuristicExtractor() IntentExtractor {
	return heuristicExtractor{}
}

func (heuristicExtractor) Extract(_ context.Context, text string) (Intent, error) {
	lower := strings.ToLower(text)
	intent := Intent{
		Provision: provisionRe.MatchString(text),
	}

	switch {
	case strings.Contains(lower, "aws") || strings.Contains(lower, "ec2") || strings.Contains(lower, "amazon"):
		intent.Provider = "aws"
	case strings.Contains(lower, "gcp") || strings.Contains(lower, "google cloud"):
		intent.Provider = "gcp"
	}

	if m := environmentRe.FindString(lower); m != "" {
		intent.Environment = m
	}
	if m := instanceRe.FindString(lower); m != "" {
		intent.InstanceType = m
	}
	if m := regionRe.FindString(lower); m != "" {
		intent.Region = m
	}
	if m := storageRe.FindStringSubmatch(lower); m != nil {
		if gb, err := strconv.Atoi(m[1]); err == nil {
			intent.StorageGB = gb
		}
	}
	for _, kw := range osKeywords {
		if strings.Contains(lower, kw.keyword) {
			intent.OS = kw.value
			break
		}
	}
	return intent, nil
}
