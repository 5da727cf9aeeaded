package planner

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const extractionPrompt = `Extract infrastructure provisioning parameters from the user message.
Respond with a single JSON object with these keys (empty string or 0 when absent):
provider ("aws" or "gcp"), environment ("dev", "qa" or "prod"),
instance_type, os ("ubuntu", "amazon-linux", "windows" or "centos"),
region, storage_gb (integer), provision (boolean, true when the user wants infrastructure created).
Respond with JSON only, no prose.`

type extractedParams struct {
	Provider     string `json:"provider"`
	Environment  string `json:"environment"`
	InstanceType string `json:"instance_type"`
	OS           string `json:"os"`
	Region       string `json:"region"`
	StorageGB    int    `json:"storage_gb"`
	Provision    bool   `json:"provision"`
}

// openaiExtractor asks a model to pull parameters out of free text and falls
// back to the regex extractor when the call or the JSON parse fails.
type openaiExtractor struct {
	client   *openai.Client
	model    string
	fallback IntentExtractor
}

// NewOpenAIExtractor creates a model-backed extractor with heuristic fallback.
func NewOpenAIExtractor(apiKey string) IntentExtractor {
	return &openaiExtractor{
		client:   openai.NewClient(apiKey),
		model:    openai.GPT4oMini,
		fallback: NewHeuristicExtractor(),
	}
}

func (e *openaiExtractor) Extract(ctx context.Context, text string) (Intent, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	})
	if err != nil {
		slog.Warn("Intent extraction model call failed, using heuristics", "error", err)
		return e.fallback.Extract(ctx, text)
	}
	if len(resp.Choices) == 0 {
		return e.fallback.Extract(ctx, text)
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var params extractedParams
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &params); err != nil {
		slog.Warn("Intent extraction returned unparseable JSON, using heuristics", "error", err)
		return e.fallback.Extract(ctx, text)
	}

	return Intent{
		Provider:     strings.ToLower(params.Provider),
		Environment:  strings.ToLower(params.Environment),
		InstanceType: params.InstanceType,
		OS:           strings.ToLower(params.OS),
		Region:       params.Region,
		StorageGB:    params.StorageGB,
		Provision:    params.Provision,
	}, nil
}
