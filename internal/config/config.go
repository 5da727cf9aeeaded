// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ChoicePolicy controls how the session state machine treats free-text input
// while the last assistant message offered buttons.
const (
	// ChoicePermissive forwards non-matching input to the assistant as free
	// text (buttons are a convenience, not a contract).
	ChoicePermissive = "permissive"
	// ChoiceStrict rejects input that does not match an offered option.
	ChoiceStrict = "strict"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	JWTSecret      string
	APIToken       string // service token for the provisioning pipeline webhook
	ProvisionerURL string // external pipeline trigger; empty disables outbound submission
	OpenAIKey      string // optional intent extraction; empty uses heuristics only
	ChoicePolicy   string
	RetryWindow    time.Duration // how long an undeliverable notification is queued
	SessionTTL     time.Duration // persisted chat sessions idle longer than this are dropped
	Transcript     TranscriptConfig
}

// TranscriptConfig controls NDJSON conversation transcript logging.
type TranscriptConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/platform.db"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		APIToken:       getEnv("API_TOKEN", ""),
		ProvisionerURL: getEnv("PROVISIONER_URL", ""),
		OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
		ChoicePolicy:   getEnv("CHOICE_POLICY", ChoicePermissive),
		RetryWindow:    getEnvDuration("NOTIFY_RETRY_WINDOW", 24*time.Hour),
		SessionTTL:     getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		Transcript: TranscriptConfig{
			Enabled:   getEnvBool("TRANSCRIPT_ENABLED", false),
			Dir:       getEnv("TRANSCRIPT_DIR", "./data/logs/transcripts"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.APIToken == "" {
		return fmt.Errorf("API_TOKEN must be set")
	}
	if c.ChoicePolicy != ChoicePermissive && c.ChoicePolicy != ChoiceStrict {
		return fmt.Errorf("CHOICE_POLICY must be %q or %q", ChoicePermissive, ChoiceStrict)
	}
	if c.RetryWindow <= 0 {
		return fmt.Errorf("NOTIFY_RETRY_WINDOW must be > 0")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_DIR cannot be empty when transcripts are enabled")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
