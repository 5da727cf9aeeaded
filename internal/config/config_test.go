package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Port:         "8080",
		DBPath:       "./data/test.db",
		JWTSecret:    "secret",
		APIToken:     "token",
		ChoicePolicy: ChoicePermissive,
		RetryWindow:  24 * time.Hour,
		SessionTTL:   7 * 24 * time.Hour,
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRequiresSecrets(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.JWTSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing JWT secret")
	}

	cfg = validConfig()
	cfg.APIToken = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing API token")
	}
}

func TestValidateRejectsUnknownChoicePolicy(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.ChoicePolicy = "lenient"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown choice policy")
	}
}

func TestValidateRequiresTranscriptDirWhenEnabled(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Transcript.Enabled = true
	cfg.Transcript.Dir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled transcript without a directory")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("API_TOKEN", "token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("unexpected default port: %s", cfg.Port)
	}
	if cfg.ChoicePolicy != ChoicePermissive {
		t.Fatalf("unexpected default choice policy: %s", cfg.ChoicePolicy)
	}
	if cfg.RetryWindow != 24*time.Hour {
		t.Fatalf("unexpected default retry window: %s", cfg.RetryWindow)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("API_TOKEN", "token")
	t.Setenv("NOTIFY_RETRY_WINDOW", "1h")
	t.Setenv("CHOICE_POLICY", ChoiceStrict)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.RetryWindow != time.Hour {
		t.Fatalf("unexpected retry window: %s", cfg.RetryWindow)
	}
	if cfg.ChoicePolicy != ChoiceStrict {
		t.Fatalf("unexpected choice policy: %s", cfg.ChoicePolicy)
	}
}
