package config

import (
	"testing"
)

func TestGetAPIKeyPrefersEnvironment(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env-key")

	cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}}
	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "sk-ant-env-key" {
		t.Errorf("expected env key to win, got %q", key)
	}
}

func TestGetAPIKeyFallsBackToConfig(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}}
	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "sk-ant-config-key" {
		t.Errorf("expected config key, got %q", key)
	}

	if _, err := GetAPIKey(&Config{}); err != ErrNoAPIKey {
		t.Errorf("expected ErrNoAPIKey with nothing set, got %v", err)
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "sk-ant-REDACTED", false},
		{"empty key", "", true},
		{"wrong prefix", "sk-openai-12345678901234567890", true},
		{"too short", "sk-ant-abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key      string
		expected string
	}{
		{"sk-ant-REDACTED", "sk-ant-...wxyz"},
		{"", "(not set)"},
		{"short", "***"},
	}

	for _, tt := range tests {
		if got := MaskAPIKey(tt.key); got != tt.expected {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.expected)
		}
	}
}

func TestGetAPIKeySource(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env-key")
	if got := GetAPIKeySource(&Config{}); got != KeySourceEnv {
		t.Errorf("expected KeySourceEnv, got %v", got)
	}

	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}}
	if got := GetAPIKeySource(cfg); got != KeySourceConfig {
		t.Errorf("expected KeySourceConfig, got %v", got)
	}
	if got := GetAPIKeySource(&Config{}); got != KeySourceNone {
		t.Errorf("expected KeySourceNone, got %v", got)
	}
}
