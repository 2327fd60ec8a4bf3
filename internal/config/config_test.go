package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Defaults.Mode != "finite" {
		t.Errorf("expected default mode 'finite', got %q", cfg.Defaults.Mode)
	}
	if cfg.Defaults.MaxWorkers != 8 {
		t.Errorf("expected default max_workers 8, got %d", cfg.Defaults.MaxWorkers)
	}
	if cfg.Server.Addr != ":8420" {
		t.Errorf("expected default addr ':8420', got %q", cfg.Server.Addr)
	}
	if cfg.Limits.MaxTurns != 200 {
		t.Errorf("expected default max_turns 200, got %d", cfg.Limits.MaxTurns)
	}
	if cfg.Limits.BackoffBase != 3*time.Second {
		t.Errorf("expected backoff_base 3s, got %v", cfg.Limits.BackoffBase)
	}
	if cfg.Limits.HumanTimeout != 5*time.Minute {
		t.Errorf("expected human_timeout 5m, got %v", cfg.Limits.HumanTimeout)
	}
	if cfg.AgentCLI.Command != "claude" {
		t.Errorf("expected agent_cli command 'claude', got %q", cfg.AgentCLI.Command)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
anthropic:
  api_key: sk-ant-test-key-12345
defaults:
  mode: infinite
  coordinator_model: anthropic/claude-opus-4-1
  max_workers: 3
limits:
  max_turns: 50
  backoff_base: 1s
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Anthropic.APIKey != "sk-ant-test-key-12345" {
		t.Errorf("api_key = %q", cfg.Anthropic.APIKey)
	}
	if cfg.Defaults.Mode != "infinite" {
		t.Errorf("mode = %q, want infinite", cfg.Defaults.Mode)
	}
	if cfg.Defaults.CoordinatorModel != "anthropic/claude-opus-4-1" {
		t.Errorf("coordinator_model = %q", cfg.Defaults.CoordinatorModel)
	}
	if cfg.Defaults.MaxWorkers != 3 {
		t.Errorf("max_workers = %d, want 3", cfg.Defaults.MaxWorkers)
	}
	if cfg.Limits.MaxTurns != 50 {
		t.Errorf("max_turns = %d, want 50", cfg.Limits.MaxTurns)
	}
	if cfg.Limits.BackoffBase != time.Second {
		t.Errorf("backoff_base = %v, want 1s", cfg.Limits.BackoffBase)
	}
	// Unset sections keep defaults.
	if cfg.Server.Addr != ":8420" {
		t.Errorf("addr = %q, want default", cfg.Server.Addr)
	}
}

func TestLoadFromPathExpandsEnvReferences(t *testing.T) {
	t.Setenv("TEST_CONCLAVE_KEY", "sk-ant-from-env-99999")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := "anthropic:\n  api_key: ${TEST_CONCLAVE_KEY}\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-from-env-99999" {
		t.Errorf("api_key = %q, want expanded value", cfg.Anthropic.APIKey)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Default()
	cfg.Anthropic.APIKey = "sk-ant-saved-key-77777"
	cfg.Defaults.Mode = "infinite"
	cfg.Limits.MaxTurns = 99

	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadFromPath(GetUserConfigPath())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Anthropic.APIKey != "sk-ant-saved-key-77777" {
		t.Errorf("api_key = %q", loaded.Anthropic.APIKey)
	}
	if loaded.Defaults.Mode != "infinite" {
		t.Errorf("mode = %q", loaded.Defaults.Mode)
	}
	if loaded.Limits.MaxTurns != 99 {
		t.Errorf("max_turns = %d", loaded.Limits.MaxTurns)
	}
}

func TestGetUserConfigPathHonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	want := filepath.Join("/tmp/xdg-test", "conclave", "config.yaml")
	if got := GetUserConfigPath(); got != want {
		t.Errorf("GetUserConfigPath() = %q, want %q", got, want)
	}
}
