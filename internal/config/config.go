// Package config handles configuration loading for conclave. It supports XDG
// config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for conclave.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Server    ServerConfig    `mapstructure:"server"`
	Search    SearchConfig    `mapstructure:"search"`
	AgentCLI  AgentCLIConfig  `mapstructure:"agent_cli"`
	Limits    LimitsConfig    `mapstructure:"limits"`
}

// AnthropicConfig holds Anthropic API settings. Bedrock fields route calls
// through AWS instead of the direct API.
type AnthropicConfig struct {
	APIKey            string `mapstructure:"api_key"`
	UseBedrock        bool   `mapstructure:"use_bedrock"`
	AWSRegion         string `mapstructure:"aws_region"`
	AWSProfile        string `mapstructure:"aws_profile"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// DefaultsConfig holds default values for new runs.
type DefaultsConfig struct {
	Mode             string `mapstructure:"mode"`
	CoordinatorModel string `mapstructure:"coordinator_model"`
	MaxWorkers       int    `mapstructure:"max_workers"`
	Workspace        string `mapstructure:"workspace"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// SearchConfig holds web search settings for the web_search tool.
type SearchConfig struct {
	Provider     string `mapstructure:"provider"`
	BraveAPIKey  string `mapstructure:"brave_api_key"`
	SerperAPIKey string `mapstructure:"serper_api_key"`
}

// AgentCLIConfig holds settings for agent-cli workers and the delegated
// coordinator mode.
type AgentCLIConfig struct {
	Command string `mapstructure:"command"`
}

// LimitsConfig holds coordinator loop tuning.
type LimitsConfig struct {
	MaxTurns            int           `mapstructure:"max_turns"`
	MaxConsecutiveFails int           `mapstructure:"max_consecutive_fails"`
	BackoffBase         time.Duration `mapstructure:"backoff_base"`
	BackoffMax          time.Duration `mapstructure:"backoff_max"`
	HumanTimeout        time.Duration `mapstructure:"human_timeout"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, BRAVE_API_KEY, SERPER_API_KEY)
// 2. Project config (.conclave.yaml in current directory or a parent)
// 3. User config (~/.config/conclave/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("search.brave_api_key", "BRAVE_API_KEY")
	v.BindEnv("search.serper_api_key", "SERPER_API_KEY")
	v.BindEnv("server.addr", "CONCLAVE_ADDR")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.Search.BraveAPIKey = os.ExpandEnv(cfg.Search.BraveAPIKey)
	cfg.Search.SerperAPIKey = os.ExpandEnv(cfg.Search.SerperAPIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("anthropic.requests_per_minute", cfg.Anthropic.RequestsPerMinute)
	v.Set("defaults.mode", cfg.Defaults.Mode)
	v.Set("defaults.coordinator_model", cfg.Defaults.CoordinatorModel)
	v.Set("defaults.max_workers", cfg.Defaults.MaxWorkers)
	v.Set("defaults.workspace", cfg.Defaults.Workspace)
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("search.provider", cfg.Search.Provider)
	v.Set("search.brave_api_key", cfg.Search.BraveAPIKey)
	v.Set("search.serper_api_key", cfg.Search.SerperAPIKey)
	v.Set("agent_cli.command", cfg.AgentCLI.Command)
	v.Set("limits.max_turns", cfg.Limits.MaxTurns)
	v.Set("limits.max_consecutive_fails", cfg.Limits.MaxConsecutiveFails)
	v.Set("limits.backoff_base", cfg.Limits.BackoffBase.String())
	v.Set("limits.backoff_max", cfg.Limits.BackoffMax.String())
	v.Set("limits.human_timeout", cfg.Limits.HumanTimeout.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it
// exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.requests_per_minute", 50)

	v.SetDefault("defaults.mode", "finite")
	v.SetDefault("defaults.coordinator_model", "anthropic/claude-sonnet-4-5")
	v.SetDefault("defaults.max_workers", 8)
	v.SetDefault("defaults.workspace", ".")

	v.SetDefault("server.addr", ":8420")

	v.SetDefault("search.provider", "duckduckgo")
	v.SetDefault("search.brave_api_key", "")
	v.SetDefault("search.serper_api_key", "")

	v.SetDefault("agent_cli.command", "claude")

	v.SetDefault("limits.max_turns", 200)
	v.SetDefault("limits.max_consecutive_fails", 5)
	v.SetDefault("limits.backoff_base", "3s")
	v.SetDefault("limits.backoff_max", "60s")
	v.SetDefault("limits.human_timeout", "5m")
}

// getUserConfigDir returns the XDG config directory for conclave.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "conclave")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "conclave")
	}
	return filepath.Join(home, ".config", "conclave")
}

// findProjectConfig searches for .conclave.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".conclave.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			RequestsPerMinute: 50,
		},
		Defaults: DefaultsConfig{
			Mode:             "finite",
			CoordinatorModel: "anthropic/claude-sonnet-4-5",
			MaxWorkers:       8,
			Workspace:        ".",
		},
		Server: ServerConfig{
			Addr: ":8420",
		},
		Search: SearchConfig{
			Provider: "duckduckgo",
		},
		AgentCLI: AgentCLIConfig{
			Command: "claude",
		},
		Limits: LimitsConfig{
			MaxTurns:            200,
			MaxConsecutiveFails: 5,
			BackoffBase:         3 * time.Second,
			BackoffMax:          60 * time.Second,
			HumanTimeout:        5 * time.Minute,
		},
	}
}
