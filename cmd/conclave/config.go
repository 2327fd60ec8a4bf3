package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conclave-ai/conclave/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify conclave configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/conclave/config.yaml
Project-specific overrides can be placed in .conclave.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("anthropic.requests_per_minute: %d\n", cfg.Anthropic.RequestsPerMinute)
	fmt.Printf("defaults.mode: %s\n", cfg.Defaults.Mode)
	fmt.Printf("defaults.coordinator_model: %s\n", cfg.Defaults.CoordinatorModel)
	fmt.Printf("defaults.max_workers: %d\n", cfg.Defaults.MaxWorkers)
	fmt.Printf("defaults.workspace: %s\n", cfg.Defaults.Workspace)
	fmt.Printf("server.addr: %s\n", cfg.Server.Addr)
	fmt.Printf("search.provider: %s\n", cfg.Search.Provider)
	fmt.Printf("agent_cli.command: %s\n", cfg.AgentCLI.Command)
	fmt.Printf("limits.max_turns: %d\n", cfg.Limits.MaxTurns)
	fmt.Printf("limits.max_consecutive_fails: %d\n", cfg.Limits.MaxConsecutiveFails)
	fmt.Printf("limits.backoff_base: %s\n", cfg.Limits.BackoffBase)
	fmt.Printf("limits.backoff_max: %s\n", cfg.Limits.BackoffMax)
	fmt.Printf("limits.human_timeout: %s\n", cfg.Limits.HumanTimeout)
}

func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Set %s = %s\n", key, value)
}

func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.requests_per_minute":
		return strconv.Itoa(cfg.Anthropic.RequestsPerMinute), nil
	case "defaults.mode":
		return cfg.Defaults.Mode, nil
	case "defaults.coordinator_model":
		return cfg.Defaults.CoordinatorModel, nil
	case "defaults.max_workers":
		return strconv.Itoa(cfg.Defaults.MaxWorkers), nil
	case "defaults.workspace":
		return cfg.Defaults.Workspace, nil
	case "server.addr":
		return cfg.Server.Addr, nil
	case "search.provider":
		return cfg.Search.Provider, nil
	case "agent_cli.command":
		return cfg.AgentCLI.Command, nil
	case "limits.max_turns":
		return strconv.Itoa(cfg.Limits.MaxTurns), nil
	case "limits.max_consecutive_fails":
		return strconv.Itoa(cfg.Limits.MaxConsecutiveFails), nil
	case "limits.backoff_base":
		return cfg.Limits.BackoffBase.String(), nil
	case "limits.backoff_max":
		return cfg.Limits.BackoffMax.String(), nil
	case "limits.human_timeout":
		return cfg.Limits.HumanTimeout.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_bedrock: %w", err)
		}
		cfg.Anthropic.UseBedrock = b
	case "anthropic.requests_per_minute":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for requests_per_minute: %w", err)
		}
		cfg.Anthropic.RequestsPerMinute = n
	case "defaults.mode":
		if value != "finite" && value != "infinite" {
			return fmt.Errorf("mode must be finite or infinite")
		}
		cfg.Defaults.Mode = value
	case "defaults.coordinator_model":
		cfg.Defaults.CoordinatorModel = value
	case "defaults.max_workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_workers: %w", err)
		}
		cfg.Defaults.MaxWorkers = n
	case "defaults.workspace":
		cfg.Defaults.Workspace = value
	case "server.addr":
		cfg.Server.Addr = value
	case "search.provider":
		cfg.Search.Provider = value
	case "agent_cli.command":
		cfg.AgentCLI.Command = value
	case "limits.max_turns":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_turns: %w", err)
		}
		cfg.Limits.MaxTurns = n
	case "limits.max_consecutive_fails":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_consecutive_fails: %w", err)
		}
		cfg.Limits.MaxConsecutiveFails = n
	case "limits.backoff_base":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for backoff_base: %w", err)
		}
		cfg.Limits.BackoffBase = d
	case "limits.backoff_max":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for backoff_max: %w", err)
		}
		cfg.Limits.BackoffMax = d
	case "limits.human_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for human_timeout: %w", err)
		}
		cfg.Limits.HumanTimeout = d
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
