package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conclave-ai/conclave/internal/config"
	"github.com/conclave-ai/conclave/internal/coordinator"
	"github.com/conclave-ai/conclave/internal/provider"
	"github.com/conclave-ai/conclave/internal/run"
	"github.com/conclave-ai/conclave/internal/state"
)

var (
	runMode      string
	runModel     string
	runTeam      string
	runWorkspace string
	runQuiet     bool
	runNoPersist bool
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Run a goal with a coordinator and worker agents",
	Long: `Run a goal. The coordinator decomposes it into work items, spawns
workers, and drives them until the goal is met.

Modes:
  finite    work toward the goal and finish (default)
  infinite  keep operating toward the goal until stopped

Model specs look like "anthropic/claude-sonnet-4-5". Use
"agent-cli/<anything>" to delegate the coordinator to an external
coding-agent CLI instead of the API.

Press Ctrl-C once to pause the run; press it again to exit.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoal,
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "", "Run mode: finite or infinite")
	runCmd.Flags().StringVar(&runModel, "model", "", "Coordinator model spec")
	runCmd.Flags().StringVar(&runTeam, "team", "", "Start with a predefined team template")
	runCmd.Flags().StringVar(&runWorkspace, "workspace", "", "Workspace directory (default from config)")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Suppress the live event feed")
	runCmd.Flags().BoolVar(&runNoPersist, "no-persist", false, "Skip sqlite run persistence")
}

func runGoal(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	mode := runMode
	if mode == "" {
		mode = cfg.Defaults.Mode
	}
	model := runModel
	if model == "" {
		model = cfg.Defaults.CoordinatorModel
	}
	workspaceDir := runWorkspace
	if workspaceDir == "" {
		workspaceDir = cfg.Defaults.Workspace
	}

	if provider.IsAgentCLI(model) {
		if err := checkAgentCLI(cfg.AgentCLI.Command); err != nil {
			return err
		}
	} else if _, err := config.GetAPIKey(cfg); err != nil {
		return fmt.Errorf("%w; set ANTHROPIC_API_KEY or run 'conclave config anthropic.api_key <key>'", err)
	}

	opts := run.Options{
		Goal:             goal,
		Mode:             mode,
		CoordinatorModel: model,
		WorkspaceDir:     workspaceDir,
		AgentCLICommand:  cfg.AgentCLI.Command,
		ProviderOpts:     providerOptions(cfg),
		Coordinator:      coordinatorConfig(cfg),
		HumanTimeout:     cfg.Limits.HumanTimeout,
		SearchProvider:   cfg.Search.Provider,
		BraveAPIKey:      cfg.Search.BraveAPIKey,
		SerperAPIKey:     cfg.Search.SerperAPIKey,
		MaxWorkers:       cfg.Defaults.MaxWorkers,
	}

	if !runNoPersist {
		db, err := state.Open(state.WorkspaceDBPath(workspaceDir))
		if err != nil {
			return fmt.Errorf("open state db: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate state db: %w", err)
		}
		opts.State = db
	}

	if runTeam != "" {
		teams, err := loadTeams()
		if err != nil {
			return err
		}
		team := teams[runTeam]
		if team == nil {
			return fmt.Errorf("unknown team %q; run 'conclave teams' to list them", runTeam)
		}
		opts.Workers, err = team.Roster(model)
		if err != nil {
			return err
		}
	}

	r, err := run.New(opts)
	if err != nil {
		return err
	}
	defer r.Shutdown()

	fmt.Printf("%s run %s started (%s mode)\n", color.GreenString("▸"), r.ID, mode)
	fmt.Printf("  goal: %s\n\n", goal)

	if !runQuiet {
		go followEvents(r)
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	waitCtx, cancelWait := context.WithCancel(context.Background())
	defer cancelWait()
	go func() {
		paused := false
		for range sigCh {
			if !paused {
				paused = true
				r.Stop()
				fmt.Printf("\n%s run paused; Ctrl-C again to exit\n", color.YellowString("⏸"))
				continue
			}
			cancelWait()
			return
		}
	}()

	if err := r.Wait(waitCtx); err != nil {
		fmt.Printf("\n%s run interrupted\n", color.YellowString("✗"))
		return nil
	}

	printSummary(r)
	return nil
}

func printSummary(r *run.Run) {
	status := r.Status()
	icon := color.GreenString("✓")
	if status != coordinator.StatusCompleted {
		icon = color.YellowString("~")
	}
	fmt.Printf("\n%s run %s finished: %s\n", icon, r.ID, status)

	var completed, failed int
	for _, item := range r.Items() {
		switch string(item.Status) {
		case "completed":
			completed++
		case "failed":
			failed++
		}
	}
	fmt.Printf("  items: %d completed, %d failed, %d total\n", completed, failed, len(r.Items()))
	fmt.Printf("  workers: %d\n", len(r.Workers()))
}

// checkAgentCLI verifies the external coding-agent command is on PATH.
func checkAgentCLI(command string) error {
	if _, err := exec.LookPath(command); err != nil {
		return fmt.Errorf("agent CLI %q not found in PATH\n\n"+
			"Agent-cli mode drives an external coding-agent binary.\n"+
			"Install it, or point agent_cli.command at another binary.", command)
	}
	return nil
}

func providerOptions(cfg *config.Config) provider.Options {
	key, _ := config.GetAPIKey(cfg)
	return provider.Options{
		APIKey:            key,
		UseAWSBedrock:     cfg.Anthropic.UseBedrock,
		AWSRegion:         cfg.Anthropic.AWSRegion,
		AWSProfile:        cfg.Anthropic.AWSProfile,
		RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
	}
}

func coordinatorConfig(cfg *config.Config) coordinator.Config {
	return coordinator.Config{
		MaxTurns:            cfg.Limits.MaxTurns,
		MaxConsecutiveFails: cfg.Limits.MaxConsecutiveFails,
		BackoffBase:         cfg.Limits.BackoffBase,
		BackoffMax:          cfg.Limits.BackoffMax,
	}
}
