package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conclave-ai/conclave/internal/config"
	"github.com/conclave-ai/conclave/internal/state"
	"github.com/conclave-ai/conclave/pkg/models"
)

var statusRunID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs and their boards",
	Long: `Display persisted run state.

Shows recent runs from the workspace database (falling back to the
global one), and the board and workers of the most recent run or the
one named with --run.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusRunID, "run", "", "Show a specific run id")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := state.WorkspaceDBPath(cfg.Defaults.Workspace)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		dbPath = state.GlobalDBPath()
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No runs recorded. Start one with 'conclave run <goal>'.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	runs, err := db.ListRuns(10)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded. Start one with 'conclave run <goal>'.")
		return nil
	}

	fmt.Println("Recent runs:")
	for _, rec := range runs {
		fmt.Printf("  %s %s  %s  %s\n",
			runStatusIcon(rec.Status), rec.ID,
			rec.StartedAt.Local().Format(time.DateTime),
			excerptLine(rec.Goal, 60))
	}

	target := statusRunID
	if target == "" {
		target = runs[0].ID
	}
	rec, err := db.GetRun(target)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("no run %q in %s", target, dbPath)
	}

	fmt.Printf("\nRun %s (%s, %s)\n", rec.ID, rec.Mode, rec.Status)
	fmt.Printf("  goal: %s\n", rec.Goal)
	if rec.FinishedAt != nil {
		fmt.Printf("  duration: %s\n", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Second))
	}

	items, err := db.ListItems(rec.ID)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	if len(items) > 0 {
		fmt.Println("\nBoard:")
		for _, item := range items {
			assignee := ""
			if item.AssignedWorker != "" {
				assignee = "  @" + item.AssignedWorker
			}
			fmt.Printf("  %s %s  %s%s\n", itemStatusIcon(item.Status), item.ID, excerptLine(item.Task, 60), assignee)
		}
	}

	workers, err := db.ListWorkers(rec.ID)
	if err != nil {
		return fmt.Errorf("list workers: %w", err)
	}
	if len(workers) > 0 {
		fmt.Println("\nWorkers:")
		for _, w := range workers {
			fmt.Printf("  %s (%s, %s): %s\n", color.CyanString(w.Name), w.Type, w.Status, excerptLine(w.Role, 50))
		}
	}
	return nil
}

func runStatusIcon(status string) string {
	switch status {
	case "completed":
		return color.GreenString("✓")
	case "working":
		return color.CyanString("▸")
	case "waiting_for_human":
		return color.YellowString("?")
	default:
		return color.YellowString("~")
	}
}

func itemStatusIcon(status models.ItemStatus) string {
	switch status {
	case models.ItemStatusCompleted:
		return color.GreenString("✓")
	case models.ItemStatusFailed:
		return color.RedString("✗")
	case models.ItemStatusRunning:
		return color.CyanString("▸")
	case models.ItemStatusAssigned:
		return color.YellowString(">")
	default:
		return color.New(color.Faint).Sprint("·")
	}
}
