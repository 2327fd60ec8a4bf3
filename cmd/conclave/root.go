package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "conclave",
	Short: "Multi-agent task orchestration engine",
	Long: `Conclave runs a coordinator agent that decomposes a goal into a
dependency graph of work items and drives a team of worker agents
through them.

Core capabilities:
- Decomposes goals into work items with dependencies
- Matches ready items to idle workers automatically
- Workers run reasoning loops, external coding agents, or arbitrary
  processes bridged over files
- Messages between agents, human-in-the-loop pause and questions
- Scheduled triggers that wake the coordinator`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(teamsCmd)
	rootCmd.AddCommand(versionCmd)
}
