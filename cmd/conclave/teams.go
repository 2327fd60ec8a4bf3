package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conclave-ai/conclave/internal/config"
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List available team templates",
	Long: `List the team templates usable with 'conclave run --team'.

Built-in templates can be overridden, and new ones added, by placing
YAML files in the teams/ directory next to the user config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		teams, err := loadTeams()
		if err != nil {
			return err
		}
		for _, name := range config.TeamNames(teams) {
			t := teams[name]
			fmt.Printf("%s: %s\n", color.CyanString(name), t.Description)
			for _, w := range t.Workers {
				kind := w.Type
				if kind == "" {
					kind = "react"
				}
				fmt.Printf("  %s (%s): %s\n", w.Name, kind, w.Role)
			}
		}
		return nil
	},
}

// loadTeams merges user team files over the built-in templates.
func loadTeams() (map[string]*config.TeamTemplate, error) {
	dir := filepath.Join(filepath.Dir(config.GetUserConfigPath()), "teams")
	return config.LoadTeamDir(dir)
}
