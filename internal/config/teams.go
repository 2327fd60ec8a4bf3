package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/conclave-ai/conclave/pkg/models"
)

// WorkerSpec describes one worker in a team template.
type WorkerSpec struct {
	Name          string `yaml:"name"`
	Role          string `yaml:"role"`
	Type          string `yaml:"type"`
	Model         string `yaml:"model"`
	AgentCommand  string `yaml:"agent_command"`
	MaxIterations int    `yaml:"max_iterations"`
}

// TeamTemplate is a predefined worker roster the coordinator can start from
// instead of spawning every worker itself.
type TeamTemplate struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Workers     []WorkerSpec `yaml:"workers"`
}

// Roster materializes the template into workers ready for the pool.
// defaultModel fills in react workers that name no model.
func (t *TeamTemplate) Roster(defaultModel string) ([]*models.Worker, error) {
	workers := make([]*models.Worker, 0, len(t.Workers))
	for _, spec := range t.Workers {
		if spec.Name == "" {
			return nil, fmt.Errorf("team %q: worker with no name", t.Name)
		}
		wt := models.WorkerType(spec.Type)
		if spec.Type == "" {
			wt = models.WorkerTypeReact
		}
		if !wt.Valid() {
			return nil, fmt.Errorf("team %q: worker %q has unknown type %q", t.Name, spec.Name, spec.Type)
		}
		model := spec.Model
		if model == "" && wt == models.WorkerTypeReact {
			model = defaultModel
		}
		maxIter := spec.MaxIterations
		if maxIter <= 0 {
			maxIter = 20
		}
		workers = append(workers, &models.Worker{
			ID:            models.NewID(),
			Name:          spec.Name,
			Role:          spec.Role,
			Type:          wt,
			Model:         model,
			AgentCommand:  spec.AgentCommand,
			Status:        models.WorkerStatusIdle,
			MaxIterations: maxIter,
		})
	}
	return workers, nil
}

// LoadTeamFile reads a team template from a YAML file.
func LoadTeamFile(path string) (*TeamTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read team file: %w", err)
	}
	t := &TeamTemplate{}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if t.Name == "" {
		t.Name = trimYAMLExt(filepath.Base(path))
	}
	if len(t.Workers) == 0 {
		return nil, fmt.Errorf("team %q defines no workers", t.Name)
	}
	return t, nil
}

// LoadTeamDir reads every *.yaml team template in a directory, merged over
// the built-in templates. A file sharing a built-in's name replaces it.
func LoadTeamDir(dir string) (map[string]*TeamTemplate, error) {
	teams := BuiltinTeams()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return teams, nil
		}
		return nil, fmt.Errorf("read team dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		t, err := LoadTeamFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		teams[t.Name] = t
	}
	return teams, nil
}

// TeamNames returns the template names sorted.
func TeamNames(teams map[string]*TeamTemplate) []string {
	names := make([]string, 0, len(teams))
	for name := range teams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func trimYAMLExt(name string) string {
	ext := filepath.Ext(name)
	if ext == ".yaml" || ext == ".yml" {
		return name[:len(name)-len(ext)]
	}
	return name
}

// BuiltinTeams returns the templates shipped with the binary.
func BuiltinTeams() map[string]*TeamTemplate {
	return map[string]*TeamTemplate{
		"solo": {
			Name:        "solo",
			Description: "A single generalist worker.",
			Workers: []WorkerSpec{
				{Name: "generalist", Role: "Handles every kind of task end to end."},
			},
		},
		"research": {
			Name:        "research",
			Description: "Two researchers feeding a writer.",
			Workers: []WorkerSpec{
				{Name: "scout-a", Role: "Finds and summarizes primary sources.", MaxIterations: 15},
				{Name: "scout-b", Role: "Finds and summarizes primary sources.", MaxIterations: 15},
				{Name: "writer", Role: "Synthesizes research into the final deliverable.", MaxIterations: 25},
			},
		},
		"build": {
			Name:        "build",
			Description: "A coding-agent implementer with a react reviewer.",
			Workers: []WorkerSpec{
				{Name: "implementer", Role: "Implements code changes in the workspace.", Type: "agent-cli"},
				{Name: "reviewer", Role: "Reviews produced changes and flags problems.", MaxIterations: 15},
			},
		},
	}
}
