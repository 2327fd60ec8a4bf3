package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conclave-ai/conclave/pkg/models"
)

func implSpawnWorker(_ context.Context, tc *Context, args map[string]any) (string, error) {
	name := argString(args, "name")
	role := argString(args, "role")

	workerType := models.WorkerType(argString(args, "type"))
	if workerType == "" {
		workerType = models.WorkerTypeReact
	}
	if !workerType.Valid() {
		return fmt.Sprintf("Error: unknown worker type '%s'", workerType), nil
	}

	model := argString(args, "model")
	if model == "" {
		model = tc.DefaultModel
	}

	worker := &models.Worker{
		ID:            models.NewID(),
		Name:          name,
		Role:          role,
		Type:          workerType,
		Model:         model,
		Status:        models.WorkerStatusIdle,
		MaxIterations: argInt(args, "max_iterations", 20),
	}

	if tc.Workspace != nil {
		if err := tc.Workspace.InitWorkerDir(tc.RunID, worker); err != nil {
			return "", err
		}
		identity := fmt.Sprintf("# %s\n\n%s\n", name, role)
		os.WriteFile(filepath.Join(worker.Dir, "identity.md"), []byte(identity), 0644)
	}

	if err := tc.Pool.Add(worker); err != nil {
		return "", err
	}
	tc.Messages.Register(name)
	tc.Emit("worker.spawned", map[string]any{"worker_id": worker.ID, "name": name, "role": role})
	if tc.Ticker != nil {
		tc.Ticker()
	}

	out, _ := json.Marshal(map[string]string{"worker_id": worker.ID, "name": name, "status": "idle"})
	return string(out), nil
}

func implAssignWorker(_ context.Context, tc *Context, args map[string]any) (string, error) {
	itemID := argString(args, "item_id")
	workerID := argString(args, "worker_id")

	worker := tc.Pool.Get(workerID)
	if worker == nil {
		// Coordinators often name workers rather than ids.
		worker = tc.Pool.GetByName(workerID)
	}
	if worker == nil {
		return fmt.Sprintf("Error: Worker %s not found.", workerID), nil
	}
	if err := tc.Board.SetPreferredWorker(itemID, worker.ID); err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}

	tc.Emit("item.assigned", map[string]any{
		"item_id":     itemID,
		"worker_id":   worker.ID,
		"worker_name": worker.Name,
	})
	if tc.Ticker != nil {
		tc.Ticker()
	}
	return fmt.Sprintf("Assigned %s to item %s.", worker.Name, itemID), nil
}

func implCheckBoard(_ context.Context, tc *Context, _ map[string]any) (string, error) {
	items := tc.Board.Items()
	if len(items) == 0 {
		return "Work board is empty.", nil
	}

	var lines []string
	for _, item := range items {
		workerInfo := ""
		if item.AssignedWorker != "" {
			workerInfo = fmt.Sprintf(" (→ %s)", item.AssignedWorker)
		}
		resultPreview := ""
		if item.Result != "" {
			resultPreview = " | Result: " + truncateString(item.Result, 80)
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s: %s%s%s",
			strings.ToUpper(string(item.Status)), item.ID, truncateString(item.Task, 80), workerInfo, resultPreview))
	}
	if tc.Board.HasCycle() {
		lines = append(lines, "WARNING: the dependency graph contains a cycle; some items can never become ready.")
	}
	return strings.Join(lines, "\n"), nil
}

func implReconvene(_ context.Context, tc *Context, args map[string]any) (string, error) {
	assessment := argString(args, "assessment")
	tc.Emit("stage.reconvened", map[string]any{"assessment": truncateString(assessment, 200)})

	var outputs []string
	for _, item := range tc.Board.Items() {
		if item.Status != models.ItemStatusCompleted {
			continue
		}
		filesInfo := ""
		if item.Dir != "" {
			if entries, err := os.ReadDir(filepath.Join(item.Dir, "published")); err == nil && len(entries) > 0 {
				names := make([]string, len(entries))
				for i, e := range entries {
					names[i] = e.Name()
				}
				filesInfo = fmt.Sprintf(" | Files: %v", names)
			}
		}
		result := item.Result
		if result == "" {
			result = "(no result)"
		}
		outputs = append(outputs, fmt.Sprintf("- %s: %s%s", item.ID, result, filesInfo))
	}

	return fmt.Sprintf("Stage reconvened.\n\nAssessment: %s\n\nCompleted items:\n%s",
		assessment, strings.Join(outputs, "\n")), nil
}

func implFinish(_ context.Context, tc *Context, args map[string]any) (string, error) {
	summary := argString(args, "summary")
	tc.Emit("run.completed", map[string]any{"summary": summary})
	return "AGENT_FINISHED: " + summary, nil
}
