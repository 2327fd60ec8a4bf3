package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/conclave-ai/conclave/internal/metrics"
	"github.com/conclave-ai/conclave/internal/workspace"
	"github.com/conclave-ai/conclave/pkg/models"
)

func implPublish(_ context.Context, tc *Context, args map[string]any) (string, error) {
	if tc.Item == nil || tc.Item.Dir == "" {
		return "Error: No active item to publish.", nil
	}
	summary := argString(args, "summary")

	if _, err := workspace.Publish(tc.Item.Dir); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	status := fmt.Sprintf("COMPLETED\n\n%s\n", summary)
	if err := os.WriteFile(filepath.Join(tc.Item.Dir, "_status.md"), []byte(status), 0644); err != nil {
		return "", err
	}

	if err := tc.Board.Complete(tc.Item.ID, summary); err != nil {
		return "", err
	}
	metrics.ItemsTotal.WithLabelValues("completed").Inc()

	if tc.Worker != nil {
		if tc.Worker.Dir != "" {
			workspace.AppendWorkerMemory(tc.Worker.Dir, fmt.Sprintf("item %s: %s", tc.Item.ID, summary))
		}
		tc.Pool.Release(tc.Worker.ID)
	}

	tc.Emit("item.completed", map[string]any{"item_id": tc.Item.ID, "summary": summary})
	return fmt.Sprintf("Published. Item '%s' complete.", tc.Item.ID), nil
}

func implCheckpoint(_ context.Context, tc *Context, args map[string]any) (string, error) {
	summary := argString(args, "summary")

	itemID := ""
	if tc.Item != nil {
		itemID = tc.Item.ID
		if tc.Item.Dir != "" {
			status := fmt.Sprintf("CHECKPOINT\n\n%s\n", summary)
			os.WriteFile(filepath.Join(tc.Item.Dir, "_status.md"), []byte(status), 0644)
		}
	}
	tc.Emit("item.checkpoint", map[string]any{"item_id": itemID, "summary": summary})
	return "Checkpoint recorded: " + summary, nil
}

func implCreateWorkItem(_ context.Context, tc *Context, args map[string]any) (string, error) {
	item := &models.WorkItem{
		ID:           models.NewID(),
		Task:         argString(args, "task"),
		Dependencies: argStringSlice(args, "deps"),
		Refs:         argStringMap(args, "refs"),
	}
	if tc.Item != nil {
		item.ParentID = tc.Item.ID
	}

	if tc.Workspace != nil {
		if err := tc.Workspace.InitItemDir(tc.RunID, item); err != nil {
			return "", err
		}
	}
	if err := tc.Board.Add(item); err != nil {
		return "", err
	}
	if tc.Item != nil {
		tc.Board.AddChild(tc.Item.ID, item.ID)
	}

	tc.Emit("item.created", map[string]any{"item_id": item.ID, "task": truncateString(item.Task, 100)})
	if tc.Ticker != nil {
		tc.Ticker()
	}

	out, _ := json.Marshal(map[string]string{"item_id": item.ID, "status": "created"})
	return string(out), nil
}

func implSuggestNext(_ context.Context, tc *Context, args map[string]any) (string, error) {
	tc.Messages.Send(tc.Sender(), "coordinator", "[SUGGESTION] "+argString(args, "suggestion"))
	return "Suggestion sent to coordinator.", nil
}
