package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/conclave-ai/conclave/pkg/models"
)

func implSchedule(_ context.Context, tc *Context, args map[string]any) (string, error) {
	kind := models.TriggerKind(argString(args, "type"))
	t := &models.Trigger{
		ID:     models.NewID(),
		RunID:  tc.RunID,
		Kind:   kind,
		Action: argString(args, "action"),
		Config: argMap(args, "config"),
	}
	tc.Triggers.Add(t)
	tc.Emit("trigger.created", map[string]any{"trigger_id": t.ID, "type": string(kind)})

	out, _ := json.Marshal(map[string]string{
		"trigger_id": t.ID,
		"type":       string(kind),
		"status":     "active",
	})
	return string(out), nil
}

func implListTriggers(_ context.Context, tc *Context, _ map[string]any) (string, error) {
	active := tc.Triggers.Active()
	if len(active) == 0 {
		return "No active triggers.", nil
	}
	lines := make([]string, len(active))
	for i, t := range active {
		lines[i] = fmt.Sprintf("- %s: %s | %s", t.ID, t.Kind, truncateString(t.Action, 60))
	}
	return strings.Join(lines, "\n"), nil
}

func implCancelTrigger(_ context.Context, tc *Context, args map[string]any) (string, error) {
	id := argString(args, "trigger_id")
	if !tc.Triggers.Cancel(id) {
		return fmt.Sprintf("Error: Trigger %s not found.", id), nil
	}
	return fmt.Sprintf("Trigger %s cancelled.", id), nil
}
