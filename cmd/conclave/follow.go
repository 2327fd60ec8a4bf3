package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/conclave-ai/conclave/internal/run"
	"github.com/conclave-ai/conclave/pkg/models"
)

var (
	dimColor    = color.New(color.Faint)
	workerColor = color.New(color.FgCyan)
	goodColor   = color.New(color.FgGreen)
	badColor    = color.New(color.FgRed)
	warnColor   = color.New(color.FgYellow)
)

// followEvents prints the run's live event feed until the subscription
// closes.
func followEvents(r *run.Run) {
	id, events := r.Subscribe()
	defer r.Unsubscribe(id)

	for ev := range events {
		if line := formatEvent(ev); line != "" {
			fmt.Println(line)
		}
	}
}

func formatEvent(ev models.Event) string {
	ts := ev.Timestamp.Format(time.Kitchen)
	switch ev.Type {
	case "item.created":
		return fmt.Sprintf("%s %s item %s: %s", dim(ts), dim("+"), dataStr(ev, "item_id"), dataStr(ev, "task"))
	case "item.started":
		return fmt.Sprintf("%s %s item %s started", dim(ts), workerColor.Sprint("▸"), dataStr(ev, "item_id"))
	case "item.completed":
		return fmt.Sprintf("%s %s item %s completed", dim(ts), goodColor.Sprint("✓"), dataStr(ev, "item_id"))
	case "item.failed":
		return fmt.Sprintf("%s %s item %s failed: %s", dim(ts), badColor.Sprint("✗"), dataStr(ev, "item_id"), dataStr(ev, "reason"))
	case "worker.spawned":
		return fmt.Sprintf("%s %s worker %s joined (%s)", dim(ts), workerColor.Sprint("+"), dataStr(ev, "name"), dataStr(ev, "role"))
	case "worker.message":
		text := dataStr(ev, "text")
		if text == "" {
			return ""
		}
		return fmt.Sprintf("%s %s: %s", dim(ts), workerColor.Sprint(dataStr(ev, "worker_name")), excerptLine(text, 120))
	case "tool.called":
		return fmt.Sprintf("%s %s %s", dim(ts), dim("⚙"), dim(dataStr(ev, "tool")))
	case "human.question":
		return fmt.Sprintf("%s %s question from %s: %s", dim(ts), warnColor.Sprint("?"), dataStr(ev, "from"), dataStr(ev, "question"))
	case "run.stopped":
		return fmt.Sprintf("%s %s run paused", dim(ts), warnColor.Sprint("⏸"))
	case "run.resumed":
		return fmt.Sprintf("%s %s run resumed", dim(ts), goodColor.Sprint("▸"))
	case "run.completed":
		return fmt.Sprintf("%s %s %s", dim(ts), goodColor.Sprint("✓"), dataStr(ev, "summary"))
	case "trigger.fired":
		return fmt.Sprintf("%s %s trigger fired (%s)", dim(ts), warnColor.Sprint("⏰"), dataStr(ev, "kind"))
	default:
		return ""
	}
}

func dataStr(ev models.Event, key string) string {
	if ev.Data == nil {
		return ""
	}
	if s, ok := ev.Data[key].(string); ok {
		return s
	}
	return ""
}

func dim(s string) string {
	return dimColor.Sprint(s)
}

func excerptLine(s string, max int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}
