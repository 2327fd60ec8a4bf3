package trigger

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/conclave-ai/conclave/pkg/models"
)

// FireFunc is invoked when a trigger fires, with the trigger and its action
// text.
type FireFunc func(t *models.Trigger, action string)

// Evaluator polls the store and fires due triggers. One-shot kinds (delayed,
// at_time) move to fired; repeating kinds (cron, heartbeat) stay active.
type Evaluator struct {
	store *Store
	fire  FireFunc

	// pollInterval is short enough that a cron trigger cannot skip a minute.
	pollInterval time.Duration

	lastFired map[string]time.Time
}

// NewEvaluator creates an evaluator. fire must be safe for concurrent use
// with the rest of the run.
func NewEvaluator(store *Store, fire FireFunc) *Evaluator {
	return &Evaluator{
		store:        store,
		fire:         fire,
		pollInterval: 10 * time.Second,
		lastFired:    make(map[string]time.Time),
	}
}

// Run polls until the context is cancelled.
func (e *Evaluator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.Evaluate(now)
		}
	}
}

// Evaluate checks every active trigger against now and fires the due ones.
// Exposed separately from Run so tests can drive time directly.
func (e *Evaluator) Evaluate(now time.Time) {
	for _, t := range e.store.Active() {
		if e.due(t, now) {
			if t.Kind == models.TriggerKindDelayed || t.Kind == models.TriggerKindAtTime {
				e.store.SetStatus(t.ID, models.TriggerStatusFired)
			} else {
				e.lastFired[t.ID] = now
			}
			e.fire(t, t.Action)
		}
	}
}

func (e *Evaluator) due(t *models.Trigger, now time.Time) bool {
	switch t.Kind {
	case models.TriggerKindDelayed:
		delay := configSeconds(t.Config, "delay_seconds")
		return delay >= 0 && now.Sub(t.CreatedAt) >= delay

	case models.TriggerKindAtTime:
		at, ok := t.Config["at"].(string)
		if !ok {
			return false
		}
		when, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return false
		}
		return !now.Before(when)

	case models.TriggerKindHeartbeat:
		interval := configSeconds(t.Config, "interval_seconds")
		if interval <= 0 {
			return false
		}
		last, ok := e.lastFired[t.ID]
		if !ok {
			last = t.CreatedAt
		}
		return now.Sub(last) >= interval

	case models.TriggerKindCron:
		expr, ok := t.Config["cron"].(string)
		if !ok {
			return false
		}
		if !cronMatches(expr, now) {
			return false
		}
		// Fire at most once per matching minute.
		last, fired := e.lastFired[t.ID]
		return !fired || !sameMinute(last, now)
	}
	return false
}

func configSeconds(config map[string]any, key string) time.Duration {
	switch v := config[key].(type) {
	case float64:
		return time.Duration(v * float64(time.Second))
	case int:
		return time.Duration(v) * time.Second
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return -1
		}
		return time.Duration(n) * time.Second
	}
	return -1
}

func sameMinute(a, b time.Time) bool {
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}

// cronMatches evaluates a five-field cron expression (minute, hour,
// day-of-month, month, day-of-week) against now. Supported field syntax:
// "*", single numbers, comma lists, and "*/n" steps.
func cronMatches(expr string, now time.Time) bool {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return false
	}
	values := []int{
		now.Minute(),
		now.Hour(),
		now.Day(),
		int(now.Month()),
		int(now.Weekday()),
	}
	for i, field := range fields {
		if !cronFieldMatches(field, values[i]) {
			return false
		}
	}
	return true
}

func cronFieldMatches(field string, value int) bool {
	if field == "*" {
		return true
	}
	if step, ok := strings.CutPrefix(field, "*/"); ok {
		n, err := strconv.Atoi(step)
		return err == nil && n > 0 && value%n == 0
	}
	for _, part := range strings.Split(field, ",") {
		n, err := strconv.Atoi(part)
		if err == nil && n == value {
			return true
		}
	}
	return false
}
