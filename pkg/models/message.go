package models

import "time"

// Message is a point-to-point text message between run entities.
type Message struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"ts"`
}

// Event is one record in the run's append-only audit trail. Events are
// immutable once emitted and are never deleted.
type Event struct {
	Type      string         `json:"type"`
	RunID     string         `json:"run_id"`
	Timestamp time.Time      `json:"ts"`
	Data      map[string]any `json:"data,omitempty"`
}

// TriggerKind selects when a trigger fires.
type TriggerKind string

const (
	// TriggerKindDelayed fires once after a delay.
	TriggerKindDelayed TriggerKind = "delayed"
	// TriggerKindAtTime fires once at an absolute time.
	TriggerKindAtTime TriggerKind = "at_time"
	// TriggerKindCron fires on a cron expression.
	TriggerKindCron TriggerKind = "cron"
	// TriggerKindHeartbeat fires repeatedly on an interval.
	TriggerKindHeartbeat TriggerKind = "heartbeat"
)

// TriggerStatus represents the lifecycle state of a trigger.
type TriggerStatus string

const (
	TriggerStatusActive  TriggerStatus = "active"
	TriggerStatusPaused  TriggerStatus = "paused"
	TriggerStatusExpired TriggerStatus = "expired"
	TriggerStatusFired   TriggerStatus = "fired"
)

// Trigger is a scheduled future action recorded against a run.
type Trigger struct {
	// ID is the unique identifier for this trigger.
	ID string `json:"id"`
	// RunID is the run the trigger belongs to.
	RunID string `json:"run_id"`
	// Kind selects when the trigger fires.
	Kind TriggerKind `json:"kind"`
	// Action is the task description delivered when the trigger fires.
	Action string `json:"action"`
	// Status is the lifecycle state.
	Status TriggerStatus `json:"status"`
	// Config holds kind-specific settings: delay_seconds, at (RFC3339),
	// cron, interval_seconds.
	Config map[string]any `json:"config,omitempty"`
	// CreatedAt is when the trigger was registered.
	CreatedAt time.Time `json:"created_at"`
}
