// Package models defines the core data structures shared across the engine:
// work items, workers, messages, events, triggers, and the normalized model
// call contract. Types here are pure state; all concurrent mutation goes
// through the owning collections (board, pool).
package models

import "time"

// ItemStatus represents the current state of a work item.
type ItemStatus string

const (
	// ItemStatusPending indicates the item has not been assigned.
	ItemStatusPending ItemStatus = "pending"
	// ItemStatusAssigned indicates the item has a worker but has not started.
	ItemStatusAssigned ItemStatus = "assigned"
	// ItemStatusRunning indicates a worker is executing the item.
	ItemStatusRunning ItemStatus = "running"
	// ItemStatusCompleted indicates the item finished successfully.
	ItemStatusCompleted ItemStatus = "completed"
	// ItemStatusFailed indicates the item failed or was cancelled.
	ItemStatusFailed ItemStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusPending, ItemStatusAssigned, ItemStatusRunning,
		ItemStatusCompleted, ItemStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true for statuses an item can never leave.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusCompleted || s == ItemStatusFailed
}

// WorkItem is a unit of delegated work tracked on the board.
type WorkItem struct {
	// ID is the unique identifier for this item.
	ID string `json:"id"`
	// Task is the specification text given to the executing worker.
	Task string `json:"task"`
	// Dependencies lists item IDs that must complete before this item.
	Dependencies []string `json:"dependencies,omitempty"`
	// Refs maps names to other items' published output paths.
	Refs map[string]string `json:"refs,omitempty"`
	// Status is the current state of the item.
	Status ItemStatus `json:"status"`
	// AssignedWorker is the ID of the worker executing this item, if any.
	AssignedWorker string `json:"assigned_worker,omitempty"`
	// ParentID is the ID of the item that created this one, if any.
	ParentID string `json:"parent_id,omitempty"`
	// Children lists items created while executing this one.
	Children []string `json:"children,omitempty"`
	// Dir is the item's workspace directory.
	Dir string `json:"dir,omitempty"`
	// Result holds the published result text once the item is terminal.
	Result string `json:"result,omitempty"`
	// CreatedAt is when the item was created.
	CreatedAt time.Time `json:"created_at"`
}

// CheckpointPolicy decides when a stage counts as satisfied.
type CheckpointPolicy string

const (
	// PolicyAllMustComplete requires every item in the stage to complete.
	PolicyAllMustComplete CheckpointPolicy = "all_must_complete"
	// PolicyMajority requires more than half of the stage's items to complete.
	PolicyMajority CheckpointPolicy = "majority"
	// PolicyAny requires at least one item in the stage to complete.
	PolicyAny CheckpointPolicy = "any"
)

// StageContract bounds the execution of a stage's items.
type StageContract struct {
	// MaxIterations caps the reasoning loop per item.
	MaxIterations int `json:"max_iterations"`
	// Timeout is the wall-clock bound for the whole stage.
	Timeout time.Duration `json:"timeout"`
	// Policy decides when the stage counts as satisfied.
	Policy CheckpointPolicy `json:"policy"`
}

// DefaultStageContract returns the contract applied when a stage names none.
func DefaultStageContract() StageContract {
	return StageContract{
		MaxIterations: 20,
		Timeout:       10 * time.Minute,
		Policy:        PolicyAllMustComplete,
	}
}

// Stage groups item IDs under a completion contract.
type Stage struct {
	// Name describes the stage.
	Name string `json:"name"`
	// Items lists the IDs grouped under this stage.
	Items []string `json:"items"`
	// Contract bounds the stage's execution.
	Contract StageContract `json:"contract"`
	// Status is planning, running, reconvening, or completed.
	Status string `json:"status"`
}
