package models

// WorkerType selects the executor strategy that drives a worker.
type WorkerType string

const (
	// WorkerTypeReact runs the in-process reasoning loop against a backend.
	WorkerTypeReact WorkerType = "react"
	// WorkerTypeAgentCLI launches an external coding-agent subprocess.
	WorkerTypeAgentCLI WorkerType = "agent-cli"
	// WorkerTypeFileBridge drives an arbitrary process over sentinel files.
	WorkerTypeFileBridge WorkerType = "file-bridge"
)

// Valid returns true if the type is a known value.
func (t WorkerType) Valid() bool {
	switch t {
	case WorkerTypeReact, WorkerTypeAgentCLI, WorkerTypeFileBridge:
		return true
	default:
		return false
	}
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

const (
	// WorkerStatusIdle indicates the worker can accept an item.
	WorkerStatusIdle WorkerStatus = "idle"
	// WorkerStatusBusy indicates the worker is executing an item.
	WorkerStatusBusy WorkerStatus = "busy"
	// WorkerStatusWaitingForHuman indicates the worker is blocked on a question.
	WorkerStatusWaitingForHuman WorkerStatus = "waiting_for_human"
	// WorkerStatusStopped indicates the worker has been retired.
	WorkerStatusStopped WorkerStatus = "stopped"
)

// Valid returns true if the status is a known value.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerStatusIdle, WorkerStatusBusy, WorkerStatusWaitingForHuman, WorkerStatusStopped:
		return true
	default:
		return false
	}
}

// Worker is an executor identity that can be assigned work items.
type Worker struct {
	// ID is the unique identifier for this worker.
	ID string `json:"id"`
	// Name is the display name used for message addressing.
	Name string `json:"name"`
	// Role describes what the worker is for.
	Role string `json:"role"`
	// Type selects the executor strategy.
	Type WorkerType `json:"type"`
	// Model is the backend reference for react workers.
	Model string `json:"model,omitempty"`
	// AgentCommand overrides the subprocess command for bridge workers.
	AgentCommand string `json:"agent_command,omitempty"`
	// Status is the current state of the worker.
	Status WorkerStatus `json:"status"`
	// Capabilities lists free-form capability tags.
	Capabilities []string `json:"capabilities,omitempty"`
	// Dir is the worker's identity/memory directory.
	Dir string `json:"dir,omitempty"`
	// MaxIterations caps the reasoning loop per assigned item.
	MaxIterations int `json:"max_iterations"`
}
