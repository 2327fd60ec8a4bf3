// Package tool holds the tool registry, the shared execution context, and
// the built-in tool set available to the coordinator and workers.
package tool

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/conclave-ai/conclave/internal/board"
	"github.com/conclave-ai/conclave/internal/bus"
	"github.com/conclave-ai/conclave/internal/exec"
	"github.com/conclave-ai/conclave/internal/logging"
	"github.com/conclave-ai/conclave/internal/trigger"
	"github.com/conclave-ai/conclave/internal/workspace"
	"github.com/conclave-ai/conclave/pkg/models"
)

// Context is the runtime context passed to every tool implementation. One
// Context exists per actor per execution: the coordinator has its own, and
// each in-flight item execution gets one scoped to its item and worker.
type Context struct {
	RunID  string
	RunDir string

	// Item and Worker scope the context to one execution. Both are nil for
	// the coordinator.
	Item   *models.WorkItem
	Worker *models.Worker

	Workspace *workspace.Workspace
	Board     *board.Board
	Pool      *board.Pool
	Messages  *bus.MessageBus
	Events    *bus.EventBus
	Triggers  *trigger.Store
	Runner    exec.CommandRunner
	Logger    *logging.RunLogger

	// HumanResponses is the run-wide channel human answers arrive on. All
	// pending questions share it; whoever is blocked first wins.
	HumanResponses <-chan string
	HumanTimeout   time.Duration

	// Ticker, when non-nil, is called by tools that create schedulable work
	// so the scheduler re-examines the board.
	Ticker func()

	DefaultModel string

	// Search configuration for the web_search tool.
	SearchProvider string
	BraveAPIKey    string
	SerperAPIKey   string
	HTTPClient     *http.Client
}

// Sender returns the name tools should use as message sender: the worker's
// name, or "coordinator".
func (c *Context) Sender() string {
	if c.Worker != nil {
		return c.Worker.Name
	}
	return "coordinator"
}

// Emit publishes an event through the run's event bus, if present.
func (c *Context) Emit(eventType string, data map[string]any) {
	if c.Events != nil {
		c.Events.Publish(eventType, c.RunID, data)
	}
}

// ResolvePath resolves a path relative to the run directory, refusing paths
// that escape the workspace root.
func (c *Context) ResolvePath(path string) (string, error) {
	base := c.RunDir
	if base == "" {
		base = c.Workspace.Root
	}
	resolved := filepath.Clean(filepath.Join(base, path))

	root := filepath.Clean(c.Workspace.Root)
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the workspace: %s", path)
	}
	return resolved, nil
}
