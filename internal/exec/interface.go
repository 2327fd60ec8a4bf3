// Package exec provides an interface for command execution.
package exec

import (
	"context"
	"time"
)

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr output.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, err error)

	// RunShell executes a shell command through "sh -c".
	RunShell(ctx context.Context, workDir string, command string) (output []byte, err error)

	// RunShellCapped runs a shell command with a deadline and returns at most
	// maxOutput bytes of combined output, noting truncation. This is the
	// entry point for model-initiated shell runs, which must never flood a
	// prompt.
	RunShellCapped(ctx context.Context, workDir, command string, timeout time.Duration, maxOutput int) (output string, err error)

	// Exists checks if a file exists at the given path.
	// The working directory is set to workDir if non-empty.
	Exists(ctx context.Context, workDir string, path string) bool
}
