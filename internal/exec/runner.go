package exec

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// ExecRunner implements CommandRunner using os/exec.
type ExecRunner struct{}

// NewRunner creates a new ExecRunner.
func NewRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes a command and returns combined stdout/stderr output.
func (r *ExecRunner) Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	return cmd.CombinedOutput()
}

// RunShell executes a shell command through "sh -c".
func (r *ExecRunner) RunShell(ctx context.Context, workDir string, command string) ([]byte, error) {
	return r.Run(ctx, workDir, "sh", "-c", command)
}

// RunShellCapped runs a shell command with a deadline and caps the returned
// output. Output beyond maxOutput bytes is replaced by a truncation marker.
func (r *ExecRunner) RunShellCapped(ctx context.Context, workDir, command string, timeout time.Duration, maxOutput int) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := r.RunShell(ctx, workDir, command)
	if ctx.Err() == context.DeadlineExceeded {
		return string(truncate(out, maxOutput)), fmt.Errorf("command timed out after %s", timeout)
	}
	return string(truncate(out, maxOutput)), err
}

// Exists checks if a file exists at the given path.
func (r *ExecRunner) Exists(ctx context.Context, workDir string, path string) bool {
	cmd := exec.CommandContext(ctx, "test", "-e", path)
	if workDir != "" {
		cmd.Dir = workDir
	}
	return cmd.Run() == nil
}

func truncate(out []byte, max int) []byte {
	if max <= 0 || len(out) <= max {
		return out
	}
	marker := []byte("\n... [output truncated]")
	return append(out[:max], marker...)
}

// Verify ExecRunner implements CommandRunner at compile time.
var _ CommandRunner = (*ExecRunner)(nil)
