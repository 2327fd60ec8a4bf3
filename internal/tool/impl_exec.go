package tool

import (
	"context"
	"path/filepath"
	"time"
)

const maxBashOutput = 10000

func implBash(ctx context.Context, tc *Context, args map[string]any) (string, error) {
	command := argString(args, "command")
	timeout := time.Duration(argInt(args, "timeout", 120)) * time.Second

	cwd := tc.RunDir
	if tc.Item != nil && tc.Item.Dir != "" {
		cwd = filepath.Join(tc.Item.Dir, "scratch")
	}

	tc.Emit("tool.called", map[string]any{"tool": "bash", "command": truncateString(command, 200)})

	out, err := tc.Runner.RunShellCapped(ctx, cwd, command, timeout, maxBashOutput)
	if err != nil {
		if out != "" {
			return out + "\nError: " + err.Error(), nil
		}
		return "Error: " + err.Error(), nil
	}
	if out == "" {
		return "(no output)", nil
	}
	return out, nil
}
