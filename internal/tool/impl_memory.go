package tool

import (
	"context"
	"strings"
)

func implMemoryWrite(_ context.Context, tc *Context, args map[string]any) (string, error) {
	path := argString(args, "path")
	if err := tc.Workspace.MemoryWrite(path, argString(args, "content")); err != nil {
		return "", err
	}
	tc.Emit("memory.written", map[string]any{"path": path})
	return "Written to memory/" + path, nil
}

func implMemoryRead(_ context.Context, tc *Context, args map[string]any) (string, error) {
	path := argString(args, "path")
	content, err := tc.Workspace.MemoryRead(path)
	if err != nil {
		return "Error: Memory file not found: memory/" + path, nil
	}
	return content, nil
}

func implMemorySearch(_ context.Context, tc *Context, args map[string]any) (string, error) {
	keys, err := tc.Workspace.MemorySearch(argString(args, "query"))
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "No matching memory found.", nil
	}

	// Return matching entries inline; memory files are small by convention.
	var parts []string
	for _, key := range keys {
		content, err := tc.Workspace.MemoryRead(key)
		if err != nil {
			continue
		}
		parts = append(parts, "**"+key+"**\n"+content)
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}
