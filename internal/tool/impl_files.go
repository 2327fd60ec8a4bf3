package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const maxFileRead = 50000

func implReadFile(_ context.Context, tc *Context, args map[string]any) (string, error) {
	path := argString(args, "path")
	full, err := tc.ResolvePath(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return "Error: File not found: " + path, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return truncateString(string(data), maxFileRead), nil
}

func implWriteFile(_ context.Context, tc *Context, args map[string]any) (string, error) {
	path := argString(args, "path")
	content := argString(args, "content")

	full, err := tc.ResolvePath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return "", err
	}
	return fmt.Sprintf("Written %d bytes to %s", len(content), path), nil
}

func implListFiles(_ context.Context, tc *Context, args map[string]any) (string, error) {
	path := argString(args, "path")
	full, err := tc.ResolvePath(path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(full)
	if os.IsNotExist(err) {
		return "Error: Directory not found: " + path, nil
	}
	if err != nil {
		return "Error: Not a directory: " + path, nil
	}
	if len(entries) == 0 {
		return "(empty directory)", nil
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names[i] = name
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

func implReadRef(_ context.Context, tc *Context, args map[string]any) (string, error) {
	refName := argString(args, "ref_name")
	if tc.Item == nil || tc.Item.Dir == "" {
		return "Error: No active item.", nil
	}

	data, err := os.ReadFile(filepath.Join(tc.Item.Dir, "_refs.json"))
	if err != nil {
		return "Error: No _refs.json found.", nil
	}
	var refs map[string]string
	if err := json.Unmarshal(data, &refs); err != nil {
		return "", fmt.Errorf("parse _refs.json: %w", err)
	}

	refPath, ok := refs[refName]
	if !ok {
		keys := make([]string, 0, len(refs))
		for k := range refs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Sprintf("Error: Ref '%s' not found. Available: %v", refName, keys), nil
	}

	full, err := tc.ResolvePath(refPath)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return "Error: Referenced file not found: " + refPath, nil
	}
	return truncateString(string(content), maxFileRead), nil
}
