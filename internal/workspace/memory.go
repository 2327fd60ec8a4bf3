package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Memory keys map to files under <root>/memory/. A key like "project/notes"
// becomes memory/project/notes.md. Keys must stay inside the memory tree.

// MemoryWrite stores content under key, replacing any previous value.
func (w *Workspace) MemoryWrite(key, content string) error {
	path, err := w.memoryPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}

// MemoryRead returns the content stored under key, or an error if the key
// does not exist.
func (w *Workspace) MemoryRead(key string) (string, error) {
	path, err := w.memoryPath(key)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("memory key %q: %w", key, err)
	}
	return string(data), nil
}

// MemorySearch returns the keys whose key name or content contains the query,
// case-insensitive, sorted.
func (w *Workspace) MemorySearch(query string) ([]string, error) {
	root := filepath.Join(w.Root, "memory")
	needle := strings.ToLower(query)

	var keys []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(rel, ".md")
		if strings.Contains(strings.ToLower(key), needle) {
			keys = append(keys, key)
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if strings.Contains(strings.ToLower(string(data)), needle) {
			keys = append(keys, key)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (w *Workspace) memoryPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("empty memory key")
	}
	root := filepath.Join(w.Root, "memory")
	path := filepath.Join(root, key+".md")
	if !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", fmt.Errorf("memory key %q escapes the memory tree", key)
	}
	return path, nil
}
