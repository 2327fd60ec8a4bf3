// Package workspace manages the on-disk layout backing a run: the root
// identity files, the per-run directory tree, and the per-item scratch and
// published areas that workers read and write through tools.
package workspace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/conclave-ai/conclave/pkg/models"
)

// Layout under the workspace root:
//
//	SOUL.md               identity and standing instructions
//	GOAL.md               current goal
//	MEMORY.md             long-lived notes, appended across runs
//	memory/               keyed memory files written by the memory tools
//	runs/<run-id>/
//	    items/<item-id>/  per-item working dirs
//	    workers/<name>/   per-worker dirs (file-bridge sentinels, memory)
//	    _messages/        message bus JSONL log
//	    _events.jsonl     event bus log
//	    _conversation.jsonl
//	    _debug.log

// Workspace wraps a root directory and knows the layout conventions.
type Workspace struct {
	Root string
}

// New returns a Workspace rooted at dir. The directory is not touched until
// Init or one of the ensure methods is called.
func New(dir string) *Workspace {
	return &Workspace{Root: dir}
}

// Init creates the root layout and seeds the identity files if absent.
// Existing files are never overwritten, so re-running against a workspace
// keeps accumulated memory.
func (w *Workspace) Init(goal string) error {
	for _, dir := range []string{w.Root, filepath.Join(w.Root, "memory"), filepath.Join(w.Root, "runs")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("init workspace: %w", err)
		}
	}

	seeds := map[string]string{
		"SOUL.md":   defaultSoul,
		"MEMORY.md": "# Memory\n\n",
	}
	for name, content := range seeds {
		path := filepath.Join(w.Root, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return fmt.Errorf("seed %s: %w", name, err)
			}
		}
	}

	// GOAL.md always reflects the current goal.
	if goal != "" {
		if err := os.WriteFile(filepath.Join(w.Root, "GOAL.md"), []byte(goal+"\n"), 0644); err != nil {
			return fmt.Errorf("write GOAL.md: %w", err)
		}
	}
	return nil
}

const defaultSoul = `# Soul

You are part of a team of agents working toward a shared goal. Read GOAL.md
for the current objective and MEMORY.md for what past runs learned.
`

// RunDir returns the directory for a run, creating it and its standard
// subdirectories.
func (w *Workspace) RunDir(runID string) (string, error) {
	dir := filepath.Join(w.Root, "runs", runID)
	for _, sub := range []string{"items", "workers", "_messages"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return "", fmt.Errorf("create run dir: %w", err)
		}
	}
	return dir, nil
}

// MessageLogPath returns the message bus JSONL path for a run.
func (w *Workspace) MessageLogPath(runID string) string {
	return filepath.Join(w.Root, "runs", runID, "_messages", "messages.jsonl")
}

// EventLogPath returns the event bus JSONL path for a run.
func (w *Workspace) EventLogPath(runID string) string {
	return filepath.Join(w.Root, "runs", runID, "_events.jsonl")
}

// ConversationLogPath returns the coordinator conversation JSONL path.
func (w *Workspace) ConversationLogPath(runID string) string {
	return filepath.Join(w.Root, "runs", runID, "_conversation.jsonl")
}

// InitItemDir creates the working directory for a work item and writes its
// task statement and reference index. The item's Dir field is set to the
// created path.
func (w *Workspace) InitItemDir(runID string, item *models.WorkItem) error {
	dir := filepath.Join(w.Root, "runs", runID, "items", item.ID)
	for _, sub := range []string{"scratch", "published"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return fmt.Errorf("create item dir: %w", err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "_spec.md"), []byte(item.Task+"\n"), 0644); err != nil {
		return fmt.Errorf("write _spec.md: %w", err)
	}

	refs := item.Refs
	if refs == nil {
		refs = map[string]string{}
	}
	data, err := json.MarshalIndent(refs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal refs: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "_refs.json"), data, 0644); err != nil {
		return fmt.Errorf("write _refs.json: %w", err)
	}

	item.Dir = dir
	return nil
}

// InitWorkerDir creates a worker's directory and sets the worker's Dir field.
func (w *Workspace) InitWorkerDir(runID string, worker *models.Worker) error {
	dir := filepath.Join(w.Root, "runs", runID, "workers", worker.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create worker dir: %w", err)
	}
	worker.Dir = dir
	return nil
}

// Publish copies everything under the item's scratch/ into published/,
// skipping files whose name starts with "_", and stamps _status.md. It
// returns the published file names.
func Publish(itemDir string) ([]string, error) {
	scratch := filepath.Join(itemDir, "scratch")
	published := filepath.Join(itemDir, "published")
	if err := os.MkdirAll(published, 0755); err != nil {
		return nil, err
	}

	var names []string
	err := filepath.WalkDir(scratch, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), "_") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(scratch, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(published, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0755)
		}
		if err := copyFile(path, dst); err != nil {
			return err
		}
		names = append(names, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}

	status := []byte("COMPLETED\n")
	if err := os.WriteFile(filepath.Join(itemDir, "_status.md"), status, 0644); err != nil {
		return nil, err
	}
	return names, nil
}

// WriteFailureNotes records why an item failed next to its outputs.
func WriteFailureNotes(itemDir, notes string) error {
	return os.WriteFile(filepath.Join(itemDir, "failure_notes.md"), []byte(notes), 0644)
}

// AppendJSONL marshals v and appends it as one line to path, creating the
// file if needed.
func AppendJSONL(path string, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

// AppendWorkerMemory appends a note to the worker's MEMORY.md so publishes
// leave a durable trace for later items.
func AppendWorkerMemory(workerDir, note string) error {
	path := filepath.Join(workerDir, "MEMORY.md")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "- %s\n", note)
	return err
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
