package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conclave-ai/conclave/pkg/models"
)

func TestInitSeedsIdentityFiles(t *testing.T) {
	w := New(t.TempDir())
	if err := w.Init("ship the report"); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, name := range []string{"SOUL.md", "GOAL.md", "MEMORY.md"} {
		if _, err := os.Stat(filepath.Join(w.Root, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	goal, _ := os.ReadFile(filepath.Join(w.Root, "GOAL.md"))
	if !strings.Contains(string(goal), "ship the report") {
		t.Errorf("GOAL.md does not carry the goal: %q", goal)
	}
}

func TestInitPreservesExistingMemory(t *testing.T) {
	w := New(t.TempDir())
	if err := w.Init("first"); err != nil {
		t.Fatalf("init: %v", err)
	}
	memPath := filepath.Join(w.Root, "MEMORY.md")
	os.WriteFile(memPath, []byte("# Memory\n\n- learned a thing\n"), 0644)

	if err := w.Init("second"); err != nil {
		t.Fatalf("re-init: %v", err)
	}
	data, _ := os.ReadFile(memPath)
	if !strings.Contains(string(data), "learned a thing") {
		t.Error("re-init must not overwrite MEMORY.md")
	}
}

func TestInitItemDir(t *testing.T) {
	w := New(t.TempDir())
	if _, err := w.RunDir("run-1"); err != nil {
		t.Fatalf("run dir: %v", err)
	}

	item := &models.WorkItem{ID: "a", Task: "fetch the data", Refs: map[string]string{"source": "ref text"}}
	if err := w.InitItemDir("run-1", item); err != nil {
		t.Fatalf("init item dir: %v", err)
	}
	if item.Dir == "" {
		t.Fatal("item.Dir not set")
	}

	spec, err := os.ReadFile(filepath.Join(item.Dir, "_spec.md"))
	if err != nil {
		t.Fatalf("read _spec.md: %v", err)
	}
	if !strings.Contains(string(spec), "fetch the data") {
		t.Errorf("_spec.md missing task: %q", spec)
	}
	for _, sub := range []string{"scratch", "published"} {
		if fi, err := os.Stat(filepath.Join(item.Dir, sub)); err != nil || !fi.IsDir() {
			t.Errorf("missing %s/ directory", sub)
		}
	}
}

func TestPublishSkipsUnderscoreFiles(t *testing.T) {
	w := New(t.TempDir())
	w.RunDir("run-1")
	item := &models.WorkItem{ID: "a", Task: "write"}
	if err := w.InitItemDir("run-1", item); err != nil {
		t.Fatalf("init item dir: %v", err)
	}

	scratch := filepath.Join(item.Dir, "scratch")
	os.WriteFile(filepath.Join(scratch, "report.md"), []byte("final"), 0644)
	os.WriteFile(filepath.Join(scratch, "_notes.md"), []byte("private"), 0644)
	os.MkdirAll(filepath.Join(scratch, "data"), 0755)
	os.WriteFile(filepath.Join(scratch, "data", "rows.csv"), []byte("1,2"), 0644)

	names, err := Publish(item.Dir)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 published files, got %v", names)
	}

	published := filepath.Join(item.Dir, "published")
	if _, err := os.Stat(filepath.Join(published, "report.md")); err != nil {
		t.Error("report.md not published")
	}
	if _, err := os.Stat(filepath.Join(published, "data", "rows.csv")); err != nil {
		t.Error("nested file not published")
	}
	if _, err := os.Stat(filepath.Join(published, "_notes.md")); !os.IsNotExist(err) {
		t.Error("underscore file must not be published")
	}

	status, err := os.ReadFile(filepath.Join(item.Dir, "_status.md"))
	if err != nil || !strings.Contains(string(status), "COMPLETED") {
		t.Errorf("expected COMPLETED status stamp, got %q err %v", status, err)
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	w := New(t.TempDir())
	if err := w.Init(""); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := w.MemoryWrite("project/findings", "latency is the bottleneck"); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := w.MemoryRead("project/findings")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "latency is the bottleneck" {
		t.Errorf("unexpected content: %q", got)
	}

	if _, err := w.MemoryRead("missing"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestMemorySearch(t *testing.T) {
	w := New(t.TempDir())
	w.Init("")
	w.MemoryWrite("project/findings", "latency is the bottleneck")
	w.MemoryWrite("people/alice", "prefers short summaries")

	keys, err := w.MemorySearch("latency")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(keys) != 1 || keys[0] != "project/findings" {
		t.Errorf("content search: got %v", keys)
	}

	keys, _ = w.MemorySearch("alice")
	if len(keys) != 1 || keys[0] != "people/alice" {
		t.Errorf("key search: got %v", keys)
	}
}

func TestMemoryKeyCannotEscape(t *testing.T) {
	w := New(t.TempDir())
	w.Init("")
	if err := w.MemoryWrite("../../etc/passwd", "nope"); err == nil {
		t.Error("expected traversal key to be rejected")
	}
}
