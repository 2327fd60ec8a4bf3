package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conclave-ai/conclave/internal/tool"
	"github.com/conclave-ai/conclave/pkg/models"
)

const (
	bridgePollInterval = 5 * time.Second

	bridgeTaskFile    = "_task.md"
	bridgeContextFile = "_context.json"
	bridgeInboxFile   = "_inbox.md"
	bridgeOutboxFile  = "_outbox.md"
)

const bridgeTaskHeader = `# Task

%s

# Protocol

- Your working directory is your scratch space. Produce your output here.
- Messages from the run arrive appended to _inbox.md.
- To send a message, append to _outbox.md: an optional "TO: <name>" line,
  then the message body, then a line containing only "---".
- When you are done, write a summary of what you produced to _result.md
  and exit.
`

// FileBridgeExecutor drives an arbitrary external process through sentinel
// files in the item's scratch directory. It bridges the process's inbox and
// outbox files to the message bus on a poll loop, woken early by filesystem
// writes, and completes the item when the process writes _result.md.
type FileBridgeExecutor struct {
	base tool.Context
}

// NewFileBridge creates a file-bridge executor.
func NewFileBridge(base tool.Context) *FileBridgeExecutor {
	return &FileBridgeExecutor{base: base}
}

// Execute seeds the bridge files, launches the worker's agent command, and
// bridges messages until the process finishes or the run is cancelled.
func (e *FileBridgeExecutor) Execute(ctx context.Context, worker *models.Worker, item *models.WorkItem) (string, error) {
	tc := scopedContext(e.base, worker, item)
	markStarted(tc)

	if strings.TrimSpace(worker.AgentCommand) == "" {
		reportFailure(tc, "Worker has no agent command configured.", "Task: "+truncate(item.Task, 500))
		return "", nil
	}

	scratch := scratchDir(item)
	if err := e.seedBridgeFiles(tc, scratch); err != nil {
		reportFailure(tc, "Could not prepare bridge files: "+err.Error(), "Task: "+truncate(item.Task, 500))
		return "", nil
	}

	parts := strings.Fields(worker.AgentCommand)
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = scratch

	var out lockedBuffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		reportFailure(tc, "Could not start agent: "+err.Error(), "Task: "+truncate(item.Task, 500))
		return "", nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	// A watcher wakes the bridge loop as soon as the process writes; the
	// ticker is the fallback when the platform drops events.
	var wake <-chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(scratch); err == nil {
			wake = watcher.Events
		}
	}

	ticker := time.NewTicker(bridgePollInterval)
	defer ticker.Stop()

	for {
		e.bridgeInbox(tc, scratch)
		e.bridgeOutbox(tc, scratch)

		if result := readScratchResult(item); result != "" {
			// The process may still be running; the result file is the
			// termination signal.
			if cmd.Process != nil {
				cmd.Process.Kill()
			}
			<-done
			if err := completeWithResult(tc, result); err != nil {
				tc.Logger.Log("executor: complete %s: %v", item.ID, err)
			}
			return result, nil
		}

		select {
		case <-ctx.Done():
			<-done
			cancelExecution(tc)
			return "", nil
		case err := <-done:
			// Final bridge pass: the process may have written messages and
			// a result just before exiting.
			e.bridgeOutbox(tc, scratch)
			if result := readScratchResult(item); result != "" {
				if cerr := completeWithResult(tc, result); cerr != nil {
					tc.Logger.Log("executor: complete %s: %v", item.ID, cerr)
				}
				return result, nil
			}
			reason := "Agent exited without writing _result.md."
			if err != nil {
				reason = "Agent exited with error: " + err.Error()
			}
			notes := "Task: " + truncate(item.Task, 500) + "\n\nOutput:\n" + truncate(out.String(), 1000)
			reportFailure(tc, reason, notes)
			return "", nil
		case <-ticker.C:
		case <-wake:
		}
	}
}

// seedBridgeFiles writes the task brief, context, and empty mailboxes the
// external process reads and writes.
func (e *FileBridgeExecutor) seedBridgeFiles(tc *tool.Context, scratch string) error {
	task := fmt.Sprintf(bridgeTaskHeader, tc.Item.Task)
	if err := os.WriteFile(filepath.Join(scratch, bridgeTaskFile), []byte(task), 0644); err != nil {
		return err
	}

	ctxData, err := json.MarshalIndent(map[string]any{
		"item_id": tc.Item.ID,
		"worker":  tc.Worker.Name,
		"task":    tc.Item.Task,
		"refs":    tc.Item.Refs,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(scratch, bridgeContextFile), ctxData, 0644); err != nil {
		return err
	}

	for _, name := range []string{bridgeInboxFile, bridgeOutboxFile} {
		if err := os.WriteFile(filepath.Join(scratch, name), nil, 0644); err != nil {
			return err
		}
	}
	return nil
}

// bridgeInbox appends the worker's pending messages to the inbox file.
func (e *FileBridgeExecutor) bridgeInbox(tc *tool.Context, scratch string) {
	msgs := tc.Messages.Receive(tc.Worker.Name)
	if len(msgs) == 0 {
		return
	}
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "FROM: %s\n%s\n---\n", m.From, m.Content)
	}
	f, err := os.OpenFile(filepath.Join(scratch, bridgeInboxFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		tc.Logger.Log("executor: append inbox for %s: %v", tc.Item.ID, err)
		return
	}
	defer f.Close()
	f.WriteString(b.String())
}

// bridgeOutbox sends pending outbox entries and clears the file. Each entry
// is terminated by a line containing only "---"; a leading "TO:" line names
// the recipient, defaulting to the coordinator.
func (e *FileBridgeExecutor) bridgeOutbox(tc *tool.Context, scratch string) {
	path := filepath.Join(scratch, bridgeOutboxFile)
	data, err := os.ReadFile(path)
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return
	}

	for _, chunk := range strings.Split(string(data), "\n---") {
		body := strings.TrimSpace(chunk)
		if body == "" {
			continue
		}
		to := "coordinator"
		if first, rest, ok := strings.Cut(body, "\n"); ok && strings.HasPrefix(first, "TO:") {
			to = strings.TrimSpace(strings.TrimPrefix(first, "TO:"))
			body = strings.TrimSpace(rest)
		} else if strings.HasPrefix(body, "TO:") {
			// A bare recipient line with no body is dropped.
			continue
		}
		if body == "" {
			continue
		}
		tc.Messages.Send(tc.Worker.Name, to, body)
	}

	os.WriteFile(path, nil, 0644)
}

// lockedBuffer is a mutex-guarded buffer for collecting subprocess output
// written from the exec package's copier goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
