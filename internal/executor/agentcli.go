package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/conclave-ai/conclave/internal/provider"
	"github.com/conclave-ai/conclave/internal/tool"
	"github.com/conclave-ai/conclave/pkg/models"
)

const agentResultFile = "_result.md"

const agentInstructions = `

## Finishing
When the task is complete, write a concise summary of what you produced to a
file named _result.md in your working directory. The run engine reads that
file to mark your item done; without it your work is treated as a failure.`

// AgentCLIExecutor runs a work item by delegating to an external coding
// agent. The agent runs as a subprocess in the item's scratch directory,
// emitting newline-delimited JSON events on stdout; it signals completion by
// writing _result.md.
type AgentCLIExecutor struct {
	base    tool.Context
	command string
}

// NewAgentCLI creates an agent-cli executor. command defaults to "claude".
func NewAgentCLI(base tool.Context, command string) *AgentCLIExecutor {
	if command == "" {
		command = "claude"
	}
	return &AgentCLIExecutor{base: base, command: command}
}

// cliEvent is one stream-json line from the agent subprocess.
type cliEvent struct {
	Type    string `json:"type"`
	Result  string `json:"result"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
			Name string `json:"name"`
		} `json:"content"`
	} `json:"message"`
}

// Execute launches the agent on the item and settles the item from its
// outcome: _result.md on disk means success, anything else is a failure.
func (e *AgentCLIExecutor) Execute(ctx context.Context, worker *models.Worker, item *models.WorkItem) (string, error) {
	tc := scopedContext(e.base, worker, item)
	markStarted(tc)

	args := []string{
		"--output-format", "stream-json",
		"--print",
		"--verbose",
	}
	if _, model := provider.ParseModelSpec(worker.Model); model != "" && model != worker.Model {
		args = append(args, "--model", model)
	}
	args = append(args, "-p", initialMessage(tc)+agentInstructions)

	cmd := exec.CommandContext(ctx, e.command, args...)
	cmd.Dir = scratchDir(item)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		reportFailure(tc, "Could not start agent: "+err.Error(), "Task: "+truncate(item.Task, 500))
		return "", nil
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		reportFailure(tc, "Could not start agent: "+err.Error(), "Task: "+truncate(item.Task, 500))
		return "", nil
	}
	if err := cmd.Start(); err != nil {
		reportFailure(tc, "Could not start agent: "+err.Error(), "Task: "+truncate(item.Task, 500))
		return "", nil
	}

	var mu sync.Mutex
	var stderrTail []byte
	go func() {
		data, _ := io.ReadAll(stderr)
		mu.Lock()
		stderrTail = data
		mu.Unlock()
	}()

	streamResult := e.forwardEvents(tc, stdout)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		cancelExecution(tc)
		return "", nil
	}
	if waitErr != nil {
		mu.Lock()
		tail := strings.TrimSpace(string(stderrTail))
		mu.Unlock()
		notes := "Task: " + truncate(item.Task, 500) + "\n\nAgent exited with error: " + waitErr.Error()
		if tail != "" {
			notes += "\n\nStderr:\n" + truncate(tail, 1000)
		}
		reportFailure(tc, "Agent exited with error: "+waitErr.Error(), notes)
		return "", nil
	}

	result := readScratchResult(item)
	if result == "" {
		result = strings.TrimSpace(streamResult)
	}
	if result == "" {
		reportFailure(tc, "Worker completed but produced no result.",
			"Task: "+truncate(item.Task, 500)+"\n\nThe agent exited cleanly without writing "+agentResultFile+".")
		return "", nil
	}

	if err := completeWithResult(tc, result); err != nil {
		tc.Logger.Log("executor: complete %s: %v", item.ID, err)
	}
	return result, nil
}

// readScratchResult returns the trimmed contents of the item's _result.md,
// or "" when the agent never wrote one.
func readScratchResult(item *models.WorkItem) string {
	data, err := os.ReadFile(filepath.Join(scratchDir(item), agentResultFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// forwardEvents translates the agent's stream-json lines into run events and
// returns the final result text, if the stream carried one. Unparseable
// lines are logged and skipped.
func (e *AgentCLIExecutor) forwardEvents(tc *tool.Context, stdout io.Reader) string {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var result string
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev cliEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			tc.Logger.Log("executor: unparseable agent event: %.120s", line)
			continue
		}

		switch ev.Type {
		case "assistant":
			for _, block := range ev.Message.Content {
				switch block.Type {
				case "text":
					if strings.TrimSpace(block.Text) != "" {
						tc.Emit("worker.message", map[string]any{
							"worker_name": tc.Worker.Name,
							"item_id":     tc.Item.ID,
							"text":        truncate(block.Text, 300),
						})
					}
				case "tool_use":
					tc.Emit("tool.called", map[string]any{
						"tool":        "cc:" + block.Name,
						"worker_name": tc.Worker.Name,
						"item_id":     tc.Item.ID,
					})
				}
			}
		case "result":
			result = ev.Result
		}
	}
	return result
}
