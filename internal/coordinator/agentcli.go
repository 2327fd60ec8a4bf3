package coordinator

import (
	"bufio"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/conclave-ai/conclave/internal/provider"
)

// cliEvent is one stream-json line from the coordinator's agent subprocess.
type cliEvent struct {
	Type      string `json:"type"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
	Message   struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
			Name string `json:"name"`
		} `json:"content"`
	} `json:"message"`
}

// runAgentCLI delegates the whole coordination to an external coding agent.
// The agent owns its own tool dispatch; this side only streams its events
// into the run's event vocabulary and conversation log.
func (c *Coordinator) runAgentCLI(ctx context.Context) {
	_, model := provider.ParseModelSpec(c.cfg.Model)
	c.base.Logger.Log("coordinator: delegating to agent subprocess (model=%s)", model)

	args := []string{
		"--output-format", "stream-json",
		"--print",
		"--verbose",
	}
	if model != "" && model != c.cfg.Model {
		args = append(args, "--model", model)
	}
	args = append(args,
		"--append-system-prompt", c.systemPrompt(),
		"-p", "Your goal:\n\n"+c.cfg.Goal,
	)

	cmd := exec.CommandContext(ctx, c.cfg.AgentCLICommand, args...)
	cmd.Dir = c.base.RunDir

	stdout, err := cmd.StdoutPipe()
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		c.base.Logger.Log("coordinator: agent subprocess failed to start: %v", err)
		c.base.Emit("tool.error", map[string]any{"error": err.Error(), "source": "agent_cli"})
		c.setFinished()
		c.base.Emit("run.finished", map[string]any{"status": string(c.Status())})
		return
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev cliEvent
		if jerr := json.Unmarshal(line, &ev); jerr != nil {
			c.base.Logger.Log("coordinator: unparseable agent event: %.120s", line)
			continue
		}

		switch ev.Type {
		case "system":
			c.base.Emit("agent_cli.init", map[string]any{
				"session_id": ev.SessionID,
				"model":      ev.Model,
			})
		case "assistant":
			for _, block := range ev.Message.Content {
				switch block.Type {
				case "text":
					if strings.TrimSpace(block.Text) != "" {
						c.base.Logger.Log("coordinator(agent): %.200s", block.Text)
						c.conv.Append("coordinator", block.Text)
					}
				case "tool_use":
					c.base.Emit("tool.called", map[string]any{
						"tool":   "cc:" + block.Name,
						"source": "coordinator",
					})
				}
			}
		case "result":
			c.base.Emit("agent_cli.result", map[string]any{
				"result":   excerpt(ev.Result, 500),
				"is_error": ev.IsError,
			})
			if ev.Result != "" {
				c.conv.Append("coordinator", "[Result] "+ev.Result)
			}
		}
	}

	if werr := cmd.Wait(); werr != nil && ctx.Err() == nil {
		c.base.Logger.Log("coordinator: agent subprocess exited with error: %v", werr)
		c.base.Emit("tool.error", map[string]any{"error": werr.Error(), "source": "agent_cli"})
	}

	c.setFinished()
	c.base.Emit("run.finished", map[string]any{"status": string(c.Status())})
}
