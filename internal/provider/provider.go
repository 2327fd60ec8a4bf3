// Package provider normalizes reasoning backends behind a single interface.
// The coordinator and executors speak only ModelResponse and Turn; each
// adapter owns the translation to its vendor's wire format.
package provider

import (
	"context"
	"strings"

	"github.com/conclave-ai/conclave/pkg/models"
)

// Turn is one conversation entry in the normalized format.
type Turn struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Text is the free-text content.
	Text string `json:"text,omitempty"`
	// ToolCalls carries the tool invocations of an assistant turn.
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`
	// ToolResults carries tool results in a user turn. Providers that
	// require results to immediately follow their calls rely on the caller
	// keeping these adjacent.
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ToolResult is the outcome of one dispatched tool call.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Request is one backend invocation.
type Request struct {
	System    string
	Turns     []Turn
	Tools     []models.ToolDef
	MaxTokens int64
}

// Provider is a reasoning backend.
type Provider interface {
	// Name identifies the backend ("anthropic").
	Name() string
	// Generate performs one model call and returns the normalized response.
	Generate(ctx context.Context, req Request) (*models.ModelResponse, error)
}

// UserTurn builds a plain user text turn.
func UserTurn(text string) Turn {
	return Turn{Role: "user", Text: text}
}

// AssistantTurn builds an assistant turn from a model response.
func AssistantTurn(resp *models.ModelResponse) Turn {
	return Turn{Role: "assistant", Text: resp.Text, ToolCalls: resp.ToolCalls}
}

// ResultsTurn builds the user turn carrying tool results.
func ResultsTurn(results []ToolResult) Turn {
	return Turn{Role: "user", ToolResults: results}
}

// ToolGuidance assembles the per-tool usage guide appended to system prompts.
func ToolGuidance(tools []models.ToolDef) string {
	var b strings.Builder
	b.WriteString("## Tool Usage Guide\n")
	for _, t := range tools {
		if t.Guidance == "" {
			continue
		}
		b.WriteString("\n### " + t.Name + "\n" + t.Guidance + "\n")
	}
	return b.String()
}
