package models

import "encoding/json"

// ToolDef is the canonical tool definition. Provider adapters translate it
// into vendor-specific tool-calling payloads; every field here must survive
// that round trip.
type ToolDef struct {
	// Name is the unique tool name.
	Name string `json:"name"`
	// Description is the short schema-level description.
	Description string `json:"description"`
	// Parameters is the JSON Schema for the tool's arguments.
	Parameters map[string]any `json:"parameters"`
	// Guidance is longer free-text usage advice injected into prompts.
	Guidance string `json:"guidance,omitempty"`
	// CoordinatorOnly marks tools whose schema is offered only to the
	// coordinator. Dispatch does not re-check this flag.
	CoordinatorOnly bool `json:"coordinator_only,omitempty"`
}

// ToolCall is one tool invocation requested by the reasoning backend.
type ToolCall struct {
	// ID correlates the call with its result in the conversation.
	ID string `json:"id"`
	// Name is the tool to invoke.
	Name string `json:"name"`
	// Args holds the named arguments.
	Args map[string]any `json:"args"`
}

// TokenUsage reports token consumption for one backend call.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// ModelResponse is the normalized result of one reasoning backend call.
// It is the single boundary the coordinator and executors depend on; any
// backend adapter must produce exactly this shape.
type ModelResponse struct {
	// Text is the free-text portion of the response, if any.
	Text string `json:"text,omitempty"`
	// ToolCalls lists the tool invocations the model requested.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// Usage reports token consumption.
	Usage TokenUsage `json:"usage"`
	// Raw preserves the provider payload for debugging.
	Raw json.RawMessage `json:"-"`
	// ContentBlocks preserves raw provider content blocks when they must be
	// replayed verbatim on the next turn (e.g. server-side search results).
	ContentBlocks []json.RawMessage `json:"-"`
}

// Empty returns true when the response carries neither text nor tool calls.
// Executors treat an empty response as a stall.
func (r *ModelResponse) Empty() bool {
	return r.Text == "" && len(r.ToolCalls) == 0
}
