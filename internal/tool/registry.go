package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/conclave-ai/conclave/internal/metrics"
	"github.com/conclave-ai/conclave/pkg/models"
)

// Impl is a tool implementation. The returned string goes back into the
// conversation; a returned error is converted to an error string by Dispatch,
// never propagated.
type Impl func(ctx context.Context, tc *Context, args map[string]any) (string, error)

type registered struct {
	def    models.ToolDef
	impl   Impl
	schema *jsonschema.Schema
}

// Registry maps tool names to their definitions and implementations. Build
// one per run via NewDefaultRegistry; there is no package-level instance.
type Registry struct {
	tools map[string]*registered
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registered)}
}

// Register adds a tool. The definition's parameter schema is compiled up
// front so Dispatch can validate arguments before invocation.
func (r *Registry) Register(def models.ToolDef, impl Impl) error {
	if def.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("tool %s: %w", def.Name, err)
	}

	r.tools[def.Name] = &registered{def: def, impl: impl, schema: schema}
	r.order = append(r.order, def.Name)
	return nil
}

func compileSchema(def models.ToolDef) (*jsonschema.Schema, error) {
	params := def.Parameters
	if params == nil {
		params = map[string]any{"type": "object"}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal parameter schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	url := "mem://" + def.Name + ".json"
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile parameter schema: %w", err)
	}
	return schema, nil
}

// Dispatch invokes the named tool and always returns a printable result.
// Unknown tools, invalid arguments, panics, and implementation errors all
// become error strings fed back into the conversation; nothing propagates.
func (r *Registry) Dispatch(ctx context.Context, call models.ToolCall, tc *Context) (result string) {
	reg, ok := r.tools[call.Name]
	if !ok {
		metrics.ToolDispatches.WithLabelValues(call.Name, "unknown").Inc()
		return fmt.Sprintf("Error: Unknown tool '%s'", call.Name)
	}

	// Offering filters keep coordinator-only schemas away from workers, but
	// a backend can still name one. Surface it; do not block it.
	if reg.def.CoordinatorOnly && tc.Worker != nil {
		tc.Emit("tool.coordinator_only_bypass", map[string]any{
			"tool":   call.Name,
			"worker": tc.Worker.Name,
		})
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	if err := reg.schema.Validate(toJSONValue(args)); err != nil {
		metrics.ToolDispatches.WithLabelValues(call.Name, "error").Inc()
		return fmt.Sprintf("Error: invalid arguments for %s: %v", call.Name, err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			metrics.ToolDispatches.WithLabelValues(call.Name, "error").Inc()
			result = fmt.Sprintf("Error: tool %s panicked: %v", call.Name, rec)
		}
	}()

	out, err := reg.impl(ctx, tc, args)
	if err != nil {
		metrics.ToolDispatches.WithLabelValues(call.Name, "error").Inc()
		return fmt.Sprintf("Error: %v", err)
	}
	metrics.ToolDispatches.WithLabelValues(call.Name, "success").Inc()
	return out
}

// toJSONValue round-trips args through encoding/json so values that did not
// originate from a JSON decode (ints from tests, typed maps) validate the
// same way decoded payloads do.
func toJSONValue(args map[string]any) any {
	raw, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return args
	}
	return v
}

// Get returns a tool's definition by name.
func (r *Registry) Get(name string) (models.ToolDef, bool) {
	reg, ok := r.tools[name]
	if !ok {
		return models.ToolDef{}, false
	}
	return reg.def, true
}

// CoordinatorTools returns every tool definition, in registration order.
func (r *Registry) CoordinatorTools() []models.ToolDef {
	out := make([]models.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].def)
	}
	return out
}

// WorkerTools returns the definitions offered to workers: everything not
// marked coordinator-only.
func (r *Registry) WorkerTools() []models.ToolDef {
	var out []models.ToolDef
	for _, name := range r.order {
		if def := r.tools[name].def; !def.CoordinatorOnly {
			out = append(out, def)
		}
	}
	return out
}
