package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/versolabs/verso/internal/llm"
)

// Registry holds the tools exposed to the model for a deployment.
// Registration happens at startup; lookups afterward are read-only,
// so no locking is needed.
type Registry struct {
	tools  map[string]Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{tools: make(map[string]Tool), logger: logger}
}

// Register adds a tool. Registering a duplicate name is a programming
// error and fails.
func (r *Registry) Register(t Tool) error {
	name := t.Definition().Name
	if name == "" {
		return fmt.Errorf("tool has empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Definitions returns the declarations for all registered tools, sorted by
// name for deterministic request bodies.
func (r *Registry) Definitions() []llm.ToolDefinition {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute runs a named tool and always returns a structured result.
// A missing tool or a failing execution becomes a {"success": false}
// payload for the model to react to; tool failures never abort the
// conversation turn.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) map[string]any {
	t, ok := r.tools[name]
	if !ok {
		r.logger.Warn("model requested unknown tool", "tool", name)
		return map[string]any{
			"success": false,
			"error":   fmt.Sprintf("unknown tool: %s", name),
		}
	}

	result, err := t.Execute(ctx, args)
	if err != nil {
		r.logger.Warn("tool execution failed", "tool", name, "error", err)
		return map[string]any{
			"success": false,
			"error":   err.Error(),
		}
	}
	if result == nil {
		result = map[string]any{"success": true}
	}
	return result
}

// Len reports the number of registered tools.
func (r *Registry) Len() int { return len(r.tools) }
