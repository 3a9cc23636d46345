// Package tools defines the function-calling tool contract and the registry
// the orchestrator executes tool calls against.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/versolabs/verso/internal/llm"
)

// Tool is one callable function exposed to the model.
type Tool interface {
	// Definition returns the declaration advertised to the provider.
	Definition() llm.ToolDefinition

	// Execute runs the tool. The returned map is serialized back to the
	// model verbatim. Errors are reported by the registry, never surfaced
	// to the end user.
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// funcTool adapts a typed handler into a Tool, deriving the input schema
// from the argument struct.
type funcTool[In any] struct {
	def     llm.ToolDefinition
	handler func(ctx context.Context, in In) (map[string]any, error)
}

// NewTool creates a Tool from a typed handler. The JSON schema for the
// input struct is derived via reflection at construction time, so an
// unserializable argument type fails fast.
func NewTool[In any](name, description string, handler func(ctx context.Context, in In) (map[string]any, error)) (Tool, error) {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return nil, fmt.Errorf("deriving schema for tool %s: %w", name, err)
	}
	schemaMap, err := schemaToMap(schema)
	if err != nil {
		return nil, fmt.Errorf("encoding schema for tool %s: %w", name, err)
	}

	return &funcTool[In]{
		def: llm.ToolDefinition{
			Name:        name,
			Description: description,
			InputSchema: schemaMap,
		},
		handler: handler,
	}, nil
}

func (t *funcTool[In]) Definition() llm.ToolDefinition { return t.def }

func (t *funcTool[In]) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding arguments: %w", err)
	}
	var in In
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decoding arguments: %w", err)
	}
	return t.handler(ctx, in)
}

func schemaToMap(s *jsonschema.Schema) (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
