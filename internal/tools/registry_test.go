package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/versolabs/verso/internal/log"
)

type echoArgs struct {
	Message string `json:"message"`
}

func newEchoTool(t *testing.T) Tool {
	t.Helper()
	tool, err := NewTool("echo", "Echo the message back.",
		func(_ context.Context, in echoArgs) (map[string]any, error) {
			return map[string]any{"success": true, "echo": in.Message}, nil
		})
	if err != nil {
		t.Fatalf("NewTool() error = %v", err)
	}
	return tool
}

func TestNewToolSchema(t *testing.T) {
	t.Parallel()

	tool := newEchoTool(t)
	def := tool.Definition()

	if def.Name != "echo" {
		t.Errorf("Name = %q, want echo", def.Name)
	}
	if def.InputSchema == nil {
		t.Fatal("InputSchema is nil")
	}
	props, ok := def.InputSchema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no properties map: %v", def.InputSchema)
	}
	if _, ok := props["message"]; !ok {
		t.Errorf("schema properties missing message: %v", props)
	}
}

func TestRegistryRegister(t *testing.T) {
	t.Parallel()

	r := NewRegistry(log.NewNop())
	if err := r.Register(newEchoTool(t)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(newEchoTool(t)); err == nil {
		t.Error("Register() duplicate: want error, got nil")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistryExecute(t *testing.T) {
	t.Parallel()

	r := NewRegistry(log.NewNop())
	if err := r.Register(newEchoTool(t)); err != nil {
		t.Fatal(err)
	}
	failing, err := NewTool("broken", "Always fails.",
		func(context.Context, echoArgs) (map[string]any, error) {
			return nil, errors.New("boom")
		})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Register(failing); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		tool        string
		args        map[string]any
		wantSuccess bool
	}{
		{"happy path", "echo", map[string]any{"message": "hi"}, true},
		{"unknown tool reports failure", "missing", nil, false},
		{"failing tool reports failure", "broken", map[string]any{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := r.Execute(context.Background(), tt.tool, tt.args)
			success, _ := got["success"].(bool)
			if success != tt.wantSuccess {
				t.Errorf("Execute() = %v, want success=%v", got, tt.wantSuccess)
			}
			if !tt.wantSuccess {
				if _, ok := got["error"]; !ok {
					t.Errorf("failure result missing error field: %v", got)
				}
			}
		})
	}
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	t.Parallel()

	r := NewRegistry(log.NewNop())
	zTool, _ := NewTool("zeta", "z", func(context.Context, echoArgs) (map[string]any, error) { return nil, nil })
	aTool, _ := NewTool("alpha", "a", func(context.Context, echoArgs) (map[string]any, error) { return nil, nil })
	for _, tool := range []Tool{zTool, aTool} {
		if err := r.Register(tool); err != nil {
			t.Fatal(err)
		}
	}

	defs := r.Definitions()
	if len(defs) != 2 || defs[0].Name != "alpha" || defs[1].Name != "zeta" {
		t.Errorf("Definitions() order = %v, want alpha then zeta", defs)
	}
}
