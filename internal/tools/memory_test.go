package tools

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/versolabs/verso/internal/log"
)

type capturingMemoryStore struct {
	mu    sync.Mutex
	saved map[string][]string
	err   error
}

func (s *capturingMemoryStore) SaveMemory(_ context.Context, owner, fact string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.saved == nil {
		s.saved = make(map[string][]string)
	}
	s.saved[owner] = append(s.saved[owner], fact)
	return nil
}

func TestMemoryToolOwnerScoping(t *testing.T) {
	t.Parallel()

	store := &capturingMemoryStore{}
	tool, err := NewMemoryTool(store, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	// Each call stores under the owner on its own context, never a
	// process-wide one.
	for _, owner := range []string{"alice", "bob"} {
		ctx := WithOwner(context.Background(), owner)
		result, err := tool.Execute(ctx, map[string]any{"fact": "prefers " + owner + "-style answers"})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if success, _ := result["success"].(bool); !success {
			t.Fatalf("result = %+v", result)
		}
	}

	if got := store.saved["alice"]; len(got) != 1 || got[0] != "prefers alice-style answers" {
		t.Errorf("alice's memories = %v", got)
	}
	if got := store.saved["bob"]; len(got) != 1 || got[0] != "prefers bob-style answers" {
		t.Errorf("bob's memories = %v", got)
	}
	if got := store.saved["default"]; len(got) != 0 {
		t.Errorf("facts misattributed to the default owner: %v", got)
	}
}

func TestMemoryToolWithoutOwner(t *testing.T) {
	t.Parallel()

	store := &capturingMemoryStore{}
	tool, err := NewMemoryTool(store, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	result, err := tool.Execute(context.Background(), map[string]any{"fact": "something"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if success, _ := result["success"].(bool); success {
		t.Errorf("result = %+v, want failure without an owner in scope", result)
	}
	if len(store.saved) != 0 {
		t.Errorf("saved = %v, want nothing", store.saved)
	}
}

func TestMemoryToolStoreFailure(t *testing.T) {
	t.Parallel()

	store := &capturingMemoryStore{err: errors.New("db down")}
	tool, err := NewMemoryTool(store, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithOwner(context.Background(), "alice")
	result, err := tool.Execute(ctx, map[string]any{"fact": "likes tea"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if success, _ := result["success"].(bool); success {
		t.Errorf("result = %+v, want failure reported to the model", result)
	}
}
