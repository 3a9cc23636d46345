package tools

import (
	"context"
	"log/slog"
	"strings"
)

// MemoryStore persists user facts the model decides are worth keeping.
type MemoryStore interface {
	SaveMemory(ctx context.Context, owner, fact string) error
}

type memoryArgs struct {
	Fact string `json:"fact" jsonschema:"The fact about the user to remember, phrased as a standalone sentence."`
}

const memoryDescription = `Remember a durable fact about the user for future conversations, such as a stated preference or standing context. Use sparingly and only for information the user clearly intends to persist.`

// NewMemoryTool creates the remember_fact tool. Facts are stored under the
// owner the orchestrator attached to the execution context, so one shared
// registry serves every caller without mixing their memories.
func NewMemoryTool(store MemoryStore, logger *slog.Logger) (Tool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return NewTool("remember_fact", memoryDescription,
		func(ctx context.Context, args memoryArgs) (map[string]any, error) {
			fact := strings.TrimSpace(args.Fact)
			if fact == "" {
				return map[string]any{"success": false, "error": "fact is empty"}, nil
			}
			owner := OwnerFromContext(ctx)
			if owner == "" {
				logger.Warn("memory tool invoked without an owner in scope")
				return map[string]any{"success": false, "error": "no user in scope"}, nil
			}
			if err := store.SaveMemory(ctx, owner, fact); err != nil {
				logger.Error("saving memory", "owner", owner, "error", err)
				return map[string]any{"success": false, "error": "could not save"}, nil
			}
			return map[string]any{"success": true}, nil
		})
}
