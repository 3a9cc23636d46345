package chat

import (
	"context"
	"strings"
	"time"

	"github.com/versolabs/verso/internal/llm"
)

const (
	titleTimeout  = 5 * time.Second
	titleMaxRunes = 80
)

const titleInstruction = `Generate a short title (at most six words) summarizing the user's message. Respond with the title only: no quotes, no punctuation at the end.`

// spawnTitleGeneration derives a conversation title from the first message
// in the background. Best effort: failures are logged and the conversation
// simply keeps an empty title. The caller has already added the goroutine
// to the orchestrator's wait group.
func (o *Orchestrator) spawnTitleGeneration(owner, conversationID, message string, client llm.Client, cfg llm.EffectiveConfig) {
	go func() {
		defer o.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
		defer cancel()

		p := llm.Prompt{
			SystemInstruction: titleInstruction,
			Contents: []llm.Content{
				{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart(message)}},
			},
		}

		// Titles never need sampling creativity or thinking budget.
		titleCfg := cfg
		titleCfg.Thinking = nil
		titleCfg.ContextCacheRef = ""

		var title string
		for ev := range client.StreamGenerate(ctx, p, "", titleCfg, nil) {
			switch ev.Kind {
			case llm.EventResult:
				title = ev.Result.Answer
			case llm.EventError:
				o.cfg.Logger.Debug("title generation failed", "conversation_id", conversationID, "error", ev.Err)
				return
			}
		}

		title = truncateTitle(title)
		if title == "" {
			return
		}
		if err := o.cfg.Store.UpdateTitle(ctx, conversationID, owner, title); err != nil {
			o.cfg.Logger.Debug("saving generated title", "conversation_id", conversationID, "error", err)
		}
	}()
}

// truncateTitle normalizes to a single trimmed line of at most
// titleMaxRunes runes, cutting on rune boundaries.
func truncateTitle(title string) string {
	title = strings.TrimSpace(title)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	title = strings.Trim(title, `"'`)

	runes := []rune(title)
	if len(runes) > titleMaxRunes {
		title = string(runes[:titleMaxRunes])
	}
	return title
}
