package conversation_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/versolabs/verso/internal/conversation"
	"github.com/versolabs/verso/internal/crypto"
	"github.com/versolabs/verso/internal/llm"
	"github.com/versolabs/verso/internal/log"
	"github.com/versolabs/verso/internal/testutil"
	"github.com/versolabs/verso/internal/tools"
)

func newTestStore(t *testing.T) *conversation.Store {
	t.Helper()
	pool := testutil.StartPostgres(t)
	cipher, err := crypto.New("integration test passphrase")
	if err != nil {
		t.Fatal(err)
	}
	return conversation.NewStore(pool, cipher, log.NewNop())
}

func TestConversationLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "alice", "first chat")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if conv.Status != conversation.StatusActive {
		t.Errorf("Status = %v, want ACTIVE", conv.Status)
	}

	got, err := store.Conversation(ctx, conv.ID, "alice")
	if err != nil {
		t.Fatalf("Conversation() error = %v", err)
	}
	if got.Title != "first chat" {
		t.Errorf("Title = %q", got.Title)
	}

	if _, err := store.Conversation(ctx, conv.ID, "mallory"); !errors.Is(err, conversation.ErrAccessDenied) {
		t.Errorf("foreign owner error = %v, want ErrAccessDenied", err)
	}

	if err := store.UpdateTitle(ctx, conv.ID, "alice", "renamed"); err != nil {
		t.Fatalf("UpdateTitle() error = %v", err)
	}
	if err := store.Archive(ctx, conv.ID, "alice"); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	list, err := store.Conversations(ctx, "alice")
	if err != nil {
		t.Fatalf("Conversations() error = %v", err)
	}
	if len(list) != 1 || list[0].Status != conversation.StatusArchived || list[0].Title != "renamed" {
		t.Errorf("Conversations() = %+v", list)
	}

	if err := store.Delete(ctx, conv.ID, "alice"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Conversation(ctx, conv.ID, "alice"); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("deleted conversation error = %v, want ErrNotFound", err)
	}
	list, err = store.Conversations(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("deleted conversation still listed: %+v", list)
	}
}

func TestSaveMessageSequencing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "alice", "")
	if err != nil {
		t.Fatal(err)
	}

	// Concurrent writers must still produce unique, gapless sequence numbers.
	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.SaveMessage(ctx, conversation.Message{
				ConversationID: conv.ID,
				Role:           llm.RoleUser,
				Parts:          []llm.Part{llm.TextPart("concurrent")},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}

	msgs, err := store.Messages(ctx, conv.ID, "alice")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != writers {
		t.Fatalf("len(msgs) = %d, want %d", len(msgs), writers)
	}
	for i, msg := range msgs {
		if msg.SequenceNumber != i+1 {
			t.Errorf("msgs[%d].SequenceNumber = %d, want %d", i, msg.SequenceNumber, i+1)
		}
	}

	got, err := store.Conversation(ctx, conv.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageCount != writers {
		t.Errorf("MessageCount = %d, want %d", got.MessageCount, writers)
	}
}

func TestMessageRoundTripEncrypted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "alice", "")
	if err != nil {
		t.Fatal(err)
	}

	saved, err := store.SaveMessage(ctx, conversation.Message{
		ConversationID: conv.ID,
		Role:           llm.RoleModel,
		Parts: []llm.Part{
			llm.TextPart("the answer"),
			{FunctionCall: &llm.FunctionCall{Name: "report_risk", Args: map[string]any{"risk_level": "LOW", "category": "OTHER"}}},
		},
		Tokens:   conversation.TokenCounts{PromptTokens: 12, CompletionTokens: 7, TotalTokens: 19},
		Safety:   []llm.SafetyRating{{Category: "HARM_CATEGORY_HARASSMENT", Blocked: false}},
		Metadata: map[string]any{"model": "gemini-2.5-flash"},
	})
	if err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}
	if saved.SequenceNumber != 1 {
		t.Errorf("SequenceNumber = %d, want 1", saved.SequenceNumber)
	}

	msgs, err := store.Messages(ctx, conv.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.Parts[0].Text != "the answer" || msg.Parts[1].FunctionCall == nil {
		t.Errorf("Parts = %+v", msg.Parts)
	}
	if msg.Tokens.TotalTokens != 19 {
		t.Errorf("Tokens = %+v", msg.Tokens)
	}
	if len(msg.Safety) != 1 || msg.Safety[0].Category != "HARM_CATEGORY_HARASSMENT" {
		t.Errorf("Safety = %+v", msg.Safety)
	}
}

func TestCurrentConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.CurrentConversation(ctx, "alice"); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("unset current error = %v, want ErrNotFound", err)
	}

	first, err := store.CreateConversation(ctx, "alice", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.CreateConversation(ctx, "alice", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := store.SetCurrentConversation(ctx, "alice", first.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.SetCurrentConversation(ctx, "alice", second.ID); err != nil {
		t.Fatal(err)
	}

	got, err := store.CurrentConversation(ctx, "alice")
	if err != nil {
		t.Fatalf("CurrentConversation() error = %v", err)
	}
	if got != second.ID {
		t.Errorf("CurrentConversation() = %s, want %s", got, second.ID)
	}
}

func TestRiskAnnotations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "alice", "")
	if err != nil {
		t.Fatal(err)
	}

	recorder := conversation.Recorder{Store: store, ConversationID: conv.ID}
	if err := recorder.RecordRisk(ctx, tools.RiskReport{RiskLevel: "HIGH", Category: "SELF_HARM", Reason: "direct statement"}); err != nil {
		t.Fatalf("RecordRisk() error = %v", err)
	}

	annotations, err := store.RiskAnnotations(ctx, conv.ID, "alice")
	if err != nil {
		t.Fatalf("RiskAnnotations() error = %v", err)
	}
	if len(annotations) != 1 || annotations[0].RiskLevel != "HIGH" || annotations[0].Category != "SELF_HARM" {
		t.Errorf("RiskAnnotations() = %+v", annotations)
	}
}

func TestMemories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveMemory(ctx, "alice", "prefers metric units"); err != nil {
		t.Fatalf("SaveMemory() error = %v", err)
	}
	facts, err := store.Memories(ctx, "alice")
	if err != nil {
		t.Fatalf("Memories() error = %v", err)
	}
	if len(facts) != 1 || facts[0] != "prefers metric units" {
		t.Errorf("Memories() = %v", facts)
	}
}
