package prompt

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/versolabs/verso/internal/llm"
)

type staticContexts struct {
	prompts map[string]string
}

func (s *staticContexts) SystemPrompt(key string) string { return s.prompts[key] }

func (s *staticContexts) InitialContext() []llm.Content { return nil }

func fixedClock() time.Time {
	return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
}

func TestSystemInstruction(t *testing.T) {
	t.Parallel()

	contexts := &staticContexts{prompts: map[string]string{
		"support": "You are a support agent.",
	}}
	b := New(contexts, nil, WithClock(fixedClock))

	t.Run("known persona", func(t *testing.T) {
		t.Parallel()
		got := b.SystemInstruction("support")
		if got != "You are a support agent." {
			t.Errorf("SystemInstruction() = %q, want persona text", got)
		}
	})

	t.Run("unknown persona falls back to default", func(t *testing.T) {
		t.Parallel()
		got := b.SystemInstruction("nonexistent")
		if got == "" {
			t.Fatal("SystemInstruction() returned empty string")
		}
		want := "2025-03-14 09:30 UTC"
		if !strings.Contains(got, want) {
			t.Errorf("SystemInstruction() = %q, want date %q interpolated", got, want)
		}
	})

	t.Run("empty persona uses default", func(t *testing.T) {
		t.Parallel()
		if got := b.SystemInstruction(""); got == "" {
			t.Error("SystemInstruction(\"\") returned empty string")
		}
	})
}

func TestSanitizeHistory(t *testing.T) {
	t.Parallel()

	b := New(nil, nil, WithClock(fixedClock))

	call := llm.Part{FunctionCall: &llm.FunctionCall{Name: "report_risk", Args: map[string]any{"risk_level": "LOW"}}}
	resp := llm.Part{FunctionResponse: &llm.FunctionResponse{Name: "report_risk", Result: map[string]any{"success": true}}}

	tests := []struct {
		name string
		in   []llm.Content
		want []llm.Content
	}{
		{
			name: "passes well-formed history through",
			in: []llm.Content{
				{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("hi")}},
				{Role: llm.RoleModel, Parts: []llm.Part{llm.TextPart("hello")}},
			},
			want: []llm.Content{
				{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("hi")}},
				{Role: llm.RoleModel, Parts: []llm.Part{llm.TextPart("hello")}},
			},
		},
		{
			name: "drops empty parts",
			in: []llm.Content{
				{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart(""), llm.TextPart("kept")}},
			},
			want: []llm.Content{
				{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("kept")}},
			},
		},
		{
			name: "drops entries with no remaining parts",
			in: []llm.Content{
				{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("")}},
				{Role: llm.RoleModel, Parts: nil},
				{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("survivor")}},
			},
			want: []llm.Content{
				{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("survivor")}},
			},
		},
		{
			name: "repairs invalid utf8",
			in: []llm.Content{
				{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("bad\xffbyte")}},
			},
			want: []llm.Content{
				{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("bad�byte")}},
			},
		},
		{
			name: "keeps function call and response parts",
			in: []llm.Content{
				{Role: llm.RoleModel, Parts: []llm.Part{call}},
				{Role: llm.RoleTool, Parts: []llm.Part{resp}},
			},
			want: []llm.Content{
				{Role: llm.RoleModel, Parts: []llm.Part{call}},
				{Role: llm.RoleTool, Parts: []llm.Part{resp}},
			},
		},
		{
			name: "empty history",
			in:   nil,
			want: []llm.Content{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := b.SanitizeHistory(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SanitizeHistory() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSanitizeHistoryIdempotent(t *testing.T) {
	t.Parallel()

	b := New(nil, nil, WithClock(fixedClock))
	in := []llm.Content{
		{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("ok\xfe"), llm.TextPart("")}},
		{Role: llm.RoleModel, Parts: []llm.Part{llm.TextPart("fine")}},
		{Role: llm.RoleUser, Parts: nil},
	}

	once := b.SanitizeHistory(in)
	twice := b.SanitizeHistory(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("sanitize not idempotent:\nonce  = %+v\ntwice = %+v", once, twice)
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	b := New(nil, nil, WithClock(fixedClock))
	history := []llm.Content{
		{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("earlier")}},
		{Role: llm.RoleModel, Parts: []llm.Part{llm.TextPart("reply")}},
	}

	t.Run("stateful appends current message", func(t *testing.T) {
		t.Parallel()
		p := b.Build("", history, "now", false, nil)
		if len(p.Contents) != 3 {
			t.Fatalf("len(Contents) = %d, want 3", len(p.Contents))
		}
		last := p.Contents[2]
		if last.Role != llm.RoleUser || last.Parts[0].Text != "now" {
			t.Errorf("last entry = %+v, want user message %q", last, "now")
		}
		if p.SystemInstruction == "" {
			t.Error("SystemInstruction is empty")
		}
	})

	t.Run("stateless ignores history", func(t *testing.T) {
		t.Parallel()
		p := b.Build("", history, "only this", true, nil)
		if len(p.Contents) != 1 {
			t.Fatalf("len(Contents) = %d, want 1", len(p.Contents))
		}
		if p.Contents[0].Role != llm.RoleUser || p.Contents[0].Parts[0].Text != "only this" {
			t.Errorf("Contents[0] = %+v", p.Contents[0])
		}
	})

	t.Run("tools carried through", func(t *testing.T) {
		t.Parallel()
		tools := []llm.ToolDefinition{{Name: "report_risk"}}
		p := b.Build("", nil, "msg", true, tools)
		if len(p.Tools) != 1 || p.Tools[0].Name != "report_risk" {
			t.Errorf("Tools = %+v", p.Tools)
		}
	})
}
