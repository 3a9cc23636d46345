package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   ErrorKind
		wantOK bool
	}{
		{401, ErrorKindAuthentication, true},
		{403, ErrorKindAuthentication, true},
		{402, ErrorKindQuota, true},
		{429, ErrorKindRateLimit, true},
		{500, ErrorKindServiceUnavailable, true},
		{503, ErrorKindServiceUnavailable, true},
		{400, ErrorKindGeneric, true},
		{0, ErrorKindGeneric, false},
	}

	for _, tt := range tests {
		got, ok := ClassifyStatus(tt.status)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ClassifyStatus(%d) = %v, %v; want %v, %v", tt.status, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"api key", errors.New("invalid API key provided"), ErrorKindAuthentication},
		{"quota", errors.New("insufficient_quota for this request"), ErrorKindQuota},
		{"rate limit", errors.New("Resource exhausted, slow down"), ErrorKindRateLimit},
		{"overloaded", errors.New("model is overloaded, try again"), ErrorKindServiceUnavailable},
		{"deadline", context.DeadlineExceeded, ErrorKindServiceUnavailable},
		{"wrapped deadline", fmt.Errorf("calling provider: %w", context.DeadlineExceeded), ErrorKindServiceUnavailable},
		{"unknown", errors.New("something odd"), ErrorKindGeneric},
		{"nil", nil, ErrorKindGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestProviderErrorRedaction(t *testing.T) {
	t.Parallel()

	const secret = "sk-verysecret123"
	cause := fmt.Errorf("POST https://api.example.com?key=%s: 401", secret)

	err := NewProviderError(ErrorKindAuthentication, "auth failed with key "+secret, cause, secret)

	if strings.Contains(err.Error(), secret) {
		t.Errorf("Error() leaked the secret: %q", err.Error())
	}
	if !strings.Contains(err.Error(), "[REDACTED]") {
		t.Errorf("Error() missing redaction marker: %q", err.Error())
	}
	if unwrapped := err.Unwrap(); unwrapped != nil && strings.Contains(unwrapped.Error(), secret) {
		t.Errorf("Unwrap() leaked the secret: %q", unwrapped.Error())
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := context.DeadlineExceeded
	err := NewProviderError(ErrorKindServiceUnavailable, "timed out", cause)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is lost the clean cause")
	}
}

func TestUserMessages(t *testing.T) {
	t.Parallel()

	kinds := []ErrorKind{
		ErrorKindAuthentication, ErrorKindQuota, ErrorKindRateLimit,
		ErrorKindServiceUnavailable, ErrorKindGeneric,
	}
	seen := make(map[string]bool)
	for _, kind := range kinds {
		msg := kind.UserMessage()
		if msg == "" {
			t.Errorf("UserMessage(%v) is empty", kind)
		}
		if seen[msg] {
			t.Errorf("UserMessage(%v) duplicates another kind", kind)
		}
		seen[msg] = true
	}
}
