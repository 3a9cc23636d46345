package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed taxonomy for provider failures. Classification is
// provider-specific (status codes, error body shapes) but the taxonomy is
// shared across all clients.
type ErrorKind string

// Provider error kinds.
const (
	ErrorKindAuthentication     ErrorKind = "authentication"
	ErrorKindQuota              ErrorKind = "quota"
	ErrorKindRateLimit          ErrorKind = "rate_limit"
	ErrorKindServiceUnavailable ErrorKind = "service_unavailable"
	ErrorKindGeneric            ErrorKind = "generic"
)

// UserMessage returns the short, human-readable message for the kind.
// Raw provider error text is never shown to end users.
func (k ErrorKind) UserMessage() string {
	switch k {
	case ErrorKindAuthentication:
		return "Authentication with the AI provider failed. Please re-check the configured credentials."
	case ErrorKindQuota:
		return "The AI provider usage quota has been exhausted. Please wait or upgrade the plan."
	case ErrorKindRateLimit:
		return "Too many requests to the AI provider. Please retry in a moment."
	case ErrorKindServiceUnavailable:
		return "The AI provider is temporarily unavailable. Please retry later."
	default:
		return "The AI provider returned an unexpected error."
	}
}

// ProviderError is a classified provider failure. The wrapped cause keeps the
// original (redacted) detail for logs; Kind drives the user-facing message.
type ProviderError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ProviderError) Unwrap() error { return e.cause }

// NewProviderError builds a classified error with credentials redacted from
// both the message and (the textual form of) the cause. secrets lists values
// that must never appear in propagated text; empty strings are ignored.
func NewProviderError(kind ErrorKind, message string, cause error, secrets ...string) *ProviderError {
	message = Redact(message, secrets...)
	if cause != nil {
		redacted := Redact(cause.Error(), secrets...)
		if redacted != cause.Error() {
			// Replace the cause: its text leaked a secret.
			cause = errors.New(redacted)
		}
	}
	return &ProviderError{Kind: kind, Message: message, cause: cause}
}

// Redact removes each secret from s, replacing it with a fixed marker.
func Redact(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "[REDACTED]")
	}
	return s
}

// ClassifyStatus maps an HTTP status code from a provider API to an
// ErrorKind. Status 0 (no HTTP response, e.g. transport failure) falls
// through to message-based classification.
func ClassifyStatus(status int) (ErrorKind, bool) {
	switch {
	case status == 401 || status == 403:
		return ErrorKindAuthentication, true
	case status == 402:
		return ErrorKindQuota, true
	case status == 429:
		return ErrorKindRateLimit, true
	case status >= 500:
		return ErrorKindServiceUnavailable, true
	case status > 0:
		return ErrorKindGeneric, true
	default:
		return ErrorKindGeneric, false
	}
}

// classifyPatterns groups error substrings by kind, matched case-insensitively.
// Some SDKs do not expose typed errors for transport-level failures, so
// message matching is the documented fallback when no status code exists.
var classifyPatterns = []struct {
	kind     ErrorKind
	patterns []string
}{
	{ErrorKindAuthentication, []string{"api key", "unauthorized", "unauthenticated", "permission denied", "invalid authentication"}},
	{ErrorKindQuota, []string{"quota exceeded", "billing", "insufficient_quota"}},
	{ErrorKindRateLimit, []string{"rate limit", "too many requests", "resource exhausted", "429"}},
	{ErrorKindServiceUnavailable, []string{"unavailable", "overloaded", "timeout", "deadline exceeded", "connection reset", "connection refused", "502", "503", "504"}},
}

// ClassifyError derives an ErrorKind from an error with no usable status
// code. Context cancellation and deadline expiry map to ServiceUnavailable
// (the call was abandoned, not rejected).
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindGeneric
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindServiceUnavailable
	}
	msg := strings.ToLower(err.Error())
	for _, group := range classifyPatterns {
		for _, p := range group.patterns {
			if strings.Contains(msg, p) {
				return group.kind
			}
		}
	}
	return ErrorKindGeneric
}
