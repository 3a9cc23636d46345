package llm

// EventKind tags a StreamEvent variant.
type EventKind string

// Stream event kinds. A stream for one call is a finite sequence that
// terminates in exactly one of EventResult or EventError, and the terminal
// event is always last.
const (
	EventStatus        EventKind = "status"
	EventDelta         EventKind = "delta"
	EventThinkingDelta EventKind = "thinking_delta"
	EventFunctionCall  EventKind = "function_call"
	EventUsage         EventKind = "usage"
	EventSafetyRating  EventKind = "safety_rating"
	EventError         EventKind = "error"
	EventResult        EventKind = "result"
)

// Status describes a pipeline progress update.
type Status struct {
	Message string `json:"message"`
	Step    string `json:"step"`
}

// StreamEvent is the tagged union flowing from provider clients through the
// orchestrator to the caller. Exactly the field matching Kind is set.
type StreamEvent struct {
	Kind EventKind

	Status        *Status
	Delta         string
	ThinkingDelta string
	FunctionCall  *FunctionCall
	Usage         *Usage
	Safety        *SafetyRating
	Err           *ProviderError
	Result        *Result
}

// Terminal reports whether the event ends its stream.
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventResult || e.Kind == EventError
}

// StatusEvent builds a status event.
func StatusEvent(message, step string) StreamEvent {
	return StreamEvent{Kind: EventStatus, Status: &Status{Message: message, Step: step}}
}

// DeltaEvent builds an answer text delta event.
func DeltaEvent(text string) StreamEvent {
	return StreamEvent{Kind: EventDelta, Delta: text}
}

// ThinkingDeltaEvent builds a reasoning text delta event.
func ThinkingDeltaEvent(text string) StreamEvent {
	return StreamEvent{Kind: EventThinkingDelta, ThinkingDelta: text}
}

// FunctionCallEvent builds a tool invocation request event.
func FunctionCallEvent(call FunctionCall) StreamEvent {
	return StreamEvent{Kind: EventFunctionCall, FunctionCall: &call}
}

// UsageEvent builds a token usage event.
func UsageEvent(u Usage) StreamEvent {
	return StreamEvent{Kind: EventUsage, Usage: &u}
}

// SafetyEvent builds a safety rating event.
func SafetyEvent(r SafetyRating) StreamEvent {
	return StreamEvent{Kind: EventSafetyRating, Safety: &r}
}

// ErrorEvent builds the terminal error event.
func ErrorEvent(err *ProviderError) StreamEvent {
	return StreamEvent{Kind: EventError, Err: err}
}

// ResultEvent builds the terminal result event.
func ResultEvent(r Result) StreamEvent {
	return StreamEvent{Kind: EventResult, Result: &r}
}
