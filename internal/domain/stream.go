package domain

// StreamDelta is a single incremental chunk from a streaming LLM response.
// Deltas are the raw provider-side unit; the stream generator converts them
// into wire StreamEvents.
type StreamDelta struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`

	// Err carries a mid-stream failure (already mapped to a sentinel by the
	// adapter). A delta with Err set is terminal.
	Err error `json:"-"`
}

// EventType identifies the kind of stream event sent over the wire.
type EventType string

const (
	EventToken    EventType = "token"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// StreamEvent is the canonical three-variant event delivered to clients.
// A stream is zero or more token events followed by exactly one terminal
// event (complete or error), which is always the last event.
type StreamEvent struct {
	Type EventType `json:"type"`

	// token fields
	Content string `json:"content,omitempty"`

	// complete fields
	Model       string `json:"model,omitempty"`
	TotalTokens int    `json:"totalTokens,omitempty"`

	// error fields
	Error string    `json:"error,omitempty"`
	Code  ErrorCode `json:"code,omitempty"`
}

// Terminal reports whether the event ends a stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// TokenEvent builds a token event carrying an increment of output text.
func TokenEvent(content string) StreamEvent {
	return StreamEvent{Type: EventToken, Content: content}
}

// CompleteEvent builds the successful terminal event.
func CompleteEvent(model string, totalTokens int) StreamEvent {
	return StreamEvent{Type: EventComplete, Model: model, TotalTokens: totalTokens}
}

// ErrorEvent builds the failure terminal event from any error, collapsing it
// to the canonical code via ErrorCodeOf.
func ErrorEvent(err error) StreamEvent {
	return StreamEvent{Type: EventError, Error: err.Error(), Code: ErrorCodeOf(err)}
}
