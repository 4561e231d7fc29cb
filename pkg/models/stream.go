package models

// StreamEventType tags the events published on the per-agent stream bus.
type StreamEventType string

const (
	// StreamEventAssistant is a flushed assistant text node (text or thinking)
	StreamEventAssistant StreamEventType = "assistant"
	// StreamEventToolUse is a completed tool invocation request
	StreamEventToolUse StreamEventType = "tool_use"
	// StreamEventToolResult is the outcome of a tool invocation
	StreamEventToolResult StreamEventType = "tool_result"
	// StreamEventResult is the final frame carrying cost and turn counts
	StreamEventResult StreamEventType = "result"
	// StreamEventError surfaces a run-level failure to subscribers
	StreamEventError StreamEventType = "error"
	// StreamEventEnd terminates every stream
	StreamEventEnd StreamEventType = "stream_end"
)

// StreamEvent is one event on the per-agent stream bus. Exactly the fields
// for the event's type are set; everything else stays at its zero value so
// the wire form remains compact.
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	// assistant
	MessageID string `json:"message_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Thinking  bool   `json:"thinking,omitempty"`

	// tool_use / tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	ToolInput string `json:"tool_input,omitempty"` // accumulated input_json
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// result
	Result      string  `json:"result,omitempty"`
	CostUSD     float64 `json:"cost_usd,omitempty"`
	NumTurns    int     `json:"num_turns,omitempty"`
	SessionID   string  `json:"session_id,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`

	// error
	ErrorType ErrorType `json:"error_type,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// StreamEnd is the sentinel appended to every published stream.
func StreamEnd() StreamEvent {
	return StreamEvent{Type: StreamEventEnd}
}
