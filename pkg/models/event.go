package models

import "time"

// StreamEventType identifies the kind of stream event.
type StreamEventType string

const (
	// EventChatCreated is emitted once at the start of a run that created
	// a new chat, carrying the chat metadata.
	EventChatCreated StreamEventType = "chat.created"
	// EventTextDelta carries incremental assistant text.
	EventTextDelta StreamEventType = "text.delta"
	// EventThinkingDelta carries incremental reasoning text.
	EventThinkingDelta StreamEventType = "thinking.delta"
	// EventToolCall is emitted when the model requests a tool.
	EventToolCall StreamEventType = "tool.call"
	// EventToolResult is emitted when a tool execution completes.
	EventToolResult StreamEventType = "tool.result"
	// EventDone is the terminal event of a successful run.
	EventDone StreamEventType = "done"
	// EventError is the terminal event of a failed run.
	EventError StreamEventType = "error"
)

// StreamEvent is the unified event model for a streaming run. Events
// arrive in order; exactly one of Done or Error terminates the stream.
type StreamEvent struct {
	Type StreamEventType `json:"type"`
	Time time.Time       `json:"time"`

	// Text is the delta for text.delta and thinking.delta events.
	Text string `json:"text,omitempty"`

	// Chat is set on chat.created events.
	Chat *Chat `json:"chat,omitempty"`

	// ToolCall is set on tool.call events.
	ToolCall *ToolCall `json:"tool_call,omitempty"`
	// ToolResult is set on tool.result events.
	ToolResult *ToolResult `json:"tool_result,omitempty"`

	// Message is the finalized assistant message, set on done events.
	Message *Message `json:"message,omitempty"`
	// StopReason is set on done events.
	StopReason StopReason `json:"stop_reason,omitempty"`
	// Usage is set on done events when usage retrieval succeeded.
	Usage *Usage `json:"usage,omitempty"`

	// Err is set on error events. Runtime only, not serialized.
	Err error `json:"-"`
	// ErrorMessage is the serializable form of Err.
	ErrorMessage string `json:"error,omitempty"`
}

// Terminal reports whether the event closes the stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
