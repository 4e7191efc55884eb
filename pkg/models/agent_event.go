package models

import (
	"encoding/json"
	"time"
)

// EventKind is the discriminator for a streamed conversation Event. Exactly
// ten kinds exist; the Streaming Endpoint never emits anything else.
type EventKind string

const (
	EventConnected     EventKind = "connected"
	EventTextChunk     EventKind = "text_chunk"
	EventToolRequest   EventKind = "tool_request"
	EventToolExecuting EventKind = "tool_executing"
	EventToolCompleted EventKind = "tool_completed"
	EventCompleted     EventKind = "completed"
	EventFailed        EventKind = "failed"
	EventCancelled     EventKind = "cancelled"
	EventError         EventKind = "error"
	EventHeartbeat     EventKind = "heartbeat"
)

// Terminal reports whether an event kind ends a streaming connection.
func (k EventKind) Terminal() bool {
	switch k {
	case EventCompleted, EventFailed, EventCancelled, EventToolRequest:
		return true
	default:
		return false
	}
}

// Event is one item on a Conversation's event queue, delivered to exactly
// one subscriber (competing-consumer semantics).
type Event struct {
	Kind           EventKind       `json:"kind"`
	ConversationID string          `json:"conversation_id"`
	Time           time.Time       `json:"time"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// TextChunkData is the payload for a text_chunk event. Kind distinguishes
// the assistant's visible content from Anthropic-style extended thinking;
// it defaults to "content" when left zero so existing construction sites
// that only set Text are unaffected.
type TextChunkData struct {
	Text string `json:"text"`
	Kind string `json:"kind,omitempty"`
}

// ToolRequestData is the payload for a tool_request event: the single
// client-executable call the conversation is now paused on.
type ToolRequestData struct {
	CallID    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolExecutingData is the payload for a tool_executing event. Summary is a
// short human-readable rendering of the call (e.g. "📖 Reading: main.go")
// for clients that display it directly rather than formatting Name and
// Arguments themselves.
type ToolExecutingData struct {
	CallID    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Summary   string          `json:"summary,omitempty"`
}

// ToolCompletedData is the payload for a tool_completed event.
type ToolCompletedData struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// CompletedData is the payload for a completed event.
type CompletedData struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// FailedData is the payload for a failed event.
type FailedData struct {
	Reason string `json:"reason"`
}

// ErrorData is the payload for a non-terminal error event (e.g. a contained
// tool execution failure reported alongside turn continuation).
type ErrorData struct {
	Message string `json:"message"`
}

// NewEvent constructs an Event, marshaling data into the envelope's Data
// field. A marshal failure here indicates a programming error (data must
// always be one of the *Data structs above), so it panics rather than
// threading an error through every call site.
func NewEvent(conversationID string, kind EventKind, data any) Event {
	ev := Event{Kind: kind, ConversationID: conversationID, Time: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			panic("models: event data not marshalable: " + err.Error())
		}
		ev.Data = raw
	}
	return ev
}
