package models

import (
	"encoding/json"
	"testing"
)

func TestEventKind_Constants(t *testing.T) {
	tests := []struct {
		constant EventKind
		expected string
	}{
		{EventConnected, "connected"},
		{EventTextChunk, "text_chunk"},
		{EventToolRequest, "tool_request"},
		{EventToolExecuting, "tool_executing"},
		{EventToolCompleted, "tool_completed"},
		{EventCompleted, "completed"},
		{EventFailed, "failed"},
		{EventCancelled, "cancelled"},
		{EventError, "error"},
		{EventHeartbeat, "heartbeat"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestEventKind_Terminal(t *testing.T) {
	tests := []struct {
		kind EventKind
		want bool
	}{
		{EventCompleted, true},
		{EventFailed, true},
		{EventCancelled, true},
		{EventToolRequest, true},
		{EventConnected, false},
		{EventTextChunk, false},
		{EventToolExecuting, false},
		{EventToolCompleted, false},
		{EventError, false},
		{EventHeartbeat, false},
	}

	for _, tt := range tests {
		if got := tt.kind.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestNewEvent_JSONRoundTrip(t *testing.T) {
	ev := NewEvent("conv-1", EventTextChunk, TextChunkData{Text: "hello"})

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if decoded.Kind != EventTextChunk {
		t.Errorf("Kind = %v, want %v", decoded.Kind, EventTextChunk)
	}
	if decoded.ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q, want %q", decoded.ConversationID, "conv-1")
	}

	var payload TextChunkData
	if err := json.Unmarshal(decoded.Data, &payload); err != nil {
		t.Fatalf("payload Unmarshal error: %v", err)
	}
	if payload.Text != "hello" {
		t.Errorf("payload.Text = %q, want %q", payload.Text, "hello")
	}
}

func TestNewEvent_NilData(t *testing.T) {
	ev := NewEvent("conv-1", EventHeartbeat, nil)
	if ev.Data != nil {
		t.Errorf("Data = %s, want nil", ev.Data)
	}
}

func TestToolRequestData_JSONRoundTrip(t *testing.T) {
	ev := NewEvent("conv-1", EventToolRequest, ToolRequestData{
		CallID:    "call_1",
		Name:      "send_email",
		Arguments: json.RawMessage(`{"to":"a@example.com"}`),
	})

	var payload ToolRequestData
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if payload.CallID != "call_1" {
		t.Errorf("CallID = %q, want %q", payload.CallID, "call_1")
	}
	if payload.Name != "send_email" {
		t.Errorf("Name = %q, want %q", payload.Name, "send_email")
	}
}
