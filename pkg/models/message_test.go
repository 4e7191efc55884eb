package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRole_Constants(t *testing.T) {
	tests := []struct {
		constant Role
		expected string
	}{
		{RoleUser, "user"},
		{RoleAssistant, "assistant"},
		{RoleSystem, "system"},
		{RoleTool, "tool"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestChatMessage_JSONRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	original := ChatMessage{
		ID:        "msg-123",
		Role:      RoleAssistant,
		Content:   "Hello!",
		ToolCalls: []ToolCall{{ID: "call_1", Name: "web_search", Arguments: json.RawMessage(`{"q":"test"}`)}},
		CreatedAt: now,
		Pinned:    true,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded ChatMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if decoded.ID != original.ID {
		t.Errorf("ID = %q, want %q", decoded.ID, original.ID)
	}
	if decoded.Role != original.Role {
		t.Errorf("Role = %v, want %v", decoded.Role, original.Role)
	}
	if len(decoded.ToolCalls) != 1 {
		t.Fatalf("ToolCalls length = %d, want 1", len(decoded.ToolCalls))
	}
	if decoded.ToolCalls[0].Name != "web_search" {
		t.Errorf("ToolCalls[0].Name = %q, want %q", decoded.ToolCalls[0].Name, "web_search")
	}
	if !decoded.Pinned {
		t.Error("Pinned should round-trip as true")
	}
}

func TestToolResult_Render(t *testing.T) {
	success := NewToolSuccess("call_1", "42", nil)
	if success.Render() != "42" {
		t.Errorf("Render() = %q, want %q", success.Render(), "42")
	}

	failure := NewToolFailure("call_2", "division by zero", nil)
	if failure.Render() != "division by zero" {
		t.Errorf("Render() = %q, want %q", failure.Render(), "division by zero")
	}

	empty := ToolResult{ToolCallID: "call_3", Success: false}
	if empty.Render() != "tool execution failed" {
		t.Errorf("Render() = %q, want fallback message", empty.Render())
	}
}

func TestTokenUsage_Total(t *testing.T) {
	u := TokenUsage{InputTokens: 100, OutputTokens: 50}
	if u.Total() != 150 {
		t.Errorf("Total() = %d, want 150", u.Total())
	}
}

func TestConversationStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status ConversationStatus
		want   bool
	}{
		{StatusActive, false},
		{StatusActiveProcessing, false},
		{StatusPaused, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestConversationStatus_ClientStatus(t *testing.T) {
	tests := []struct {
		status ConversationStatus
		want   string
	}{
		{StatusActive, "processing"},
		{StatusActiveProcessing, "processing"},
		{StatusPaused, "waiting_for_tool"},
		{StatusCompleted, "completed"},
		{StatusFailed, "failed"},
		{StatusCancelled, "cancelled"},
	}

	for _, tt := range tests {
		if got := tt.status.ClientStatus(); got != tt.want {
			t.Errorf("%s.ClientStatus() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestConversation_LastAssistantMessage(t *testing.T) {
	c := &Conversation{
		Messages: []ChatMessage{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "first reply"},
			{Role: RoleTool, Content: "tool output"},
			{Role: RoleAssistant, Content: "second reply"},
		},
	}

	msg, ok := c.LastAssistantMessage()
	if !ok {
		t.Fatal("expected an assistant message")
	}
	if msg.Content != "second reply" {
		t.Errorf("Content = %q, want %q", msg.Content, "second reply")
	}
}

func TestConversation_LastAssistantMessage_None(t *testing.T) {
	c := &Conversation{Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}}}
	if _, ok := c.LastAssistantMessage(); ok {
		t.Error("expected no assistant message")
	}
}

func TestAgent_Struct(t *testing.T) {
	now := time.Now()
	agent := Agent{
		ID:              "agent-123",
		Name:            "Test Agent",
		AIBackend:       "anthropic",
		ModelConfig:     ModelConfig{Model: "claude-sonnet-4", MaxTokens: 4096},
		ContextStrategy: ContextStrategyTokenBudget,
		MaxTurns:        25,
		SystemPrompts:   []SystemPromptRef{{Name: "base", Template: "You are {{name}}."}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if agent.AIBackend != "anthropic" {
		t.Errorf("AIBackend = %q, want %q", agent.AIBackend, "anthropic")
	}
	if len(agent.SystemPrompts) != 1 {
		t.Errorf("SystemPrompts length = %d, want 1", len(agent.SystemPrompts))
	}
}
