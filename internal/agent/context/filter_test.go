package context

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/loomrun/loom/pkg/models"
)

func msg(role models.Role, content string) models.ChatMessage {
	return models.ChatMessage{Role: role, Content: content}
}

func TestApply_Noop_PassesEverythingThrough(t *testing.T) {
	messages := []models.ChatMessage{
		msg(models.RoleSystem, "sys"),
		msg(models.RoleUser, "hi"),
		msg(models.RoleAssistant, "hello"),
	}
	out, err := Apply(context.Background(), Request{Messages: messages, Strategy: StrategyNoop})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if len(out) != len(messages) {
		t.Fatalf("noop dropped messages: got %d, want %d", len(out), len(messages))
	}
}

func TestApply_UnknownStrategy_FailsOpen(t *testing.T) {
	messages := []models.ChatMessage{msg(models.RoleUser, "hi")}
	out, err := Apply(context.Background(), Request{Messages: messages, Strategy: "nonsense"})
	if err == nil {
		t.Fatal("expected a ContextFilterResolutionFailed error")
	}
	if len(out) != len(messages) {
		t.Error("fail-open must return all messages despite the error")
	}
}

func TestApply_SlidingWindow_RetainsSystemPromptRegardless(t *testing.T) {
	messages := []models.ChatMessage{
		msg(models.RoleSystem, "sys"),
		msg(models.RoleUser, "m1"),
		msg(models.RoleAssistant, "m2"),
		msg(models.RoleUser, "m3"),
		msg(models.RoleAssistant, "m4"),
	}
	out, err := Apply(context.Background(), Request{
		Messages: messages,
		Strategy: StrategySlidingWindow,
		Options:  Options{WindowSize: 2},
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if out[0].Role != models.RoleSystem {
		t.Fatalf("P1 violated: system prompt not retained, got %+v", out[0])
	}
	if out[len(out)-1].Content != "m4" {
		t.Errorf("expected the most recent message retained, got %q", out[len(out)-1].Content)
	}
}

func TestApply_PinnedMessageNeverDropped(t *testing.T) {
	pinned := msg(models.RoleUser, "important")
	pinned.Pinned = true
	messages := []models.ChatMessage{
		msg(models.RoleSystem, "sys"),
		pinned,
		msg(models.RoleUser, "m1"),
		msg(models.RoleAssistant, "m2"),
		msg(models.RoleUser, "m3"),
	}
	out, err := Apply(context.Background(), Request{
		Messages: messages,
		Strategy: StrategySlidingWindow,
		Options:  Options{WindowSize: 1},
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	found := false
	for _, m := range out {
		if m.Content == "important" {
			found = true
		}
	}
	if !found {
		t.Error("P2 violated: pinned message was dropped")
	}
}

func TestApply_ToolCallPairsKeptAtomic(t *testing.T) {
	call := models.ToolCall{ID: "call_1", Name: "lookup", Arguments: json.RawMessage(`{}`)}
	messages := []models.ChatMessage{
		msg(models.RoleSystem, "sys"),
		msg(models.RoleUser, "old message 1"),
		msg(models.RoleUser, "old message 2"),
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{call}},
		{Role: models.RoleTool, ToolCallID: "call_1", Content: "result"},
		msg(models.RoleUser, "latest"),
	}
	out, err := Apply(context.Background(), Request{
		Messages: messages,
		Strategy: StrategySlidingWindow,
		Options:  Options{WindowSize: 1},
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	var sawCall, sawResult bool
	for _, m := range out {
		if len(m.ToolCalls) > 0 {
			sawCall = true
		}
		if m.ToolCallID == "call_1" {
			sawResult = true
		}
	}
	if sawCall != sawResult {
		t.Errorf("P3 violated: tool call present=%v, tool result present=%v", sawCall, sawResult)
	}
}

func TestApply_TokenBudget_DropsOldMessagesWhenOverBudget(t *testing.T) {
	var messages []models.ChatMessage
	messages = append(messages, msg(models.RoleSystem, "sys"))
	for i := 0; i < 50; i++ {
		messages = append(messages, msg(models.RoleUser, "a long filler message repeated many times to consume tokens quickly"))
	}
	messages = append(messages, msg(models.RoleUser, "latest"))

	out, err := Apply(context.Background(), Request{
		Messages:        messages,
		ContextLimit:    1000,
		MaxOutputTokens: 100,
		Strategy:        StrategyTokenBudget,
		Options:         Options{BudgetPercentage: 0.8},
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if len(out) >= len(messages) {
		t.Fatalf("expected token_budget to drop at least one message, kept %d of %d", len(out), len(messages))
	}
	if out[0].Role != models.RoleSystem {
		t.Error("P1 violated: system prompt not retained under token_budget")
	}
	if out[len(out)-1].Content != "latest" {
		t.Error("token_budget should always admit the newest message first")
	}
}

func TestShouldFilter_BelowThreshold(t *testing.T) {
	messages := []models.ChatMessage{msg(models.RoleUser, "hi")}
	if ShouldFilter(messages, 0, 0, 100000, 0.8, false) {
		t.Error("should not filter when well under threshold")
	}
}

func TestShouldFilter_Forced(t *testing.T) {
	messages := []models.ChatMessage{msg(models.RoleUser, "hi")}
	if !ShouldFilter(messages, 0, 0, 100000, 0.8, true) {
		t.Error("forced=true must always trigger filtering")
	}
}
