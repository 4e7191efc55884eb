package tooldispatch

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/loomrun/loom/internal/observability"
)

func TestTaskListAddCompleteListRoundTrip(t *testing.T) {
	store := NewTaskListStore()
	tool := NewTaskListTool(store)
	ctx := observability.AddConversationID(context.Background(), "conv-1")

	addParams, _ := json.Marshal(map[string]any{"action": "add", "title": "write tests"})
	result, err := tool.Execute(ctx, addParams)
	if err != nil || result.IsError {
		t.Fatalf("add failed: err=%v result=%+v", err, result)
	}
	if !strings.Contains(result.Content, "write tests") {
		t.Fatalf("expected task title in response, got %s", result.Content)
	}

	listParams, _ := json.Marshal(map[string]any{"action": "list"})
	result, err = tool.Execute(ctx, listParams)
	if err != nil || result.IsError {
		t.Fatalf("list failed: err=%v result=%+v", err, result)
	}
	if !strings.Contains(result.Content, "write tests") {
		t.Fatalf("expected task in list, got %s", result.Content)
	}

	completeParams, _ := json.Marshal(map[string]any{"action": "complete", "id": 1})
	result, err = tool.Execute(ctx, completeParams)
	if err != nil || result.IsError {
		t.Fatalf("complete failed: err=%v result=%+v", err, result)
	}

	result, err = tool.Execute(ctx, listParams)
	if err != nil || result.IsError {
		t.Fatalf("re-list failed: err=%v result=%+v", err, result)
	}
	if !strings.Contains(result.Content, `"completed": true`) {
		t.Fatalf("expected completed task, got %s", result.Content)
	}
}

func TestTaskListIsolatedPerConversation(t *testing.T) {
	store := NewTaskListStore()
	tool := NewTaskListTool(store)

	addParams, _ := json.Marshal(map[string]any{"action": "add", "title": "conv-1 task"})
	ctx1 := observability.AddConversationID(context.Background(), "conv-1")
	if _, err := tool.Execute(ctx1, addParams); err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx2 := observability.AddConversationID(context.Background(), "conv-2")
	listParams, _ := json.Marshal(map[string]any{"action": "list"})
	result, err := tool.Execute(ctx2, listParams)
	if err != nil || result.IsError {
		t.Fatalf("list conv-2: err=%v result=%+v", err, result)
	}
	if strings.Contains(result.Content, "conv-1 task") {
		t.Fatalf("expected conv-2's list to be empty, got %s", result.Content)
	}
}

func TestTaskListCompleteUnknownIDFails(t *testing.T) {
	store := NewTaskListStore()
	tool := NewTaskListTool(store)
	ctx := observability.AddConversationID(context.Background(), "conv-1")

	params, _ := json.Marshal(map[string]any{"action": "complete", "id": 99})
	result, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for unknown task id")
	}
}
