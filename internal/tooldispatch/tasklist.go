package tooldispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/internal/observability"
)

// Task is one item on a conversation's task list.
type Task struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// TaskListStore holds a per-conversation task list. Scoping by conversation
// id keeps the list alive across the turns of one conversation without
// leaking state between unrelated conversations, mirroring the Conversation
// scoping the Turn Processor already uses for the message transcript.
type TaskListStore struct {
	mu    sync.Mutex
	lists map[string][]Task
	next  map[string]int
}

// NewTaskListStore constructs an empty store.
func NewTaskListStore() *TaskListStore {
	return &TaskListStore{lists: make(map[string][]Task), next: make(map[string]int)}
}

func (s *TaskListStore) add(conversationID, title string) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[conversationID]++
	task := Task{ID: s.next[conversationID], Title: title}
	s.lists[conversationID] = append(s.lists[conversationID], task)
	return task
}

func (s *TaskListStore) complete(conversationID string, id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, task := range s.lists[conversationID] {
		if task.ID == id {
			s.lists[conversationID][i].Completed = true
			return true
		}
	}
	return false
}

func (s *TaskListStore) list(conversationID string) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Task(nil), s.lists[conversationID]...)
}

// TaskListTool is the task_list built-in system tool: an intrinsic,
// no-external-dependency bit of engine state the agent can use to track
// its own multi-step plan within a conversation, grounded on the
// ToolResult/Artifact shape in internal/agent/provider_types.go.
type TaskListTool struct {
	store *TaskListStore
}

// NewTaskListTool constructs a task_list tool over store.
func NewTaskListTool(store *TaskListStore) *TaskListTool {
	return &TaskListTool{store: store}
}

func (t *TaskListTool) Name() string { return "task_list" }

func (t *TaskListTool) Description() string {
	return "Manage a per-conversation task list: add, complete, or list tasks."
}

func (t *TaskListTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"add", "complete", "list"},
				"description": "Operation to perform.",
			},
			"title": map[string]any{
				"type":        "string",
				"description": "Task title (required for action=add).",
			},
			"id": map[string]any{
				"type":        "integer",
				"description": "Task id (required for action=complete).",
			},
		},
		"required": []string{"action"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *TaskListTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Action string `json:"action"`
		Title  string `json:"title"`
		ID     int    `json:"id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}

	conversationID := observability.GetConversationID(ctx)

	switch input.Action {
	case "add":
		if input.Title == "" {
			return &agent.ToolResult{Content: "title is required for action=add", IsError: true}, nil
		}
		task := t.store.add(conversationID, input.Title)
		return t.encode(task)
	case "complete":
		if input.ID == 0 {
			return &agent.ToolResult{Content: "id is required for action=complete", IsError: true}, nil
		}
		if !t.store.complete(conversationID, input.ID) {
			return &agent.ToolResult{Content: fmt.Sprintf("no task with id %d", input.ID), IsError: true}, nil
		}
		return t.encode(map[string]any{"id": input.ID, "completed": true})
	case "list":
		return t.encode(t.store.list(conversationID))
	default:
		return &agent.ToolResult{Content: fmt.Sprintf("unknown action %q", input.Action), IsError: true}, nil
	}
}

func (t *TaskListTool) encode(v any) (*agent.ToolResult, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("encode result: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}
