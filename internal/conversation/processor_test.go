package conversation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/internal/agent/providers"
	"github.com/loomrun/loom/internal/eventqueue"
	"github.com/loomrun/loom/internal/storage"
	"github.com/loomrun/loom/internal/tooldispatch"
	"github.com/loomrun/loom/pkg/models"
)

// echoTool is a trivial ServerTool double: it always succeeds, echoing its
// call id back as the result content.
type echoTool struct{}

func (echoTool) Name() string             { return "echo" }
func (echoTool) Description() string      { return "echoes back" }
func (echoTool) Schema() json.RawMessage  { return json.RawMessage(`{}`) }
func (echoTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: "ok"}, nil
}

func newTestProcessor(t *testing.T, driver agent.Driver, registry *tooldispatch.Registry) (*Processor, *storage.MemoryAgentStore, *storage.MemoryConversationStore, *eventqueue.MemoryQueue) {
	t.Helper()
	if registry == nil {
		registry = tooldispatch.NewRegistry()
	}
	agents := storage.NewMemoryAgentStore()
	convs := storage.NewMemoryConversationStore()
	drivers := NewDriverRegistry()
	drivers.Register("fake", driver)
	events := eventqueue.NewMemoryQueue()

	p := &Processor{
		Agents:        agents,
		Conversations: convs,
		Drivers:       drivers,
		Dispatcher:    tooldispatch.New(registry, tooldispatch.DefaultConfig()),
		Events:        events,
		Queue:         NewMemoryTaskQueue(),
	}
	return p, agents, convs, events
}

func baseAgent(maxTurns int) *models.Agent {
	return &models.Agent{
		ID:        "agent-1",
		Name:      "Test Agent",
		AIBackend: "fake",
		MaxTurns:  maxTurns,
		CreatedAt: time.Now(),
	}
}

func baseConversation(agentID string) *models.Conversation {
	return &models.Conversation{
		ID:      "conv-1",
		AgentID: agentID,
		Status:  models.StatusActive,
		Messages: []models.ChatMessage{
			{ID: "m1", Role: models.RoleUser, Content: "hi", CreatedAt: time.Now()},
		},
		LastActivityAt: time.Now(),
		CreatedAt:      time.Now(),
	}
}

// drainEvents pops every already-published event off conversationID's queue
// without blocking for new ones.
func drainEvents(t *testing.T, q *eventqueue.MemoryQueue, conversationID string) []models.Event {
	t.Helper()
	var out []models.Event
	for {
		ev, ok, err := q.Pop(context.Background(), conversationID, time.Millisecond)
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func TestProcessor_CompletesWithNoToolCalls(t *testing.T) {
	driver := providers.NewFake(providers.FakeResponse{Text: "hello there"})
	p, agents, convs, events := newTestProcessor(t, driver, nil)

	agentCfg := baseAgent(10)
	conv := baseConversation(agentCfg.ID)
	if err := agents.Create(context.Background(), agentCfg); err != nil {
		t.Fatalf("Create(agent) error = %v", err)
	}
	if err := convs.Create(context.Background(), conv); err != nil {
		t.Fatalf("Create(conversation) error = %v", err)
	}

	if err := p.Process(context.Background(), conv.ID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	got, err := convs.Get(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
	if got.TurnCount != 1 {
		t.Errorf("TurnCount = %d, want 1", got.TurnCount)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(got.Messages))
	}
	if got.Messages[1].Role != models.RoleAssistant || got.Messages[1].Content != "hello there" {
		t.Errorf("assistant message = %+v, want role assistant, content %q", got.Messages[1], "hello there")
	}

	evs := drainEvents(t, events, conv.ID)
	if len(evs) == 0 || evs[len(evs)-1].Kind != models.EventCompleted {
		t.Fatalf("events = %+v, want last event to be completed", evs)
	}
}

func TestProcessor_ServerToolThenCompletes(t *testing.T) {
	registry := tooldispatch.NewRegistry()
	if err := registry.RegisterServer(echoTool{}); err != nil {
		t.Fatalf("RegisterServer() error = %v", err)
	}

	toolCall := models.ToolCall{ID: "call-1", Name: "echo", Arguments: json.RawMessage(`{}`)}
	driver := providers.NewFake(
		providers.FakeResponse{Text: "", ToolCalls: []models.ToolCall{toolCall}},
		providers.FakeResponse{Text: "all done"},
	)
	p, agents, convs, events := newTestProcessor(t, driver, registry)

	agentCfg := baseAgent(10)
	conv := baseConversation(agentCfg.ID)
	if err := agents.Create(context.Background(), agentCfg); err != nil {
		t.Fatalf("Create(agent) error = %v", err)
	}
	if err := convs.Create(context.Background(), conv); err != nil {
		t.Fatalf("Create(conversation) error = %v", err)
	}

	if err := p.Process(context.Background(), conv.ID); err != nil {
		t.Fatalf("first Process() error = %v", err)
	}

	mid, err := convs.Get(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if mid.Status != models.StatusActiveProcessing {
		t.Fatalf("Status after server tool call = %s, want active-processing", mid.Status)
	}
	if len(mid.Messages) != 3 {
		t.Fatalf("len(Messages) after server tool call = %d, want 3 (user, assistant, tool)", len(mid.Messages))
	}
	if mid.Messages[2].Role != models.RoleTool || mid.Messages[2].ToolCallID != "call-1" {
		t.Errorf("tool message = %+v, want role tool with ToolCallID call-1", mid.Messages[2])
	}

	midEvents := drainEvents(t, events, conv.ID)
	var sawExecuting, sawCompleted bool
	for _, ev := range midEvents {
		switch ev.Kind {
		case models.EventToolExecuting:
			sawExecuting = true
		case models.EventToolCompleted:
			sawCompleted = true
		case models.EventCompleted, models.EventToolRequest:
			t.Errorf("saw terminal/pending event %s after a server-tool-only turn", ev.Kind)
		}
	}
	if !sawExecuting || !sawCompleted {
		t.Errorf("events = %+v, want both tool_executing and tool_completed", midEvents)
	}

	if err := p.Process(context.Background(), conv.ID); err != nil {
		t.Fatalf("second Process() error = %v", err)
	}
	final, err := convs.Get(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if final.Status != models.StatusCompleted {
		t.Errorf("final Status = %s, want completed", final.Status)
	}
	if final.TurnCount != 2 {
		t.Errorf("final TurnCount = %d, want 2", final.TurnCount)
	}
}

func TestProcessor_ClientToolPauses(t *testing.T) {
	toolCall := models.ToolCall{ID: "call-2", Name: "client_tool", Arguments: json.RawMessage(`{}`)}
	driver := providers.NewFake(providers.FakeResponse{ToolCalls: []models.ToolCall{toolCall}})
	p, agents, convs, events := newTestProcessor(t, driver, nil)

	agentCfg := baseAgent(10)
	conv := baseConversation(agentCfg.ID)
	conv.ClientToolSchemas = []models.ClientToolSchema{{Name: "client_tool"}}
	if err := agents.Create(context.Background(), agentCfg); err != nil {
		t.Fatalf("Create(agent) error = %v", err)
	}
	if err := convs.Create(context.Background(), conv); err != nil {
		t.Fatalf("Create(conversation) error = %v", err)
	}

	if err := p.Process(context.Background(), conv.ID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	got, err := convs.Get(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != models.StatusPaused {
		t.Fatalf("Status = %s, want paused", got.Status)
	}
	if got.PendingToolRequest == nil || got.PendingToolRequest.CallID != "call-2" {
		t.Fatalf("PendingToolRequest = %+v, want CallID call-2", got.PendingToolRequest)
	}

	evs := drainEvents(t, events, conv.ID)
	if len(evs) == 0 || evs[len(evs)-1].Kind != models.EventToolRequest {
		t.Fatalf("events = %+v, want last event to be tool_request", evs)
	}
}

func TestProcessor_MaxTurnsExceeded(t *testing.T) {
	driver := providers.NewFake(providers.FakeResponse{Text: "unused"})
	p, agents, convs, events := newTestProcessor(t, driver, nil)

	agentCfg := baseAgent(1)
	conv := baseConversation(agentCfg.ID)
	conv.TurnCount = 1
	if err := agents.Create(context.Background(), agentCfg); err != nil {
		t.Fatalf("Create(agent) error = %v", err)
	}
	if err := convs.Create(context.Background(), conv); err != nil {
		t.Fatalf("Create(conversation) error = %v", err)
	}

	if err := p.Process(context.Background(), conv.ID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	got, err := convs.Get(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != models.StatusFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
	if got.FailureReason != "max turns exceeded" {
		t.Errorf("FailureReason = %q, want %q", got.FailureReason, "max turns exceeded")
	}
	if driver.CallCount() != 0 {
		t.Errorf("driver.CallCount() = %d, want 0: max_turns+1 must never execute a turn", driver.CallCount())
	}

	evs := drainEvents(t, events, conv.ID)
	if len(evs) == 0 || evs[len(evs)-1].Kind != models.EventFailed {
		t.Fatalf("events = %+v, want last event to be failed", evs)
	}
}

func TestProcessor_ResumeToolResult_NoRemainingEnqueuesNextTurn(t *testing.T) {
	driver := providers.NewFake()
	p, agents, convs, _ := newTestProcessor(t, driver, nil)

	agentCfg := baseAgent(10)
	conv := baseConversation(agentCfg.ID)
	conv.Status = models.StatusPaused
	conv.PendingToolRequest = &models.PendingToolRequest{CallID: "call-3", Name: "client_tool"}
	if err := agents.Create(context.Background(), agentCfg); err != nil {
		t.Fatalf("Create(agent) error = %v", err)
	}
	if err := convs.Create(context.Background(), conv); err != nil {
		t.Fatalf("Create(conversation) error = %v", err)
	}

	// Simulate what the tool-results HTTP handler does before resuming:
	// validate, append the tool message, clear the pending request.
	conv.Messages = append(conv.Messages, models.ChatMessage{
		ID: "tm1", Role: models.RoleTool, Content: "ok", ToolCallID: "call-3", CreatedAt: time.Now(),
	})
	conv.PendingToolRequest = nil

	if err := p.ResumeToolResult(context.Background(), conv); err != nil {
		t.Fatalf("ResumeToolResult() error = %v", err)
	}

	got, err := convs.Get(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != models.StatusActiveProcessing {
		t.Errorf("Status = %s, want active-processing", got.Status)
	}
	if got.PendingToolRequest != nil {
		t.Errorf("PendingToolRequest = %+v, want nil", got.PendingToolRequest)
	}

	if q, ok := p.Queue.(*MemoryTaskQueue); ok && q.Pending() != 1 {
		t.Errorf("Queue.Pending() = %d, want 1", q.Pending())
	}
}

func TestProcessor_ResumeToolResult_RemainingServerCallsExecuteThenComplete(t *testing.T) {
	registry := tooldispatch.NewRegistry()
	if err := registry.RegisterServer(echoTool{}); err != nil {
		t.Fatalf("RegisterServer() error = %v", err)
	}
	driver := providers.NewFake()
	p, agents, convs, events := newTestProcessor(t, driver, registry)

	agentCfg := baseAgent(10)
	conv := baseConversation(agentCfg.ID)
	conv.Status = models.StatusPaused
	conv.RemainingToolCalls = []models.ToolCall{{ID: "call-4", Name: "echo", Arguments: json.RawMessage(`{}`)}}
	if err := agents.Create(context.Background(), agentCfg); err != nil {
		t.Fatalf("Create(agent) error = %v", err)
	}
	if err := convs.Create(context.Background(), conv); err != nil {
		t.Fatalf("Create(conversation) error = %v", err)
	}
	conv.PendingToolRequest = nil

	if err := p.ResumeToolResult(context.Background(), conv); err != nil {
		t.Fatalf("ResumeToolResult() error = %v", err)
	}

	got, err := convs.Get(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != models.StatusActiveProcessing {
		t.Errorf("Status = %s, want active-processing", got.Status)
	}
	var sawToolMsg bool
	for _, m := range got.Messages {
		if m.Role == models.RoleTool && m.ToolCallID == "call-4" {
			sawToolMsg = true
		}
	}
	if !sawToolMsg {
		t.Errorf("Messages = %+v, want a tool message for call-4", got.Messages)
	}

	evs := drainEvents(t, events, conv.ID)
	var sawExecuting, sawCompleted bool
	for _, ev := range evs {
		switch ev.Kind {
		case models.EventToolExecuting:
			sawExecuting = true
		case models.EventToolCompleted:
			sawCompleted = true
		}
	}
	if !sawExecuting || !sawCompleted {
		t.Errorf("events = %+v, want tool_executing and tool_completed for the resumed remaining call", evs)
	}
}

func TestProcessor_AlreadyCancelledExitsSilently(t *testing.T) {
	driver := providers.NewFake(providers.FakeResponse{Text: "unused"})
	p, agents, convs, events := newTestProcessor(t, driver, nil)

	agentCfg := baseAgent(10)
	conv := baseConversation(agentCfg.ID)
	conv.Status = models.StatusCancelled
	if err := agents.Create(context.Background(), agentCfg); err != nil {
		t.Fatalf("Create(agent) error = %v", err)
	}
	if err := convs.Create(context.Background(), conv); err != nil {
		t.Fatalf("Create(conversation) error = %v", err)
	}

	if err := p.Process(context.Background(), conv.ID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	got, err := convs.Get(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != models.StatusCancelled {
		t.Errorf("Status = %s, want cancelled (unchanged)", got.Status)
	}
	if driver.CallCount() != 0 {
		t.Errorf("driver.CallCount() = %d, want 0: an already-cancelled conversation must not run a turn", driver.CallCount())
	}
	if evs := drainEvents(t, events, conv.ID); len(evs) != 0 {
		t.Errorf("events = %+v, want none: exiting on an already-cancelled conversation is silent", evs)
	}
}
