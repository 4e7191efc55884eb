// Package observability provides diagnostic event types and emission.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// DiagnosticConversationState mirrors a conversation's coarse processing
// state for diagnostic consumers that don't need the full status enum.
type DiagnosticConversationState string

const (
	ConversationStateIdle       DiagnosticConversationState = "idle"
	ConversationStateProcessing DiagnosticConversationState = "processing"
	ConversationStateWaiting    DiagnosticConversationState = "waiting"
)

// DiagnosticEventType identifies the type of diagnostic event.
type DiagnosticEventType string

const (
	EventTypeModelUsage          DiagnosticEventType = "model.usage"
	EventTypeToolCallStarted     DiagnosticEventType = "tool_call.started"
	EventTypeToolCallCompleted   DiagnosticEventType = "tool_call.completed"
	EventTypeToolCallError       DiagnosticEventType = "tool_call.error"
	EventTypeTurnEnqueued        DiagnosticEventType = "turn.enqueued"
	EventTypeTurnProcessed       DiagnosticEventType = "turn.processed"
	EventTypeConversationState   DiagnosticEventType = "conversation.state"
	EventTypeConversationStuck   DiagnosticEventType = "conversation.stuck"
	EventTypeLaneEnqueue         DiagnosticEventType = "queue.lane.enqueue"
	EventTypeLaneDequeue         DiagnosticEventType = "queue.lane.dequeue"
	EventTypeTurnAttempt         DiagnosticEventType = "turn.attempt"
	EventTypeDiagnosticHeartbeat DiagnosticEventType = "diagnostic.heartbeat"
)

// DiagnosticEvent is the base event structure.
type DiagnosticEvent struct {
	Type DiagnosticEventType `json:"type"`
	Seq  int64               `json:"seq"`
	Ts   int64               `json:"ts"`
}

// ModelUsageEvent tracks token usage for a single backend driver call.
type ModelUsageEvent struct {
	DiagnosticEvent
	ConversationID string          `json:"conversation_id,omitempty"`
	AgentID        string          `json:"agent_id,omitempty"`
	Backend        string          `json:"backend,omitempty"`
	Model          string          `json:"model,omitempty"`
	Usage          UsageDetails    `json:"usage"`
	Context        *ContextDetails `json:"context,omitempty"`
	CostUSD        float64         `json:"cost_usd,omitempty"`
	DurationMs     int64           `json:"duration_ms,omitempty"`
}

// UsageDetails contains token usage breakdown.
type UsageDetails struct {
	Input      int64 `json:"input,omitempty"`
	Output     int64 `json:"output,omitempty"`
	CacheRead  int64 `json:"cache_read,omitempty"`
	CacheWrite int64 `json:"cache_write,omitempty"`
	Total      int64 `json:"total,omitempty"`
}

// ContextDetails contains context window information.
type ContextDetails struct {
	Limit int64 `json:"limit,omitempty"`
	Used  int64 `json:"used,omitempty"`
}

// ToolCallStartedEvent tracks a tool dispatch about to run.
type ToolCallStartedEvent struct {
	DiagnosticEvent
	ConversationID string `json:"conversation_id"`
	CallID         string `json:"call_id"`
	ToolName       string `json:"tool_name"`
}

// ToolCallCompletedEvent tracks a finished tool dispatch.
type ToolCallCompletedEvent struct {
	DiagnosticEvent
	ConversationID string `json:"conversation_id"`
	CallID         string `json:"call_id"`
	ToolName       string `json:"tool_name"`
	Success        bool   `json:"success"`
	DurationMs     int64  `json:"duration_ms,omitempty"`
}

// ToolCallErrorEvent tracks a tool dispatch that errored before producing a
// result (distinct from a ToolResult with Success=false, which is a normal
// tool_completed outcome).
type ToolCallErrorEvent struct {
	DiagnosticEvent
	ConversationID string `json:"conversation_id"`
	CallID         string `json:"call_id"`
	ToolName       string `json:"tool_name"`
	Error          string `json:"error"`
}

// TurnEnqueuedEvent tracks a turn added to the task queue.
type TurnEnqueuedEvent struct {
	DiagnosticEvent
	ConversationID string `json:"conversation_id"`
	QueueDepth     int    `json:"queue_depth,omitempty"`
}

// TurnProcessedEvent tracks a completed Processor.Process call.
type TurnProcessedEvent struct {
	DiagnosticEvent
	ConversationID string `json:"conversation_id"`
	DurationMs     int64  `json:"duration_ms,omitempty"`
	Outcome        string `json:"outcome"` // "completed", "paused", "failed"
	Reason         string `json:"reason,omitempty"`
}

// ConversationStateEvent tracks a conversation's status transition.
type ConversationStateEvent struct {
	DiagnosticEvent
	ConversationID string                       `json:"conversation_id"`
	PrevState      DiagnosticConversationState   `json:"prev_state,omitempty"`
	State          DiagnosticConversationState   `json:"state"`
	Reason         string                        `json:"reason,omitempty"`
	QueueDepth     int                           `json:"queue_depth,omitempty"`
}

// ConversationStuckEvent tracks a conversation that has sat in a
// non-terminal state past its expected processing window.
type ConversationStuckEvent struct {
	DiagnosticEvent
	ConversationID string                       `json:"conversation_id"`
	State          DiagnosticConversationState   `json:"state"`
	AgeMs          int64                        `json:"age_ms"`
	QueueDepth     int                          `json:"queue_depth,omitempty"`
}

// LaneEnqueueEvent tracks queue lane enqueues.
type LaneEnqueueEvent struct {
	DiagnosticEvent
	Lane      string `json:"lane"`
	QueueSize int    `json:"queue_size"`
}

// LaneDequeueEvent tracks queue lane dequeues.
type LaneDequeueEvent struct {
	DiagnosticEvent
	Lane      string `json:"lane"`
	QueueSize int    `json:"queue_size"`
	WaitMs    int64  `json:"wait_ms"`
}

// TurnAttemptEvent tracks a Processor.Process attempt for a conversation.
type TurnAttemptEvent struct {
	DiagnosticEvent
	ConversationID string `json:"conversation_id"`
	Attempt        int    `json:"attempt"`
}

// DiagnosticHeartbeatEvent is a periodic snapshot of queue and tool-call
// counters, for dashboards that poll rather than subscribe.
type DiagnosticHeartbeatEvent struct {
	DiagnosticEvent
	ToolCalls ToolCallStats `json:"tool_calls"`
	Active    int           `json:"active"`
	Waiting   int           `json:"waiting"`
	Queued    int           `json:"queued"`
}

// ToolCallStats contains cumulative tool-dispatch counters.
type ToolCallStats struct {
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Errors    int64 `json:"errors"`
}

// DiagnosticEventPayload is a union type for all diagnostic events.
type DiagnosticEventPayload interface {
	EventType() DiagnosticEventType
	Sequence() int64
	Timestamp() int64
}

func (e *DiagnosticEvent) EventType() DiagnosticEventType { return e.Type }
func (e *DiagnosticEvent) Sequence() int64                { return e.Seq }
func (e *DiagnosticEvent) Timestamp() int64               { return e.Ts }

// DiagnosticListener receives diagnostic events.
type DiagnosticListener func(event DiagnosticEventPayload)

// DiagnosticEmitter manages diagnostic event emission.
type DiagnosticEmitter struct {
	mu        sync.RWMutex
	seq       int64
	enabled   bool
	listeners []DiagnosticListener
}

var globalEmitter = &DiagnosticEmitter{}

// SetDiagnosticsEnabled enables or disables diagnostic events.
func SetDiagnosticsEnabled(enabled bool) {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	globalEmitter.enabled = enabled
}

// IsDiagnosticsEnabled returns whether diagnostics are enabled.
func IsDiagnosticsEnabled() bool {
	globalEmitter.mu.RLock()
	defer globalEmitter.mu.RUnlock()
	return globalEmitter.enabled
}

// OnDiagnosticEvent registers a listener for diagnostic events.
func OnDiagnosticEvent(listener DiagnosticListener) func() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	globalEmitter.listeners = append(globalEmitter.listeners, listener)

	return func() {
		globalEmitter.mu.Lock()
		defer globalEmitter.mu.Unlock()
		for i, l := range globalEmitter.listeners {
			if &l == &listener {
				globalEmitter.listeners = append(globalEmitter.listeners[:i], globalEmitter.listeners[i+1:]...)
				break
			}
		}
	}
}

func nextSeq() int64 {
	return atomic.AddInt64(&globalEmitter.seq, 1)
}

func emit(event DiagnosticEventPayload) {
	globalEmitter.mu.RLock()
	if !globalEmitter.enabled {
		globalEmitter.mu.RUnlock()
		return
	}
	listeners := make([]DiagnosticListener, len(globalEmitter.listeners))
	copy(listeners, globalEmitter.listeners)
	globalEmitter.mu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				_ = recover()
			}()
			listener(event)
		}()
	}
}

// EmitModelUsage emits a model usage event.
func EmitModelUsage(e *ModelUsageEvent) {
	e.Type = EventTypeModelUsage
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitToolCallStarted emits a tool call started event.
func EmitToolCallStarted(e *ToolCallStartedEvent) {
	e.Type = EventTypeToolCallStarted
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitToolCallCompleted emits a tool call completed event.
func EmitToolCallCompleted(e *ToolCallCompletedEvent) {
	e.Type = EventTypeToolCallCompleted
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitToolCallError emits a tool call error event.
func EmitToolCallError(e *ToolCallErrorEvent) {
	e.Type = EventTypeToolCallError
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitTurnEnqueued emits a turn enqueued event.
func EmitTurnEnqueued(e *TurnEnqueuedEvent) {
	e.Type = EventTypeTurnEnqueued
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitTurnProcessed emits a turn processed event.
func EmitTurnProcessed(e *TurnProcessedEvent) {
	e.Type = EventTypeTurnProcessed
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitConversationState emits a conversation state event.
func EmitConversationState(e *ConversationStateEvent) {
	e.Type = EventTypeConversationState
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitConversationStuck emits a conversation stuck event.
func EmitConversationStuck(e *ConversationStuckEvent) {
	e.Type = EventTypeConversationStuck
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitLaneEnqueue emits a lane enqueue event.
func EmitLaneEnqueue(e *LaneEnqueueEvent) {
	e.Type = EventTypeLaneEnqueue
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitLaneDequeue emits a lane dequeue event.
func EmitLaneDequeue(e *LaneDequeueEvent) {
	e.Type = EventTypeLaneDequeue
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitTurnAttempt emits a turn attempt event.
func EmitTurnAttempt(e *TurnAttemptEvent) {
	e.Type = EventTypeTurnAttempt
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitDiagnosticHeartbeat emits a diagnostic heartbeat event.
func EmitDiagnosticHeartbeat(e *DiagnosticHeartbeatEvent) {
	e.Type = EventTypeDiagnosticHeartbeat
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// ResetDiagnosticsForTest resets diagnostic state for testing.
func ResetDiagnosticsForTest() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	atomic.StoreInt64(&globalEmitter.seq, 0)
	globalEmitter.listeners = nil
}
