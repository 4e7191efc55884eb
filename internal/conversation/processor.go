package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loomrun/loom/internal/agent"
	agentcontext "github.com/loomrun/loom/internal/agent/context"
	"github.com/loomrun/loom/internal/eventqueue"
	"github.com/loomrun/loom/internal/loomerr"
	"github.com/loomrun/loom/internal/observability"
	"github.com/loomrun/loom/internal/prompt"
	"github.com/loomrun/loom/internal/storage"
	"github.com/loomrun/loom/internal/tooldispatch"
	"github.com/loomrun/loom/internal/tools"
	"github.com/loomrun/loom/pkg/models"
)

// defaultTurnTimeout bounds one Process call's wall-clock time when a
// Processor isn't configured with a tighter one: long enough to cover a
// slow model response plus whatever tool calls it triggers.
const defaultTurnTimeout = 10 * time.Minute

// Processor drives exactly one model turn for a conversation per call to
// Process: resolve the backend driver, run the context filter, call the
// driver, dispatch any tool calls it returns, and advance the
// conversation's persisted status.
//
// Unlike an in-process agent loop that iterates turns internally, Process
// handles a single turn and returns; the next turn re-enters through the
// work queue, so there is no loop here at all.
type Processor struct {
	Agents        storage.AgentStore
	Conversations storage.ConversationStore
	Drivers       *DriverRegistry
	Dispatcher    *tooldispatch.Dispatcher
	Events        eventqueue.Queue
	Queue         TaskQueue

	// Metrics records Prometheus metrics for turns, tools, and
	// conversations. Nil disables metric recording.
	Metrics *observability.Metrics

	// TurnTimeout bounds one Process call's wall-clock time. Zero uses
	// defaultTurnTimeout.
	TurnTimeout time.Duration
}

func (p *Processor) turnTimeout() time.Duration {
	if p.TurnTimeout > 0 {
		return p.TurnTimeout
	}
	return defaultTurnTimeout
}

// Process runs one turn of conversationID end to end. It is single-try: any
// uncaught error fails the turn rather than being retried here; retries, if
// any, are the caller's concern at the queue level.
func (p *Processor) Process(ctx context.Context, conversationID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.turnTimeout())
	defer cancel()
	ctx = observability.AddConversationID(ctx, conversationID)
	turnStart := time.Now()

	// Step 1: load the conversation and its agent in one batch.
	conv, err := p.Conversations.Get(ctx, conversationID)
	if err != nil {
		return loomerr.NewInternalError("load conversation", err)
	}
	agentCfg, err := p.Agents.Get(ctx, conv.AgentID)
	if err != nil {
		return loomerr.NewInternalError("load agent", err)
	}

	// Step 2: max_turns check.
	if conv.TurnCount >= agentCfg.MaxTurns {
		observability.EmitConversationStuck(&observability.ConversationStuckEvent{
			ConversationID: conversationID,
			State:          observability.ConversationStateProcessing,
			AgeMs:          time.Since(conv.CreatedAt).Milliseconds(),
		})
		if p.Metrics != nil {
			p.Metrics.RecordConversationStuck()
		}
		return p.fail(ctx, conv, "max turns exceeded")
	}

	// Step 3: cancellation already observed elsewhere; exit silently.
	if conv.Status == models.StatusCancelled {
		return nil
	}

	observability.EmitTurnAttempt(&observability.TurnAttemptEvent{ConversationID: conversationID, Attempt: conv.TurnCount + 1})

	var driver agent.Driver
	result, procErr := p.runTurn(ctx, conv, agentCfg, &driver)
	if driver != nil {
		defer driver.Disconnect()
	}
	if procErr != nil {
		if _, cancelled := procErr.(cancelledErr); cancelled {
			return nil
		}
		failErr := p.fail(ctx, conv, procErr.Error())
		observability.EmitTurnProcessed(&observability.TurnProcessedEvent{
			ConversationID: conversationID,
			DurationMs:     time.Since(turnStart).Milliseconds(),
			Outcome:        "failed",
			Reason:         procErr.Error(),
		})
		if p.Metrics != nil {
			p.Metrics.RecordTurnAttempt("failed")
		}
		return failErr
	}
	commitErr := p.commit(ctx, conv, result)
	observability.EmitTurnProcessed(&observability.TurnProcessedEvent{
		ConversationID: conversationID,
		DurationMs:     time.Since(turnStart).Milliseconds(),
		Outcome:        string(conv.Status),
	})
	if p.Metrics != nil {
		p.Metrics.RecordTurnProcessed(string(conv.Status))
		p.Metrics.RecordTurnAttempt("success")
	}
	return commitErr
}

// cancelledErr signals a cooperative-cancellation exit: the caller re-reads
// status, finds it cancelled, and stops without emitting (cancellation
// already emitted its own event at the point it was written).
type cancelledErr struct{}

func (cancelledErr) Error() string { return "conversation cancelled" }

// turnResult threads the per-turn outcome from runTurn to commit without
// mutating conv until every step has succeeded, keeping the "append only
// after the driver returns without error" idempotency guarantee.
type turnResult struct {
	assistantMsg  models.ChatMessage
	tokensUsed    int
	executed      []tooldispatch.ExecutedCall
	toolMessages  []models.ChatMessage
	pending       *models.PendingToolRequest
	remaining     []models.ToolCall
	newPromptSnap string
	newCfgSnap    *models.NormalizedModelConfig
	enqueueNext   bool
}

func (p *Processor) runTurn(ctx context.Context, conv *models.Conversation, agentCfg *models.Agent, driverOut *agent.Driver) (*turnResult, error) {
	// Step 4: resolve the backend driver and NormalizedModelConfig.
	driver, cfg, err := ResolveDriver(*agentCfg, p.Drivers)
	if err != nil {
		return nil, err
	}
	*driverOut = driver

	// Step 5: compute and freeze the system prompt snapshot on first turn.
	result := &turnResult{}
	systemPrompt := conv.SystemPromptSnapshot
	if systemPrompt == "" {
		assembled, perr := prompt.Assemble(*agentCfg, time.Now())
		if perr != nil {
			// A missing required prompt variable fails the turn.
			return nil, fmt.Errorf("assemble system prompt: %w", perr)
		}
		systemPrompt = assembled
		result.newPromptSnap = assembled
		cfgCopy := cfg
		result.newCfgSnap = &cfgCopy
	}

	// Step 6: Context Filter over conversation.messages.
	tools := p.dispatcherTools(conv)
	toolSchemaTokens, err := toolSchemaTokenEstimate(driver, tools)
	if err != nil {
		return nil, fmt.Errorf("format tool schemas: %w", err)
	}

	strategy, options := contextStrategyOptions(*agentCfg)
	systemPromptTokens := driver.CountTokens(systemPrompt)
	p.logBudget(conv.ID, cfg.Model, cfg.ContextLength, systemPromptTokens, toolSchemaTokens, conv.Messages)
	forced := false
	if agentcontext.ShouldFilter(conv.Messages, systemPromptTokens, toolSchemaTokens, cfg.ContextLength, agentCfg.ContextThreshold, forced) {
		filterReq := agentcontext.Request{
			Messages:           conv.Messages,
			SystemPromptTokens: systemPromptTokens,
			ToolSchemaTokens:   toolSchemaTokens,
			ContextLimit:       cfg.ContextLength,
			MaxOutputTokens:    cfg.MaxTokens,
			Strategy:           strategy,
			Options:            options,
			Summarizer:         &driverSummarizer{driver: driver},
		}
		filtered, ferr := agentcontext.Apply(ctx, filterReq)
		if ferr != nil {
			// Fail-open: agentcontext.Apply already returns all messages
			// on resolution failure; the error itself is logged by the
			// caller, not treated as fatal to the turn.
			slog.Warn("context filter resolution failed", "error", ferr)
		}
		conv.Messages = filtered
	}

	// Cancellation checkpoint before the long-running driver call.
	if cancelled, cerr := p.observeCancelled(ctx, conv.ID); cerr != nil {
		return nil, cerr
	} else if cancelled {
		return nil, cancelledErr{}
	}

	// Step 7: stream_execute, forwarding chunks as text_chunk events.
	req := agent.Request{System: systemPrompt, Messages: conv.Messages, Tools: tools, MaxTokens: cfg.MaxTokens}
	onChunk := func(kind agent.ChunkKind, text string) {
		data := models.TextChunkData{Text: text, Kind: string(kind)}
		if perr := p.Events.Publish(ctx, conv.ID, models.NewEvent(conv.ID, models.EventTextChunk, data)); perr != nil {
			slog.Warn("publish text_chunk failed", "error", perr)
		}
	}
	callStart := time.Now()
	resp, err := driver.StreamExecute(ctx, req, onChunk)
	if err != nil {
		if p.Metrics != nil {
			p.Metrics.RecordTurn(agentCfg.AIBackend, cfg.Model, "error", time.Since(callStart).Seconds(), 0, 0)
			p.Metrics.RecordError("processor", "backend_call_failed")
		}
		return nil, loomerr.NewBackendError(agentCfg.AIBackend, cfg.Model, "", err)
	}
	if p.Metrics != nil {
		p.Metrics.RecordTurn(agentCfg.AIBackend, cfg.Model, "success", time.Since(callStart).Seconds(),
			resp.TokensUsed.InputTokens, resp.TokensUsed.OutputTokens)
		p.Metrics.RecordContextBudget(agentCfg.AIBackend, cfg.Model, systemPromptTokens+toolSchemaTokens)
	}
	observability.EmitModelUsage(&observability.ModelUsageEvent{
		ConversationID: conv.ID,
		AgentID:        conv.AgentID,
		Backend:        agentCfg.AIBackend,
		Model:          cfg.Model,
		Usage: observability.UsageDetails{
			Input:  int64(resp.TokensUsed.InputTokens),
			Output: int64(resp.TokensUsed.OutputTokens),
			Total:  int64(resp.TokensUsed.Total()),
		},
		Context:    &observability.ContextDetails{Limit: int64(cfg.ContextLength), Used: int64(systemPromptTokens + toolSchemaTokens)},
		DurationMs: time.Since(callStart).Milliseconds(),
	})

	// Step 8: append the assistant message; decide completion vs dispatch.
	result.assistantMsg = models.ChatMessage{
		ID:         uuid.NewString(),
		Role:       models.RoleAssistant,
		Content:    resp.Content,
		ToolCalls:  resp.ToolCalls,
		Thinking:   resp.Thinking,
		TokenCount: resp.TokensUsed.Total(),
		CreatedAt:  time.Now(),
	}
	result.tokensUsed = resp.TokensUsed.Total()

	if len(resp.ToolCalls) == 0 {
		return result, nil
	}

	if cancelled, cerr := p.observeCancelled(ctx, conv.ID); cerr != nil {
		return nil, cerr
	} else if cancelled {
		return nil, cancelledErr{}
	}

	executed, toolMessages, pending, remaining := p.dispatchTools(ctx, conv, resp.ToolCalls)
	result.executed = executed
	result.toolMessages = toolMessages
	if pending != nil {
		result.pending = pending
		result.remaining = remaining
	} else {
		result.enqueueNext = true
	}
	return result, nil
}

// toolCallSummary renders a short human-readable summary of a tool call for
// the tool_executing/tool_completed events, e.g. "📖 Reading: main.go". It
// never fails the turn: arguments that don't decode to a display-friendly
// shape just produce a summary with no detail.
func toolCallSummary(name string, arguments json.RawMessage) string {
	var args interface{}
	if len(arguments) > 0 {
		_ = json.Unmarshal(arguments, &args)
	}
	return tools.Summary(tools.ResolveDisplay(name, args))
}

// logBudget builds a per-turn token Budget and logs it once usage crosses
// the warning threshold, giving an operator visibility into a conversation
// running close to its model's context window ahead of the filter actually
// kicking in.
func (p *Processor) logBudget(conversationID, model string, contextLimit, systemPromptTokens, toolSchemaTokens int, messages []models.ChatMessage) {
	budget := agentcontext.NewBudgetForModel(model)
	if contextLimit > 0 {
		budget = agentcontext.NewBudget(contextLimit, model)
	}
	budget.SetUsed(systemPromptTokens + toolSchemaTokens)
	for i := range messages {
		budget.Add(agentcontext.EstimateMessageTokens(&messages[i], agentcontext.DefaultSafetyMargin))
	}

	info := budget.Info()
	if info.ShouldWarn() {
		slog.Warn("context budget running low",
			"conversation_id", conversationID,
			"status", info.Status(),
			"used_tokens", info.UsedTokens,
			"total_tokens", info.TotalTokens,
			"remaining_tokens", info.RemainingTokens,
		)
	}
}

// dispatchTools runs calls through the Tool Dispatcher and emits their
// tool_executing/tool_completed events, shared between runTurn (dispatching
// a turn's fresh tool_calls) and ResumeToolResult (dispatching a paused
// conversation's stored RemainingToolCalls once its pending call is
// answered).
func (p *Processor) dispatchTools(ctx context.Context, conv *models.Conversation, calls []models.ToolCall) (executed []tooldispatch.ExecutedCall, toolMessages []models.ChatMessage, pending *models.PendingToolRequest, remaining []models.ToolCall) {
	outcome := p.Dispatcher.Dispatch(ctx, calls, conv.ClientToolSchemas)
	for _, ec := range outcome.Executed {
		dispatchStart := time.Now()
		observability.EmitToolCallStarted(&observability.ToolCallStartedEvent{ConversationID: conv.ID, CallID: ec.Call.ID, ToolName: ec.Call.Name})

		summary := toolCallSummary(ec.Call.Name, ec.Call.Arguments)
		data := models.ToolExecutingData{CallID: ec.Call.ID, Name: ec.Call.Name, Arguments: ec.Call.Arguments, Summary: summary}
		if perr := p.Events.Publish(ctx, conv.ID, models.NewEvent(conv.ID, models.EventToolExecuting, data)); perr != nil {
			slog.Warn("publish tool_executing failed", "error", perr)
		}
		completed := models.ToolCompletedData{
			CallID:  ec.Call.ID,
			Name:    ec.Call.Name,
			Success: ec.Result.Success,
			Output:  ec.Result.Output,
			Error:   ec.Result.Error,
			Summary: summary,
		}
		if perr := p.Events.Publish(ctx, conv.ID, models.NewEvent(conv.ID, models.EventToolCompleted, completed)); perr != nil {
			slog.Warn("publish tool_completed failed", "error", perr)
		}
		dispatchDuration := time.Since(dispatchStart)
		toolStatus := "success"
		if !ec.Result.Success {
			toolStatus = "error"
		}
		if p.Metrics != nil {
			p.Metrics.RecordToolExecution(ec.Call.Name, toolStatus, dispatchDuration.Seconds())
		}
		if !ec.Result.Success && ec.Result.Output == "" && ec.Result.Error != "" {
			observability.EmitToolCallError(&observability.ToolCallErrorEvent{ConversationID: conv.ID, CallID: ec.Call.ID, ToolName: ec.Call.Name, Error: ec.Result.Error})
		} else {
			observability.EmitToolCallCompleted(&observability.ToolCallCompletedEvent{
				ConversationID: conv.ID,
				CallID:         ec.Call.ID,
				ToolName:       ec.Call.Name,
				Success:        ec.Result.Success,
				DurationMs:     dispatchDuration.Milliseconds(),
			})
		}
		toolMessages = append(toolMessages, models.ChatMessage{
			ID:         uuid.NewString(),
			Role:       models.RoleTool,
			Content:    ec.Result.Render(),
			ToolCallID: ec.Result.ToolCallID,
			CreatedAt:  time.Now(),
		})
	}
	return outcome.Executed, toolMessages, outcome.Pending, outcome.Remaining
}

// ResumeToolResult implements the tool-result submission's continuation
// once
// the HTTP layer has validated the submitted call_id against conv's pending
// request, appended the resulting tool message, and cleared
// PendingToolRequest, this dispatches whatever calls were stored in
// RemainingToolCalls (possibly none) before either pausing again on a
// further client call or enqueuing the next model turn. conv is mutated and
// persisted in place.
func (p *Processor) ResumeToolResult(ctx context.Context, conv *models.Conversation) error {
	calls := conv.RemainingToolCalls
	conv.RemainingToolCalls = nil

	_, toolMessages, pending, remaining := p.dispatchTools(ctx, conv, calls)
	conv.Messages = append(conv.Messages, toolMessages...)
	conv.LastActivityAt = time.Now()

	if pending != nil {
		conv.PendingToolRequest = pending
		conv.RemainingToolCalls = remaining
		conv.Status = models.StatusPaused
		if err := p.Conversations.Update(ctx, conv); err != nil {
			return loomerr.NewInternalError("persist conversation", err)
		}
		data := models.ToolRequestData{CallID: pending.CallID, Name: pending.Name, Arguments: pending.Arguments}
		return p.emit(ctx, conv.ID, models.EventToolRequest, data)
	}

	conv.Status = models.StatusActiveProcessing
	if err := p.Conversations.Update(ctx, conv); err != nil {
		return loomerr.NewInternalError("persist conversation", err)
	}
	if err := p.Queue.Enqueue(ctx, conv.ID); err != nil {
		return loomerr.NewInternalError("enqueue next turn", err)
	}
	return nil
}

// commit applies a completed runTurn's outcome to the conversation and
// persists it, mirroring the single-writer-append idempotency guarantee
// the assistant message, and any tool results, are only appended here
// once the driver and dispatcher have both already returned successfully.
func (p *Processor) commit(ctx context.Context, conv *models.Conversation, result *turnResult) error {
	prevState := conversationDiagnosticState(conv.Status)
	prevStatus := string(conv.Status)
	conv.Messages = append(conv.Messages, result.assistantMsg)
	conv.Messages = append(conv.Messages, result.toolMessages...)
	conv.TurnCount++
	conv.TotalTokens += result.tokensUsed
	conv.LastActivityAt = time.Now()
	if result.newPromptSnap != "" {
		conv.SystemPromptSnapshot = result.newPromptSnap
		conv.ModelConfigSnapshot = result.newCfgSnap
	}

	switch {
	case result.pending != nil:
		conv.PendingToolRequest = result.pending
		conv.RemainingToolCalls = result.remaining
		conv.Status = models.StatusPaused
	case len(result.assistantMsg.ToolCalls) == 0:
		conv.Status = models.StatusCompleted
	default:
		conv.Status = models.StatusActiveProcessing
	}

	if err := p.Conversations.Update(ctx, conv); err != nil {
		return loomerr.NewInternalError("persist conversation", err)
	}
	observability.EmitConversationState(&observability.ConversationStateEvent{
		ConversationID: conv.ID,
		PrevState:      prevState,
		State:          conversationDiagnosticState(conv.Status),
	})
	if p.Metrics != nil && conv.Status == models.StatusCompleted {
		p.Metrics.ConversationEnded(prevStatus, "completed", time.Since(conv.CreatedAt).Seconds())
	}

	switch conv.Status {
	case models.StatusCompleted:
		data := models.CompletedData{MessageID: result.assistantMsg.ID, Content: result.assistantMsg.Content}
		return p.emit(ctx, conv.ID, models.EventCompleted, data)
	case models.StatusPaused:
		data := models.ToolRequestData{
			CallID:    conv.PendingToolRequest.CallID,
			Name:      conv.PendingToolRequest.Name,
			Arguments: conv.PendingToolRequest.Arguments,
		}
		return p.emit(ctx, conv.ID, models.EventToolRequest, data)
	default:
		if result.enqueueNext {
			if err := p.Queue.Enqueue(ctx, conv.ID); err != nil {
				return loomerr.NewInternalError("enqueue next turn", err)
			}
		}
		return nil
	}
}

// fail implements step 9: any uncaught error transitions the conversation
// to failed and emits the matching event.
func (p *Processor) fail(ctx context.Context, conv *models.Conversation, reason string) error {
	prevState := conversationDiagnosticState(conv.Status)
	prevStatus := string(conv.Status)
	conv.Status = models.StatusFailed
	conv.FailureReason = reason
	conv.LastActivityAt = time.Now()
	if err := p.Conversations.Update(ctx, conv); err != nil {
		return loomerr.NewInternalError("persist failed conversation", err)
	}
	observability.EmitConversationState(&observability.ConversationStateEvent{
		ConversationID: conv.ID,
		PrevState:      prevState,
		State:          observability.ConversationStateIdle,
		Reason:         reason,
	})
	if p.Metrics != nil {
		p.Metrics.ConversationEnded(prevStatus, "failed", time.Since(conv.CreatedAt).Seconds())
		p.Metrics.RecordError("processor", "turn_failed")
	}
	return p.emit(ctx, conv.ID, models.EventFailed, models.FailedData{Reason: reason})
}

// conversationDiagnosticState collapses a ConversationStatus into the
// coarser DiagnosticConversationState used by diagnostic event consumers.
func conversationDiagnosticState(status models.ConversationStatus) observability.DiagnosticConversationState {
	switch status {
	case models.StatusActive, models.StatusActiveProcessing:
		return observability.ConversationStateProcessing
	case models.StatusPaused:
		return observability.ConversationStateWaiting
	default:
		return observability.ConversationStateIdle
	}
}

func (p *Processor) emit(ctx context.Context, conversationID string, kind models.EventKind, data any) error {
	if err := p.Events.Publish(ctx, conversationID, models.NewEvent(conversationID, kind, data)); err != nil {
		slog.Warn("publish event failed", "kind", kind, "error", err)
	}
	return nil
}

// observeCancelled re-reads the conversation's persisted status (not the
// in-memory copy this Process call started with) at a checkpoint, per
// cooperative cancellation: a concurrent cancel writes
// status=cancelled directly to storage, and the running processor only
// notices at its next checkpoint.
func (p *Processor) observeCancelled(ctx context.Context, conversationID string) (bool, error) {
	current, err := p.Conversations.Get(ctx, conversationID)
	if err != nil {
		return false, loomerr.NewInternalError("re-read conversation status", err)
	}
	return current.Status == models.StatusCancelled, nil
}

func (p *Processor) dispatcherTools(conv *models.Conversation) []agent.Tool {
	tools := p.Dispatcher.Tools()
	for _, schema := range conv.ClientToolSchemas {
		tools = append(tools, agent.Tool{Name: schema.Name, Description: schema.Description, Schema: schema.Schema})
	}
	return tools
}

func toolSchemaTokenEstimate(driver agent.Driver, tools []agent.Tool) (int, error) {
	raw, err := driver.FormatToolSchemas(tools)
	if err != nil {
		return 0, err
	}
	return driver.CountTokens(string(raw)), nil
}

func contextStrategyOptions(agentCfg models.Agent) (agentcontext.Strategy, agentcontext.Options) {
	strategy := agentcontext.Strategy(agentCfg.ContextStrategy)
	opts := agentcontext.Options{}
	if v, ok := agentCfg.ContextOptions["window_size"]; ok {
		opts.WindowSize = toInt(v)
	}
	if v, ok := agentCfg.ContextOptions["budget_percentage"]; ok {
		opts.BudgetPercentage = toFloat(v)
	}
	if v, ok := agentCfg.ContextOptions["reserve_tokens"]; ok {
		opts.ReserveTokens = toInt(v)
	}
	if v, ok := agentCfg.ContextOptions["target_tokens"]; ok {
		opts.TargetTokens = toInt(v)
	}
	if v, ok := agentCfg.ContextOptions["min_messages"]; ok {
		opts.MinMessages = toInt(v)
	}
	if v, ok := agentCfg.ContextOptions["summarization_threshold"]; ok {
		opts.SummarizationThreshold = toFloat(v)
	}
	if v, ok := agentCfg.ContextOptions["safety_margin"]; ok {
		opts.SafetyMargin = toFloat(v)
	}
	return strategy, opts
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
