package tooldispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/internal/observability"
	"github.com/loomrun/loom/pkg/models"
)

// Config controls dispatcher execution behavior: a concurrency cap and a
// per-tool timeout. Turns are single-attempt, so there is no retry/backoff
// knob here.
type Config struct {
	// Concurrency bounds how many server/system tools run at once within a
	// single batch. Default: 4.
	Concurrency int
	// PerToolTimeout bounds a single tool's execution. Default: 30s.
	PerToolTimeout time.Duration
}

// DefaultConfig returns sensible defaults: 4-way concurrency, 30s per-tool
// timeout.
func DefaultConfig() Config {
	return Config{Concurrency: 4, PerToolTimeout: 30 * time.Second}
}

// Dispatcher classifies and executes a turn's tool calls.
type Dispatcher struct {
	registry *Registry
	config   Config
}

// New constructs a Dispatcher bound to the given registry and config. Zero
// Config fields fall back to DefaultConfig's values.
func New(registry *Registry, config Config) *Dispatcher {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = 30 * time.Second
	}
	return &Dispatcher{registry: registry, config: config}
}

// Tools returns every registered server/system tool rendered as an
// agent.Tool, for the Turn Processor to pass to the driver alongside the
// conversation's client-declared tool schemas.
func (d *Dispatcher) Tools() []agent.Tool {
	return d.registry.AsLLMTools()
}

// Classify reports whether call is server-, system-, or client-executable.
// A name in clientSchemas always wins over a same-named built-in
// registration. A name matching neither is treated as server-executable:
// Execute then resolves it to a failed ToolResult rather than pausing the
// conversation on a tool call nobody, client or engine, can actually answer.
func (d *Dispatcher) Classify(call models.ToolCall, clientSchemas []models.ClientToolSchema) Class {
	for _, s := range clientSchemas {
		if s.Name == call.Name {
			return ClassClient
		}
	}
	if _, class, ok := d.registry.lookup(call.Name); ok {
		return class
	}
	return ClassServer
}

// ExecutedCall pairs a tool call with its resolved ToolResult, in the order
// calls were executed.
type ExecutedCall struct {
	Call   models.ToolCall
	Result models.ToolResult
}

// Outcome is the result of dispatching one turn's tool calls. Executed
// holds every server/system call that ran this turn, in
// call order. Pending is non-nil iff a client-executable call was reached;
// Remaining then holds every call after the pending one, to resume once the
// client submits its result.
type Outcome struct {
	Executed  []ExecutedCall
	Pending   *models.PendingToolRequest
	Remaining []models.ToolCall
}

// Dispatch classifies calls in order, executing the leading run of
// server/system calls concurrently (bounded by Config.Concurrency) and
// stopping at the first client-executable call: iteration halts there, and
// the remaining calls plus the pending client call are stashed as a
// PendingToolRequest for the conversation to resume once the client answers.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []models.ToolCall, clientSchemas []models.ClientToolSchema) Outcome {
	var toExecute []models.ToolCall
	var pendingIdx = -1

	for i, call := range calls {
		if d.Classify(call, clientSchemas) == ClassClient {
			pendingIdx = i
			break
		}
		toExecute = append(toExecute, call)
	}

	executed := d.executeConcurrently(ctx, toExecute)

	out := Outcome{Executed: executed}
	if pendingIdx >= 0 {
		pending := calls[pendingIdx]
		out.Pending = &models.PendingToolRequest{CallID: pending.ID, Name: pending.Name, Arguments: pending.Arguments}
		if pendingIdx+1 < len(calls) {
			out.Remaining = append([]models.ToolCall(nil), calls[pendingIdx+1:]...)
		}
	}
	return out
}

// executeConcurrently runs calls with a bounded worker pool, preserving
// call order in the returned slice.
func (d *Dispatcher) executeConcurrently(ctx context.Context, calls []models.ToolCall) []ExecutedCall {
	if len(calls) == 0 {
		return nil
	}

	results := make([]ExecutedCall, len(calls))
	sem := make(chan struct{}, d.config.Concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call models.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = ExecutedCall{Call: call, Result: models.NewToolFailure(call.ID, "context canceled", nil)}
				return
			}

			results[idx] = ExecutedCall{Call: call, Result: d.executeOne(ctx, call)}
		}(i, call)
	}

	wg.Wait()
	return results
}

// executeOne runs a single tool call under its per-tool timeout, converting
// the agent.ToolResult wire shape into the domain-level models.ToolResult
// appended to the conversation transcript.
func (d *Dispatcher) executeOne(ctx context.Context, call models.ToolCall) models.ToolResult {
	tool, _, ok := d.registry.lookup(call.Name)
	if !ok {
		return models.NewToolFailure(call.ID, fmt.Sprintf("unknown tool %q", call.Name), nil)
	}

	toolCtx, cancel := context.WithTimeout(ctx, d.config.PerToolTimeout)
	toolCtx = observability.AddToolCallID(toolCtx, call.ID)
	defer cancel()

	type execOutcome struct {
		result *agent.ToolResult
		err    error
	}
	done := make(chan execOutcome, 1)
	go func() {
		result, err := tool.Execute(toolCtx, call.Arguments)
		select {
		case done <- execOutcome{result: result, err: err}:
		default:
			slog.Warn("tool execution completed after timeout, result discarded",
				"tool", call.Name, "tool_call_id", call.ID)
		}
	}()

	select {
	case <-toolCtx.Done():
		if errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
			return models.NewToolFailure(call.ID, fmt.Sprintf("tool execution timed out after %v", d.config.PerToolTimeout), nil)
		}
		return models.NewToolFailure(call.ID, "tool execution canceled", nil)
	case out := <-done:
		if out.err != nil {
			return models.NewToolFailure(call.ID, out.err.Error(), nil)
		}
		if out.result.IsError {
			return models.NewToolFailure(call.ID, out.result.Content, nil)
		}
		return models.NewToolSuccess(call.ID, out.result.Content, nil)
	}
}

// ErrCallIDMismatch is returned by ValidateSubmission when a submitted
// ToolResult's call id does not match the conversation's pending request.
var ErrCallIDMismatch = errors.New("tooldispatch: submitted call_id does not match pending tool request")

// ValidateSubmission checks a client's submitted call id against the
// conversation's pending tool request. A mismatched id is rejected without
// altering any state.
func ValidateSubmission(pending *models.PendingToolRequest, submittedCallID string) error {
	if pending == nil {
		return fmt.Errorf("tooldispatch: no pending tool request")
	}
	if pending.CallID != submittedCallID {
		return ErrCallIDMismatch
	}
	return nil
}
