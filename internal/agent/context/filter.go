package context

import (
	gocontext "context"

	"github.com/loomrun/loom/internal/loomerr"
	"github.com/loomrun/loom/pkg/models"
)

// Strategy names an agent's configured Context Filter strategy.
type Strategy string

const (
	StrategyNoop          Strategy = "noop"
	StrategySlidingWindow Strategy = "sliding_window"
	StrategyTokenBudget   Strategy = "token_budget"
	StrategySummarization Strategy = "summarization"
)

// Options carries every strategy's parameters; only the fields relevant to
// the selected Strategy are consulted.
type Options struct {
	// WindowSize is sliding_window's retained-message count (including the
	// system prompt).
	WindowSize int

	// BudgetPercentage and ReserveTokens parametrize token_budget.
	BudgetPercentage float64
	ReserveTokens    int

	// TargetTokens and MinMessages parametrize summarization. Recursion
	// stops once total estimated tokens fall under
	// SummarizationThreshold * ContextLimit (default 0.8) or fewer than
	// MinMessages non-pinned, non-system messages remain ahead of the tail.
	TargetTokens           int
	MinMessages            int
	SummarizationThreshold float64

	// SafetyMargin shrinks every token estimate; defaults to
	// DefaultSafetyMargin when zero.
	SafetyMargin float64
}

func (o Options) safetyMargin() float64 {
	if o.SafetyMargin <= 0 {
		return DefaultSafetyMargin
	}
	return o.SafetyMargin
}

// Summarizer generates a synthetic summary for the summarization strategy.
// The call bypasses the filter itself.
type Summarizer interface {
	Summarize(ctx gocontext.Context, messages []models.ChatMessage, targetTokens int) (string, error)
}

// Request is everything Filter.Apply needs to run a strategy.
type Request struct {
	Messages          []models.ChatMessage
	SystemPromptTokens int
	ToolSchemaTokens   int
	ContextLimit       int
	MaxOutputTokens    int
	Strategy           Strategy
	Options            Options
	Summarizer         Summarizer
}

// ShouldFilter implements the Turn Processor's triggering rule: the filter
// runs only once estimated usage crosses contextThreshold of the driver's
// context window, or when forced.
func ShouldFilter(messages []models.ChatMessage, systemPromptTokens, toolSchemaTokens, contextLimit int, contextThreshold float64, forced bool) bool {
	if forced {
		return true
	}
	if contextLimit <= 0 {
		return false
	}
	total := systemPromptTokens + toolSchemaTokens
	for i := range messages {
		total += EstimateMessageTokens(&messages[i], DefaultSafetyMargin)
	}
	return float64(total) > contextThreshold*float64(contextLimit)
}

// Apply runs the configured strategy and enforces preservation invariants
// P1-P4 on its output. On any resolution failure it fails open: all
// messages pass through and a *loomerr.ContextFilterResolutionFailed
// describes what went wrong, for the caller to log. Overflow then becomes
// the driver's problem rather than a failed turn.
func Apply(ctx gocontext.Context, req Request) ([]models.ChatMessage, error) {
	if len(req.Messages) == 0 {
		return req.Messages, nil
	}

	if req.Strategy == StrategySummarization {
		out, err := summarizeRecursive(ctx, req)
		if err != nil {
			return req.Messages, loomerr.NewContextFilterResolutionFailed(string(req.Strategy), err)
		}
		return out, nil
	}

	keep, err := resolve(req)
	if err != nil {
		return req.Messages, loomerr.NewContextFilterResolutionFailed(string(req.Strategy), err)
	}

	enforceInvariants(req.Messages, keep)
	return extract(req.Messages, keep), nil
}

func resolve(req Request) ([]bool, error) {
	switch req.Strategy {
	case "", StrategyNoop:
		return allTrue(len(req.Messages)), nil
	case StrategySlidingWindow:
		return slidingWindow(req.Messages, req.Options), nil
	case StrategyTokenBudget:
		return tokenBudget(req.Messages, req), nil
	default:
		return nil, loomerr.NewContextFilterResolutionFailed(string(req.Strategy), nil)
	}
}

func allTrue(n int) []bool {
	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}
	return keep
}

func extract(messages []models.ChatMessage, keep []bool) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(messages))
	for i, k := range keep {
		if k {
			out = append(out, messages[i])
		}
	}
	return out
}

// enforceInvariants applies P1 (system prompt retained), P2 (pinned message
// retained), and P3 (tool-call/tool-result pairs kept or dropped together)
// to a strategy's tentative keep set, in place.
func enforceInvariants(messages []models.ChatMessage, keep []bool) {
	for i, msg := range messages {
		if msg.Role == models.RoleSystem || msg.Pinned {
			keep[i] = true
		}
	}

	callIndex := map[string]int{}
	for i, msg := range messages {
		for _, tc := range msg.ToolCalls {
			callIndex[tc.ID] = i
		}
	}

	// A retained tool-result message pulls its originating assistant
	// message in with it.
	for i, msg := range messages {
		if msg.Role != models.RoleTool || msg.ToolCallID == "" || !keep[i] {
			continue
		}
		if callerIdx, ok := callIndex[msg.ToolCallID]; ok {
			keep[callerIdx] = true
		}
	}

	// A tool-result message is dropped whenever its originating tool call
	// is dropped, even if some earlier pass (e.g. P1/P2) had kept it.
	for i, msg := range messages {
		if msg.Role != models.RoleTool || msg.ToolCallID == "" {
			continue
		}
		if callerIdx, ok := callIndex[msg.ToolCallID]; ok && !keep[callerIdx] {
			keep[i] = false
		}
	}
}
