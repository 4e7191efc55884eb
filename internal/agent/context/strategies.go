package context

import (
	"github.com/loomrun/loom/pkg/models"
)

// slidingWindow retains the most recent WindowSize-1 messages plus the
// system prompt (added back by enforceInvariants' P1 pass).
func slidingWindow(messages []models.ChatMessage, opts Options) []bool {
	keep := make([]bool, len(messages))
	windowSize := opts.WindowSize
	if windowSize <= 0 {
		windowSize = 1
	}
	retain := windowSize - 1
	if retain < 0 {
		retain = 0
	}
	start := len(messages) - retain
	if start < 0 {
		start = 0
	}
	for i := start; i < len(messages); i++ {
		keep[i] = true
	}
	return keep
}

// tokenBudget computes available = (context_limit - max_output_tokens -
// tool_schema_tokens) * budget_percentage - reserve_tokens, then walks
// messages newest to oldest, admitting each if it fits the remaining
// budget; tool-call pairs are kept atomic by enforceInvariants after this
// pass runs.
func tokenBudget(messages []models.ChatMessage, req Request) []bool {
	margin := req.Options.safetyMargin()
	budgetPct := req.Options.BudgetPercentage
	if budgetPct <= 0 || budgetPct > 1 {
		budgetPct = 1
	}

	available := (float64(req.ContextLimit) - float64(req.MaxOutputTokens) - float64(req.ToolSchemaTokens)) * budgetPct
	available -= float64(req.Options.ReserveTokens)
	if available < 0 {
		available = 0
	}

	keep := make([]bool, len(messages))
	remaining := available
	for i := len(messages) - 1; i >= 0; i-- {
		msg := &messages[i]
		if msg.Role == models.RoleSystem || msg.Pinned {
			keep[i] = true
			continue
		}
		cost := float64(EstimateMessageTokens(msg, margin))
		if cost > remaining {
			continue
		}
		keep[i] = true
		remaining -= cost
	}
	return keep
}
