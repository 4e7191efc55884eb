package context

import (
	gocontext "context"
	"fmt"

	"github.com/google/uuid"
	"github.com/loomrun/loom/pkg/models"
)

const defaultSummarizationThreshold = 0.8

// summarizeRecursive repeatedly collapses the oldest contiguous
// summarizable block into a single synthetic system message until total
// estimated tokens fall under threshold or fewer than MinMessages
// summarizable messages remain.
func summarizeRecursive(ctx gocontext.Context, req Request) ([]models.ChatMessage, error) {
	if req.Summarizer == nil {
		return nil, fmt.Errorf("summarization strategy requires a Summarizer")
	}

	minMessages := req.Options.MinMessages
	if minMessages <= 0 {
		minMessages = 1
	}
	targetTokens := req.Options.TargetTokens
	if targetTokens <= 0 {
		targetTokens = 500
	}
	threshold := req.Options.SummarizationThreshold
	if threshold <= 0 {
		threshold = defaultSummarizationThreshold
	}
	margin := req.Options.safetyMargin()

	messages := append([]models.ChatMessage(nil), req.Messages...)

	for {
		total := req.SystemPromptTokens + req.ToolSchemaTokens
		for i := range messages {
			total += EstimateMessageTokens(&messages[i], margin)
		}
		if req.ContextLimit > 0 && float64(total) <= threshold*float64(req.ContextLimit) {
			return messages, nil
		}

		start, end, ok := oldestSummarizableBlock(messages, minMessages)
		if !ok {
			return messages, nil
		}

		summary, err := req.Summarizer.Summarize(ctx, messages[start:end], targetTokens)
		if err != nil {
			return nil, fmt.Errorf("summarize block [%d,%d): %w", start, end, err)
		}

		summaryMsg := models.ChatMessage{
			ID:      uuid.NewString(),
			Role:    models.RoleSystem,
			Content: summary,
		}
		summaryMsg.TokenCount = EstimateMessageTokens(&summaryMsg, margin)

		replaced := make([]models.ChatMessage, 0, len(messages)-(end-start)+1)
		replaced = append(replaced, messages[:start]...)
		replaced = append(replaced, summaryMsg)
		replaced = append(replaced, messages[end:]...)
		messages = replaced
	}
}

// oldestSummarizableBlock finds the oldest contiguous run of at least
// minMessages messages that are neither pinned nor already a system
// message, expanded at the edges so no tool-call/tool-result pair is split
// (P3 applies to summarization too).
func oldestSummarizableBlock(messages []models.ChatMessage, minMessages int) (start, end int, ok bool) {
	callIndex := map[string]int{}
	for i, msg := range messages {
		for _, tc := range msg.ToolCalls {
			callIndex[tc.ID] = i
		}
	}

	start = -1
	runEnd := 0
	for i, msg := range messages {
		if msg.Role == models.RoleSystem || msg.Pinned {
			if start >= 0 {
				break
			}
			continue
		}
		if start < 0 {
			start = i
		}
		runEnd = i + 1
	}
	if start < 0 || runEnd-start < minMessages {
		return 0, 0, false
	}

	// Take only the oldest minMessages of the candidate run, leaving
	// everything newer untouched for this pass; the caller recurses if
	// another pass is still needed.
	end = start + minMessages
	if end > runEnd {
		end = runEnd
	}

	// Expand end to include any tool result whose caller falls inside the
	// block, and any caller whose tool result falls inside the block.
	for {
		expanded := false
		for i := start; i < end; i++ {
			msg := messages[i]
			if msg.Role == models.RoleTool && msg.ToolCallID != "" {
				if callerIdx, found := callIndex[msg.ToolCallID]; found && callerIdx >= end {
					end = callerIdx + 1
					expanded = true
				}
			}
		}
		for i, msg := range messages {
			if i < start || i >= end {
				continue
			}
			for _, tc := range msg.ToolCalls {
				for j := end; j < len(messages); j++ {
					if messages[j].Role == models.RoleTool && messages[j].ToolCallID == tc.ID {
						end = j + 1
						expanded = true
					}
				}
			}
		}
		if !expanded {
			break
		}
	}

	return start, end, true
}
