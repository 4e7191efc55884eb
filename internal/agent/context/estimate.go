// Package context implements the Context Filter: the strategies that trim a
// conversation's message history to fit a model's context window before a
// Backend Driver call, and the content-aware token estimator they share.
package context

import (
	"encoding/json"
	"strings"

	"github.com/loomrun/loom/pkg/models"
)

// DefaultSafetyMargin shrinks every estimate to guard against
// undercounting a model's actual token usage.
const DefaultSafetyMargin = 0.9

const (
	jsonCharsPerToken  = 2.5
	codeCharsPerToken  = 3.0
	proseCharsPerToken = 4.0
)

// EstimateTokens estimates the token count of a block of text using a
// content-aware divisor: JSON-like content averages 2.5 chars/token,
// code-like content 3.0, and everything else (prose) 4.0.
func EstimateTokens(text string, safetyMargin float64) int {
	if text == "" {
		return 0
	}
	if safetyMargin <= 0 {
		safetyMargin = DefaultSafetyMargin
	}
	divisor := classify(text)
	raw := float64(len(text)) / divisor
	return int(raw / safetyMargin)
}

func classify(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if looksLikeJSON(trimmed) {
		return jsonCharsPerToken
	}
	if looksLikeCode(trimmed) {
		return codeCharsPerToken
	}
	return proseCharsPerToken
}

func looksLikeJSON(trimmed string) bool {
	if trimmed == "" {
		return false
	}
	first := trimmed[0]
	if first != '{' && first != '[' {
		return false
	}
	return json.Valid([]byte(trimmed))
}

func looksLikeCode(trimmed string) bool {
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "```") {
		return true
	}
	indicators := 0
	if strings.Contains(trimmed, "func ") || strings.Contains(trimmed, "def ") ||
		strings.Contains(trimmed, "class ") || strings.Contains(trimmed, "=>") {
		indicators++
	}
	braces := strings.Count(trimmed, "{") + strings.Count(trimmed, "}")
	if braces >= 2 {
		indicators++
	}
	semicolons := strings.Count(trimmed, ";")
	if semicolons >= 2 {
		indicators++
	}
	return indicators >= 2
}

// EstimateMessageTokens estimates and caches a ChatMessage's token count in
// its TokenCount field. A message whose TokenCount is already populated is
// trusted rather than recomputed.
func EstimateMessageTokens(msg *models.ChatMessage, safetyMargin float64) int {
	if msg.TokenCount > 0 {
		return msg.TokenCount
	}

	total := EstimateTokens(msg.Content, safetyMargin)
	for _, tc := range msg.ToolCalls {
		total += EstimateTokens(tc.Name, safetyMargin)
		total += EstimateTokens(string(tc.Arguments), safetyMargin)
	}
	if msg.Thinking != "" {
		total += EstimateTokens(msg.Thinking, safetyMargin)
	}

	msg.TokenCount = total
	return total
}
