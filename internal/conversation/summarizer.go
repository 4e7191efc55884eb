package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/loomrun/loom/internal/agent"
	agentcontext "github.com/loomrun/loom/internal/agent/context"
	"github.com/loomrun/loom/pkg/models"
)

// driverSummarizer implements agentcontext.Summarizer by invoking the same
// bound Driver the turn itself uses to summarize. The summarization call
// bypasses the Context Filter entirely: it is built directly here with its
// own one-shot request, never routed back through Apply.
type driverSummarizer struct {
	driver agent.Driver
}

var _ agentcontext.Summarizer = (*driverSummarizer)(nil)

// summarizePromptTemplate is left intentionally simple and configurable;
// this is the engine's default.
const summarizePromptTemplate = "Summarize the following conversation excerpt in at most %d tokens. Preserve any decisions, facts, or open questions a later turn would need; omit pleasantries."

func (s *driverSummarizer) Summarize(ctx context.Context, messages []models.ChatMessage, targetTokens int) (string, error) {
	var transcript strings.Builder
	for i := range messages {
		msg := &messages[i]
		fmt.Fprintf(&transcript, "%s: %s\n", msg.Role, msg.Content)
	}

	req := agent.Request{
		System:    fmt.Sprintf(summarizePromptTemplate, targetTokens),
		Messages:  []models.ChatMessage{{Role: models.RoleUser, Content: transcript.String()}},
		MaxTokens: targetTokens,
	}
	resp, err := s.driver.Execute(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
