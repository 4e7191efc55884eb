package context

import (
	"context"
	"errors"
	"testing"

	"github.com/loomrun/loom/pkg/models"
)

type fakeSummarizer struct {
	calls     int
	summaries []string
	err       error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, messages []models.ChatMessage, targetTokens int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls
	f.calls++
	if idx < len(f.summaries) {
		return f.summaries[idx], nil
	}
	return "summary", nil
}

func bigFiller(n int) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, msg(models.RoleUser, "a long message repeated to push the conversation over its context threshold"))
	}
	return out
}

func TestSummarizeRecursive_CollapsesOldestBlock(t *testing.T) {
	messages := append([]models.ChatMessage{msg(models.RoleSystem, "sys")}, bigFiller(30)...)
	messages = append(messages, msg(models.RoleUser, "latest"))

	summarizer := &fakeSummarizer{}
	out, err := Apply(context.Background(), Request{
		Messages:     messages,
		ContextLimit: 200,
		Strategy:     StrategySummarization,
		Options:      Options{MinMessages: 5, TargetTokens: 50},
		Summarizer:   summarizer,
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if summarizer.calls == 0 {
		t.Fatal("expected the summarizer to be invoked")
	}
	if len(out) >= len(messages) {
		t.Fatalf("expected the message count to shrink, got %d from %d", len(out), len(messages))
	}
	if out[0].Role != models.RoleSystem || out[0].Content != "sys" {
		t.Error("original system prompt should remain first")
	}
	if out[len(out)-1].Content != "latest" {
		t.Error("most recent message should survive untouched")
	}
}

func TestSummarizeRecursive_NoSummarizerErrors(t *testing.T) {
	messages := []models.ChatMessage{msg(models.RoleUser, "hi")}
	out, err := Apply(context.Background(), Request{
		Messages:     messages,
		ContextLimit: 10,
		Strategy:     StrategySummarization,
	})
	if err == nil {
		t.Fatal("expected an error when no Summarizer is configured")
	}
	if len(out) != len(messages) {
		t.Error("fail-open must return all messages")
	}
}

func TestSummarizeRecursive_PropagatesSummarizerError(t *testing.T) {
	messages := append([]models.ChatMessage{msg(models.RoleSystem, "sys")}, bigFiller(10)...)
	summarizer := &fakeSummarizer{err: errors.New("backend unavailable")}

	out, err := Apply(context.Background(), Request{
		Messages:     messages,
		ContextLimit: 50,
		Strategy:     StrategySummarization,
		Options:      Options{MinMessages: 3},
		Summarizer:   summarizer,
	})
	if err == nil {
		t.Fatal("expected the summarizer error to surface as ContextFilterResolutionFailed")
	}
	if len(out) != len(messages) {
		t.Error("fail-open must return all original messages on error")
	}
}

func TestOldestSummarizableBlock_SkipsPinnedAndSystem(t *testing.T) {
	pinned := msg(models.RoleUser, "pinned")
	pinned.Pinned = true
	messages := []models.ChatMessage{
		msg(models.RoleSystem, "sys"),
		pinned,
		msg(models.RoleUser, "a"),
		msg(models.RoleUser, "b"),
		msg(models.RoleUser, "c"),
	}
	start, end, ok := oldestSummarizableBlock(messages, 2)
	if !ok {
		t.Fatal("expected a summarizable block")
	}
	if start != 2 || end != 4 {
		t.Errorf("block = [%d,%d), want [2,4) (oldest minMessages of the run, skipping system/pinned)", start, end)
	}
}
