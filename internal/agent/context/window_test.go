package context

import "testing"

func TestContextWindowForModel_ExactMatch(t *testing.T) {
	tokens, ok := ContextWindowForModel("gpt-4o")
	if !ok || tokens != 128000 {
		t.Fatalf("ContextWindowForModel(gpt-4o) = (%d, %v), want (128000, true)", tokens, ok)
	}
}

func TestContextWindowForModel_PrefixMatch(t *testing.T) {
	tokens, ok := ContextWindowForModel("claude-3-5-sonnet-20241022")
	if !ok || tokens != 200000 {
		t.Fatalf("ContextWindowForModel(claude-3-5-sonnet-20241022) = (%d, %v), want (200000, true)", tokens, ok)
	}
}

func TestContextWindowForModel_LongestPrefixWins(t *testing.T) {
	tokens, ok := ContextWindowForModel("gpt-3.5-turbo-16k-0613")
	if !ok || tokens != 16385 {
		t.Fatalf("ContextWindowForModel(gpt-3.5-turbo-16k-0613) = (%d, %v), want (16385, true)", tokens, ok)
	}
}

func TestContextWindowForModel_Unknown(t *testing.T) {
	if _, ok := ContextWindowForModel("some-bespoke-model"); ok {
		t.Fatalf("expected no match for an unregistered model")
	}
}

func TestRegisterContextWindow(t *testing.T) {
	RegisterContextWindow("loom-test-model", 4096)
	tokens, ok := ContextWindowForModel("loom-test-model")
	if !ok || tokens != 4096 {
		t.Fatalf("ContextWindowForModel(loom-test-model) = (%d, %v), want (4096, true)", tokens, ok)
	}
}

func TestBudget_RemainingFloorsAtZero(t *testing.T) {
	b := NewBudget(100, "test")
	b.Add(500)
	if got := b.Remaining(); got != 0 {
		t.Errorf("Remaining() = %d, want 0", got)
	}
}

func TestBudget_CanFit(t *testing.T) {
	b := NewBudget(1000, "test")
	b.SetUsed(900)
	if b.CanFit(200) {
		t.Errorf("expected 200 more tokens not to fit with 100 remaining")
	}
	if !b.CanFit(100) {
		t.Errorf("expected exactly 100 more tokens to fit with 100 remaining")
	}
}

func TestBudget_NonPositiveTotalFallsBackToDefault(t *testing.T) {
	b := NewBudget(0, "ignored")
	info := b.Info()
	if info.TotalTokens != 128000 || info.Source != "default" {
		t.Fatalf("Info() = %+v, want TotalTokens=128000 Source=default", info)
	}
}

func TestBudget_Info_StatusTransitions(t *testing.T) {
	b := NewBudget(10000, "test")

	b.SetUsed(100)
	if got := b.Info().Status(); got != "ok" {
		t.Errorf("Status() = %q, want ok", got)
	}

	b.SetUsed(9500)
	if got := b.Info().Status(); got != "low" {
		t.Errorf("Status() = %q, want low", got)
	}

	b.SetUsed(10000)
	if got := b.Info().Status(); got != "exhausted" {
		t.Errorf("Status() = %q, want exhausted", got)
	}
}

func TestNewBudgetForModel_KnownModel(t *testing.T) {
	b := NewBudgetForModel("gpt-4o-mini")
	if got := b.Info().TotalTokens; got != 128000 {
		t.Errorf("TotalTokens = %d, want 128000", got)
	}
}

func TestNewBudgetForModel_UnknownModelUsesDefault(t *testing.T) {
	b := NewBudgetForModel("a-model-that-does-not-exist")
	info := b.Info()
	if info.TotalTokens != 128000 || info.Source != "default" {
		t.Fatalf("Info() = %+v, want TotalTokens=128000 Source=default", info)
	}
}

func TestBudget_Reset(t *testing.T) {
	b := NewBudget(1000, "test")
	b.Add(500)
	b.Reset()
	if got := b.Info().UsedTokens; got != 0 {
		t.Errorf("UsedTokens after Reset() = %d, want 0", got)
	}
}
