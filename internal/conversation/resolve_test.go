package conversation

import (
	"testing"

	"github.com/loomrun/loom/internal/agent/providers"
	"github.com/loomrun/loom/pkg/models"
)

func TestNormalizeParams_Defaults(t *testing.T) {
	out := normalizeParams(models.ModelConfig{Model: "fake-model"})

	if out.Model != "fake-model" {
		t.Errorf("Model = %q, want fake-model", out.Model)
	}
	if out.Temperature != defaultTemperature {
		t.Errorf("Temperature = %v, want %v", out.Temperature, defaultTemperature)
	}
	if out.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", out.MaxTokens, defaultMaxTokens)
	}
	if out.TopP != defaultTopP {
		t.Errorf("TopP = %v, want %v", out.TopP, defaultTopP)
	}
	if out.TimeoutSeconds != defaultTimeoutSeconds {
		t.Errorf("TimeoutSeconds = %d, want %d", out.TimeoutSeconds, defaultTimeoutSeconds)
	}
}

func TestNormalizeParams_OverridesLayerOverDefaults(t *testing.T) {
	temp := 0.2
	topP := 0.5
	out := normalizeParams(models.ModelConfig{
		Model:          "fake-model",
		Temperature:    &temp,
		MaxTokens:      2048,
		TopP:           &topP,
		TopK:           40,
		TimeoutSeconds: 60,
	})

	if out.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", out.Temperature)
	}
	if out.MaxTokens != 2048 {
		t.Errorf("MaxTokens = %d, want 2048", out.MaxTokens)
	}
	if out.TopP != 0.5 {
		t.Errorf("TopP = %v, want 0.5", out.TopP)
	}
	if out.TopK != 40 {
		t.Errorf("TopK = %d, want 40", out.TopK)
	}
	if out.TimeoutSeconds != 60 {
		t.Errorf("TimeoutSeconds = %d, want 60", out.TimeoutSeconds)
	}
}

func TestResolveDriver_AdoptsDriverContextLimitWhenUnset(t *testing.T) {
	reg := NewDriverRegistry()
	reg.Register("fake", providers.NewFake())

	agentCfg := models.Agent{
		AIBackend:   "fake",
		ModelConfig: models.ModelConfig{Model: "fake-model"},
	}

	driver, cfg, err := ResolveDriver(agentCfg, reg)
	if err != nil {
		t.Fatalf("ResolveDriver() error = %v", err)
	}
	if driver == nil {
		t.Fatal("ResolveDriver() returned a nil driver")
	}
	if cfg.ContextLength != 100000 {
		t.Errorf("ContextLength = %d, want the fake driver's default 100000", cfg.ContextLength)
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", cfg.Warnings)
	}
}

func TestResolveDriver_UnknownBackend(t *testing.T) {
	reg := NewDriverRegistry()
	agentCfg := models.Agent{AIBackend: "nonexistent"}

	_, _, err := ResolveDriver(agentCfg, reg)
	if err == nil {
		t.Fatal("ResolveDriver() with an unknown backend: want error, got nil")
	}
}
