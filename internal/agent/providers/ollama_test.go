package providers

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/internal/loomerr"
	"github.com/loomrun/loom/pkg/models"
)

func TestNewOllama_Defaults(t *testing.T) {
	drv := NewOllama(OllamaConfig{})
	if drv.baseURL != "http://localhost:11434" {
		t.Errorf("baseURL = %q, want default", drv.baseURL)
	}
}

func TestOllama_WithConfig_DoesNotMutateReceiver(t *testing.T) {
	drv := NewOllama(OllamaConfig{DefaultModel: "llama3"})
	_ = drv.WithConfig(models.NormalizedModelConfig{Model: "mistral"})

	if drv.model() != "llama3" {
		t.Error("WithConfig must not mutate the receiver")
	}
}

func TestOllama_ConvertMessages(t *testing.T) {
	drv := NewOllama(OllamaConfig{})

	msgs := []models.ChatMessage{
		{Role: models.RoleUser, Content: "hello"},
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call_1", Name: "lookup", Arguments: json.RawMessage(`{"q":"x"}`)},
			},
		},
		{Role: models.RoleTool, ToolCallID: "call_1", Content: "42"},
	}

	converted := drv.convertMessages(msgs, "be helpful")
	if len(converted) != 4 {
		t.Fatalf("converted length = %d, want 4", len(converted))
	}
	if converted[len(converted)-1].ToolName != "lookup" {
		t.Errorf("tool message ToolName = %q, want lookup (resolved from prior call)", converted[len(converted)-1].ToolName)
	}
}

func TestOllama_ConvertTools(t *testing.T) {
	drv := NewOllama(OllamaConfig{})
	tools := []agent.Tool{{Name: "web_search", Schema: json.RawMessage(`{"type":"object"}`)}}
	converted := drv.convertTools(tools)
	if len(converted) != 1 || converted[0].Function.Name != "web_search" {
		t.Fatalf("unexpected conversion: %+v", converted)
	}
}

func TestOllama_WrapError(t *testing.T) {
	drv := NewOllama(OllamaConfig{})
	wrapped := drv.wrapError(errors.New("connection refused"))

	var backendErr *loomerr.BackendError
	if !errors.As(wrapped, &backendErr) {
		t.Fatal("wrapError should produce a *loomerr.BackendError")
	}
	if backendErr.Kind != loomerr.BackendUnavailable {
		t.Errorf("Kind = %s, want %s", backendErr.Kind, loomerr.BackendUnavailable)
	}
}

func TestOllama_Capabilities(t *testing.T) {
	drv := NewOllama(OllamaConfig{})
	caps := drv.Capabilities()
	if !caps.SupportsTools || !caps.SupportsStreaming {
		t.Error("Ollama driver should support tools and streaming")
	}
	if caps.SupportsVision || caps.SupportsThinking {
		t.Error("Ollama driver should not claim vision/thinking by default")
	}
}

func TestOllama_ContextLimit_Default(t *testing.T) {
	drv := NewOllama(OllamaConfig{})
	if got := drv.ContextLimit(); got != 8192 {
		t.Errorf("ContextLimit() = %d, want 8192", got)
	}
}
