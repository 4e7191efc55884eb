package providers

import (
	"github.com/loomrun/loom/internal/loomerr"
)

// VLLMConfig configures the vLLM driver. vLLM serves an OpenAI-compatible
// chat completions endpoint, so this is a thin wrapper over OpenAI that
// fixes the driver's reported name and requires an explicit BaseURL rather
// than reimplementing the wire format.
type VLLMConfig struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
}

// NewVLLM constructs a Backend Driver for a self-hosted vLLM server.
func NewVLLM(cfg VLLMConfig) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		return nil, loomerr.NewValidationError("base_url", "vllm driver requires a base URL")
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "vllm-local"
	}

	drv, err := NewOpenAI(OpenAIConfig{APIKey: apiKey, BaseURL: cfg.BaseURL, DefaultModel: cfg.DefaultModel})
	if err != nil {
		return nil, err
	}
	drv.Base = NewBase("vllm")
	return drv, nil
}
