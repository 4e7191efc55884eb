package providers

import (
	"github.com/loomrun/loom/internal/loomerr"
)

// HuggingFaceConfig configures the HuggingFace driver. Text Generation
// Inference (TGI) and Hugging Face's Inference Endpoints both expose an
// OpenAI-compatible messages API, so this is a thin wrapper over OpenAI at a
// custom BaseURL, same pattern as vllm.go.
type HuggingFaceConfig struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
}

// NewHuggingFace constructs a Backend Driver for a HuggingFace TGI endpoint.
func NewHuggingFace(cfg HuggingFaceConfig) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		return nil, loomerr.NewValidationError("base_url", "huggingface driver requires a base URL")
	}
	if cfg.APIKey == "" {
		return nil, loomerr.NewValidationError("api_key", "huggingface driver requires an API key")
	}

	drv, err := NewOpenAI(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, DefaultModel: cfg.DefaultModel})
	if err != nil {
		return nil, err
	}
	drv.Base = NewBase("huggingface")
	return drv, nil
}
