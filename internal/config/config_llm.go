package config

import "strings"

// LLMConfig configures the Backend Driver registry: which provider answers
// a turn by default, how each provider authenticates, and which providers
// to try next if the default one fails.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`

	// FallbackChain lists provider IDs to try, in order, if DefaultProvider's
	// driver returns a BackendError.
	FallbackChain []string `yaml:"fallback_chain"`
}

// LLMProviderConfig configures a single backend driver: Anthropic and OpenAI
// read APIKey/BaseURL directly (anthropic-sdk-go, sashabaranov/go-openai);
// a self-hosted vLLM or HuggingFace TGI endpoint only needs BaseURL.
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "anthropic"
	}
}

func validateLLM(cfg *LLMConfig) []string {
	var issues []string
	defaultProvider := strings.ToLower(strings.TrimSpace(cfg.DefaultProvider))
	if defaultProvider == "" {
		return issues
	}
	if _, ok := cfg.Providers[defaultProvider]; ok {
		return issues
	}
	if _, ok := cfg.Providers[cfg.DefaultProvider]; ok {
		return issues
	}
	issues = append(issues, "llm.providers missing entry for default_provider \""+cfg.DefaultProvider+"\"")
	return issues
}
