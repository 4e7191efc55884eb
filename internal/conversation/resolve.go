package conversation

import (
	"fmt"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/pkg/models"
)

// Default values a ModelConfig's zero fields fall through to. These are the
// conversation engine's own defaults, layered beneath whatever the agent's
// sparse ModelConfig sets; driver-level defaults (API keys, default model,
// base URL) are resolved earlier, at driver construction time, from
// environment/config.
const (
	defaultTemperature    = 1.0
	defaultMaxTokens      = 4096
	defaultTopP           = 1.0
	defaultTimeoutSeconds = 120
)

// normalizeParams layers agent.ModelConfig (sparse; zero value means
// "unset") over the engine's baseline defaults. It does not yet know the
// bound driver's context limit; ResolveDriver clamps ContextLength in a
// second pass once the driver can report it.
func normalizeParams(cfg models.ModelConfig) models.NormalizedModelConfig {
	out := models.NormalizedModelConfig{
		Model:          cfg.Model,
		Temperature:    defaultTemperature,
		MaxTokens:      defaultMaxTokens,
		TopP:           defaultTopP,
		TimeoutSeconds: defaultTimeoutSeconds,
	}
	if cfg.Temperature != nil {
		out.Temperature = *cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		out.MaxTokens = cfg.MaxTokens
	}
	if cfg.TopP != nil {
		out.TopP = *cfg.TopP
	}
	if cfg.TopK > 0 {
		out.TopK = cfg.TopK
	}
	if cfg.TimeoutSeconds > 0 {
		out.TimeoutSeconds = cfg.TimeoutSeconds
	}
	return out
}

// ResolveDriver looks up the agent's backend and produces a
// NormalizedModelConfig bound to it via WithConfig.
//
// Binding happens twice: a first, provisional bind bottoms out ContextLength
// at 0 so ContextLimit() can be queried against the driver's own knowledge
// of the model; if the requested value (currently always 0, since no layer
// above sets ContextLength explicitly — it is reported, not requested)
// would exceed that limit, a warning is recorded and the value is clamped.
// The final bind carries the clamped config, preserving the invariant that
// a conversation's context_length never exceeds its driver's context_limit
// for the bound model.
func ResolveDriver(agentCfg models.Agent, registry *DriverRegistry) (agent.Driver, models.NormalizedModelConfig, error) {
	unconfigured, err := registry.Resolve(agentCfg.AIBackend)
	if err != nil {
		return nil, models.NormalizedModelConfig{}, err
	}

	cfg := normalizeParams(agentCfg.ModelConfig)
	probe := unconfigured.WithConfig(cfg)
	limit := probe.ContextLimit()

	switch {
	case cfg.ContextLength == 0:
		cfg.ContextLength = limit
	case limit > 0 && cfg.ContextLength > limit:
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf(
			"context_length %d exceeds driver limit %d for model %q; clamped",
			cfg.ContextLength, limit, cfg.Model))
		cfg.ContextLength = limit
	}

	bound := unconfigured.WithConfig(cfg)
	return bound, cfg, nil
}
