package config

import (
	"time"

	"github.com/loomrun/loom/pkg/models"
)

// SessionConfig configures the Turn Processor's process-wide knobs plus the
// deployment-wide defaults a newly created models.Agent inherits for its
// Context Filter and max_turns ceiling when the caller creating the agent
// doesn't set them explicitly.
type SessionConfig struct {
	// TurnTimeout bounds a single Processor.Process call: long enough to
	// cover a slow model response plus whatever tool calls it triggers.
	TurnTimeout time.Duration `yaml:"turn_timeout"`

	// DefaultMaxTurns seeds models.Agent.MaxTurns for agents created without
	// an explicit ceiling.
	DefaultMaxTurns int `yaml:"default_max_turns"`

	// DefaultContextStrategy seeds models.Agent.ContextStrategy.
	DefaultContextStrategy models.ContextStrategy `yaml:"default_context_strategy"`

	// DefaultContextThreshold seeds models.Agent.ContextThreshold, in [0,1]
	// of the model's context window.
	DefaultContextThreshold float64 `yaml:"default_context_threshold"`
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.TurnTimeout == 0 {
		cfg.TurnTimeout = 10 * time.Minute
	}
	if cfg.DefaultMaxTurns == 0 {
		cfg.DefaultMaxTurns = 50
	}
	if cfg.DefaultContextStrategy == "" {
		cfg.DefaultContextStrategy = models.ContextStrategySlidingWindow
	}
	if cfg.DefaultContextThreshold == 0 {
		cfg.DefaultContextThreshold = 0.8
	}
}

func validateSession(cfg *SessionConfig) []string {
	var issues []string
	if cfg.TurnTimeout < 0 {
		issues = append(issues, "session.turn_timeout must be >= 0")
	}
	if cfg.DefaultMaxTurns < 0 {
		issues = append(issues, "session.default_max_turns must be >= 0")
	}
	if cfg.DefaultContextThreshold < 0 || cfg.DefaultContextThreshold > 1 {
		issues = append(issues, "session.default_context_threshold must be between 0 and 1")
	}
	switch cfg.DefaultContextStrategy {
	case "", models.ContextStrategyNoop, models.ContextStrategySlidingWindow, models.ContextStrategyTokenBudget, models.ContextStrategySummarization:
	default:
		issues = append(issues, "session.default_context_strategy must be a known Context Filter strategy")
	}
	return issues
}
