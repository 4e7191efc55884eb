package config

import "time"

// ToolsConfig configures the Tool Dispatcher (internal/tooldispatch): the
// two knobs tooldispatch.Config actually exposes. Turns are single-attempt,
// so there is no retry/backoff section.
type ToolsConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	PerToolTimeout time.Duration `yaml:"per_tool_timeout"`
}

func applyToolsDefaults(cfg *ToolsConfig) {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if cfg.PerToolTimeout == 0 {
		cfg.PerToolTimeout = 30 * time.Second
	}
}

func validateTools(cfg *ToolsConfig) []string {
	var issues []string
	if cfg.Concurrency < 0 {
		issues = append(issues, "tools.concurrency must be >= 0")
	}
	if cfg.PerToolTimeout < 0 {
		issues = append(issues, "tools.per_tool_timeout must be >= 0")
	}
	return issues
}
