// Package config loads Loom's layered YAML configuration: strict
// (KnownFields) yaml.v3 decoding, $-env expansion, a small set of
// environment-variable overrides, then defaulting and validation passes,
// one function per concern.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Config is the root configuration structure for the conversation engine:
// enough to stand up the HTTP/streaming surface, the backend drivers, the
// turn processor's timeouts, and logging.
type Config struct {
	// Version pins the config file's schema generation. Omitted or 0 means
	// "written before versioning" and is treated as CurrentVersion; set
	// explicitly once a future schema change needs ValidateVersion's
	// upgrade-path message.
	Version int `yaml:"version"`

	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Session  SessionConfig  `yaml:"session"`
	Tools    ToolsConfig    `yaml:"tools"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Load reads path, resolving any $include directives (loader.go) and
// expanding $VAR references, decodes strictly (unknown keys are a load
// error), applies environment overrides, fills defaults, then validates.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfgPtr, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	cfg := *cfgPtr

	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	} else if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyLLMDefaults(&cfg.LLM)
	applySessionDefaults(&cfg.Session)
	applyToolsDefaults(&cfg.Tools)
	applyLoggingDefaults(&cfg.Logging)
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if value := strings.TrimSpace(os.Getenv("LOOM_HOST")); value != "" {
		cfg.Server.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("LOOM_HTTP_PORT")); value != "" {
		if parsed, ok := parsePort(value); ok {
			cfg.Server.HTTPPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("LOOM_METRICS_PORT")); value != "" {
		if parsed, ok := parsePort(value); ok {
			cfg.Server.MetricsPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("DATABASE_URL")); value != "" {
		cfg.Database.URL = value
	}
	for provider, envVar := range map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
	} {
		value := strings.TrimSpace(os.Getenv(envVar))
		if value == "" {
			continue
		}
		if cfg.LLM.Providers == nil {
			cfg.LLM.Providers = map[string]LLMProviderConfig{}
		}
		entry := cfg.LLM.Providers[provider]
		entry.APIKey = value
		cfg.LLM.Providers[provider] = entry
	}
}

func parsePort(value string) (int, bool) {
	var parsed int
	if _, err := fmt.Sscanf(value, "%d", &parsed); err != nil {
		return 0, false
	}
	return parsed, true
}

// ConfigValidationError collects every validation issue found so an operator
// fixes them in one pass instead of one restart per mistake.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string
	issues = append(issues, validateSession(&cfg.Session)...)
	issues = append(issues, validateLLM(&cfg.LLM)...)
	issues = append(issues, validateTools(&cfg.Tools)...)
	issues = append(issues, validateDatabase(&cfg.Database)...)

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
