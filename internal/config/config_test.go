package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  extra: true
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadValidatesDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: openai
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("expected default_provider error, got %v", err)
	}
}

func TestLoadValidatesContextThreshold(t *testing.T) {
	path := writeConfig(t, `
session:
  default_context_threshold: 1.5
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_context_threshold") {
		t.Fatalf("expected default_context_threshold error, got %v", err)
	}
}

func TestLoadValidatesContextStrategy(t *testing.T) {
	path := writeConfig(t, `
session:
  default_context_strategy: nope
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_context_strategy") {
		t.Fatalf("expected default_context_strategy error, got %v", err)
	}
}

func TestLoadValidatesTurnTimeout(t *testing.T) {
	path := writeConfig(t, `
session:
  turn_timeout: -5s
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "turn_timeout") {
		t.Fatalf("expected turn_timeout error, got %v", err)
	}
}

func TestLoadValidatesToolsConcurrency(t *testing.T) {
	path := writeConfig(t, `
tools:
  concurrency: -1
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "tools.concurrency") {
		t.Fatalf("expected tools.concurrency error, got %v", err)
	}
}

func TestLoadValidatesDatabaseMaxOpenConns(t *testing.T) {
	path := writeConfig(t, `
database:
  max_open_conns: -1
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "database.max_open_conns") {
		t.Fatalf("expected database.max_open_conns error, got %v", err)
	}
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
session:
  turn_timeout: 5m
  default_max_turns: 25
  default_context_strategy: sliding_window
  default_context_threshold: 0.75
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}
	if cfg.Session.DefaultMaxTurns != 25 {
		t.Fatalf("expected default_max_turns 25, got %d", cfg.Session.DefaultMaxTurns)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("expected default host, got %q", cfg.Server.Host)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Fatalf("expected default http_port 8080, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Session.TurnTimeout.String() != "10m0s" {
		t.Fatalf("expected default turn_timeout 10m0s, got %s", cfg.Session.TurnTimeout)
	}
	if cfg.Tools.Concurrency != 4 {
		t.Fatalf("expected default tools concurrency 4, got %d", cfg.Tools.Concurrency)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("expected default logging level/format, got %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("LOOM_HOST", "127.0.0.1")
	t.Setenv("LOOM_HTTP_PORT", "9999")
	t.Setenv("DATABASE_URL", "postgres://override@localhost:26257/loom?sslmode=disable")

	path := writeConfig(t, `
server:
  host: 0.0.0.0
  http_port: 8080
database:
  url: postgres://default@localhost:26257/loom?sslmode=disable
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("expected host override, got %q", cfg.Server.Host)
	}
	if cfg.Server.HTTPPort != 9999 {
		t.Fatalf("expected http_port override, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Database.URL != "postgres://override@localhost:26257/loom?sslmode=disable" {
		t.Fatalf("expected database url override, got %q", cfg.Database.URL)
	}
}

func TestLoadAppliesProviderAPIKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-key")

	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "sk-test-key" {
		t.Fatalf("expected anthropic api key from env, got %q", cfg.LLM.Providers["anthropic"].APIKey)
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "loom.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
