package config

// LoggingConfig configures internal/observability's slog-based logger.
// Metrics has no separate enabled flag: the /metrics listener always binds
// on Server.MetricsPort.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}
