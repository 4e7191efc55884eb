package config

import "time"

// DatabaseConfig configures the Postgres-compatible store
// (internal/storage.NewCockroachStoresFromDSN, backed by lib/pq) that holds
// Agents and Conversations once a deployment moves off the in-memory stores.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = 2 * time.Minute
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
}

func validateDatabase(cfg *DatabaseConfig) []string {
	var issues []string
	if cfg.MaxOpenConns < 0 {
		issues = append(issues, "database.max_open_conns must be >= 0")
	}
	if cfg.MaxIdleConns < 0 {
		issues = append(issues, "database.max_idle_conns must be >= 0")
	}
	return issues
}
