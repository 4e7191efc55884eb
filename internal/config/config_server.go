package config

// ServerConfig configures the HTTP listener that serves the synchronous
// endpoints (internal/httpapi) and the Streaming Endpoint
// (internal/streaming), plus the Prometheus metrics listener. There is no
// gRPC port to configure.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9090
	}
}
