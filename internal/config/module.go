package config

import (
	"fmt"

	"go.uber.org/fx"
)

// Overrides carries command line values that take precedence over the
// file and the environment.
type Overrides struct {
	Path         string
	WebSocketURL string
	APIURL       string
	ServerAddr   string
	MetricsAddr  string
	LogLevel     string
}

// Module provides *Config. Overrides must be supplied by the caller.
var Module = fx.Module("config",
	fx.Provide(New),
)

// New loads the configuration and applies the overrides on top.
func New(o Overrides) (*Config, error) {
	cfg, err := LoadConfig(o.Path)
	if err != nil {
		return nil, err
	}

	if o.WebSocketURL != "" {
		cfg.Device.WebSocketURL = o.WebSocketURL
	}
	if o.APIURL != "" {
		cfg.Device.APIURL = o.APIURL
	}
	if o.ServerAddr != "" {
		cfg.Server.Addr = o.ServerAddr
	}
	if o.MetricsAddr != "" {
		cfg.Metrics.Addr = o.MetricsAddr
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
