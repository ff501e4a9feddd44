package config

import (
	"fmt"
	"time"
)

// LoadProfile returns a configuration preset for a named deployment profile.
// Environment variables still override profile values.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name

	switch name {
	case "development":
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	case "testing":
		cfg.Environment = EnvTesting
		cfg.Storage.Adapter = "memory"
		cfg.Logging.Level = "warn"
	case "staging":
		cfg.Environment = EnvStaging
		cfg.Security.EnableRateLimit = true
	case "production":
		cfg.Environment = EnvProduction
		cfg.Security.EnableRateLimit = true
		cfg.Server.ShutdownTimeout = 60 * time.Second
	default:
		return nil, fmt.Errorf("unknown profile: %s", name)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
