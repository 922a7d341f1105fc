// Package config provides application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	FrontendURL string `env:"FRONTEND_URL"`
	DBPath      string `env:"DB_PATH" envDefault:"./data/whackamole.db"`

	// ProfilesPath points at an optional YAML file overriding the
	// difficulty presets. Empty means built-in values.
	ProfilesPath string `env:"GAME_PROFILES_PATH"`

	// RoundTick is the cadence of the per-round countdown broadcast.
	RoundTick time.Duration `env:"ROUND_TICK" envDefault:"100ms"`

	// RoundGrace is how long a finished round may linger before the
	// janitor reclaims it.
	RoundGrace time.Duration `env:"ROUND_GRACE" envDefault:"1m"`

	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.RoundTick <= 0 {
		return fmt.Errorf("ROUND_TICK must be > 0")
	}
	if c.RoundGrace < 0 {
		return fmt.Errorf("ROUND_GRACE cannot be negative")
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("SHUTDOWN_GRACE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}
