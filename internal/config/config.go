// Package config loads and validates swarm configuration. The core
// consumes the validated Config value; file parsing lives only here.
//
// Configuration is read from .claudeswarm.yaml or .claudeswarm.toml at the
// project root. Missing files yield defaults; present files are merged
// over defaults and validated.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/claudeswarm/claudeswarm/internal/validate"
)

// Backend provider names.
const (
	ProviderAuto     = "auto"
	ProviderTmux     = "tmux"
	ProviderFileDrop = "filedrop"
)

// RateLimitConfig bounds per-sender message throughput.
type RateLimitConfig struct {
	MaxMessages   int `yaml:"max_messages" toml:"max_messages"`
	WindowSeconds int `yaml:"window_seconds" toml:"window_seconds"`
}

// DashboardConfig configures the optional read-only web dashboard.
type DashboardConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

// Config is the validated configuration consumed by the coordination core.
type Config struct {
	// SessionName labels this swarm in ACTIVE_AGENTS.json.
	SessionName string `yaml:"session_name" toml:"session_name"`

	// Provider selects the terminal backend: auto, tmux, or filedrop.
	Provider string `yaml:"provider" toml:"provider"`

	// StaleThresholdSeconds is how long a previously seen agent survives
	// in the registry after it stops being discovered.
	StaleThresholdSeconds int `yaml:"stale_threshold_seconds" toml:"stale_threshold_seconds"`

	// LockStaleTimeoutSeconds is the age past which a file lock is
	// treated as abandoned.
	LockStaleTimeoutSeconds int `yaml:"lock_stale_timeout_seconds" toml:"lock_stale_timeout_seconds"`

	// LockAcquireTimeoutSeconds bounds waiting for OS advisory locks.
	LockAcquireTimeoutSeconds int `yaml:"lock_acquire_timeout_seconds" toml:"lock_acquire_timeout_seconds"`

	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`

	// SharedSecret, when set, HMAC-signs persisted message log records.
	// Key distribution is the operator's problem.
	SharedSecret string `yaml:"shared_secret" toml:"shared_secret"`

	Dashboard DashboardConfig `yaml:"dashboard" toml:"dashboard"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SessionName:               "claude-swarm",
		Provider:                  ProviderAuto,
		StaleThresholdSeconds:     60,
		LockStaleTimeoutSeconds:   600,
		LockAcquireTimeoutSeconds: 5,
		RateLimit: RateLimitConfig{
			MaxMessages:   10,
			WindowSeconds: 60,
		},
		Dashboard: DashboardConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
	}
}

// Load reads configuration from the project root, trying the YAML file
// first and the TOML file second. A root with neither yields defaults.
func Load(root string) (*Config, error) {
	cfg := Default()

	yamlPath := filepath.Join(root, ".claudeswarm.yaml")
	if data, err := os.ReadFile(yamlPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", yamlPath, err)
		}
		return cfg, cfg.Validate()
	}

	tomlPath := filepath.Join(root, ".claudeswarm.toml")
	if data, err := os.ReadFile(tomlPath); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", tomlPath, err)
		}
		return cfg, cfg.Validate()
	}

	return cfg, nil
}

// Validate checks every bounded field.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderAuto, ProviderTmux, ProviderFileDrop:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.StaleThresholdSeconds < 10 || c.StaleThresholdSeconds > 3600 {
		return fmt.Errorf("stale_threshold_seconds %d outside [10, 3600]", c.StaleThresholdSeconds)
	}
	if err := validate.Timeout(c.LockStaleTimeoutSeconds); err != nil {
		return fmt.Errorf("lock_stale_timeout_seconds: %w", err)
	}
	if err := validate.Timeout(c.LockAcquireTimeoutSeconds); err != nil {
		return fmt.Errorf("lock_acquire_timeout_seconds: %w", err)
	}
	if err := validate.RateLimit(c.RateLimit.MaxMessages, c.RateLimit.WindowSeconds); err != nil {
		return err
	}
	if err := validate.Port(c.Dashboard.Port); err != nil {
		return fmt.Errorf("dashboard port: %w", err)
	}
	if err := validate.Host(c.Dashboard.Host); err != nil {
		return fmt.Errorf("dashboard host: %w", err)
	}
	return nil
}
