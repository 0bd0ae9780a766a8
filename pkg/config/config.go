// Package config loads session settings from YAML files. Values may
// reference environment variables with ${VAR}, which are expanded before
// parsing.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration for a session.
type Config struct {
	// Address is the ws:// or wss:// endpoint to maintain a session with.
	Address string `yaml:"address"`

	// ReconnectInterval is the fixed delay before each reconnect attempt.
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`

	// HeartbeatInterval is the liveness probe period while open.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// DialRetries and DialRetryDelay configure handshake retries inside a
	// single connect attempt. A retry count of 1 means no retry.
	DialRetries    uint          `yaml:"dial_retries"`
	DialRetryDelay time.Duration `yaml:"dial_retry_delay"`

	// SendLimit/SendInterval cap outbound message issuance. A zero limit
	// disables rate limiting.
	SendLimit    int           `yaml:"send_limit"`
	SendInterval time.Duration `yaml:"send_interval"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with the standard session intervals.
func (c *Config) ApplyDefaults() {
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 15 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.DialRetries == 0 {
		c.DialRetries = 1
	}
	if c.SendLimit > 0 && c.SendInterval <= 0 {
		c.SendInterval = time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	u, err := url.Parse(c.Address)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("address scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.SendLimit < 0 {
		return fmt.Errorf("send_limit must not be negative")
	}
	return nil
}
