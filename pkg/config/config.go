// Package config loads the relay configuration from YAML
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZentaChain/zentalk-collab/pkg/compression"
	"github.com/ZentaChain/zentalk-collab/pkg/encoding"
)

var ErrInvalid = errors.New("invalid config")

// Config holds the relay configuration
type Config struct {
	// HTTP listener
	Addr       string `yaml:"addr"`
	EnableCORS bool   `yaml:"enable_cors"`
	RateLimit  int    `yaml:"rate_limit"` // Requests per minute per IP

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json or console

	// Ed25519 key used to sign claims. Empty uses an ephemeral key, which
	// invalidates every claim on restart.
	SigningKeyPath string        `yaml:"signing_key_path"`
	ClaimTTL       time.Duration `yaml:"claim_ttl"`

	// Timeouts
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RelayTimeout   time.Duration `yaml:"relay_timeout"`
	JoinTimeout    time.Duration `yaml:"join_timeout"`
	AuthExpiry     time.Duration `yaml:"auth_expiry"`
	PollWait       time.Duration `yaml:"poll_wait"`
	ReconnectGrace time.Duration `yaml:"reconnect_grace"`

	// Negotiation
	Encodings   []string `yaml:"encodings"`
	Compression []string `yaml:"compression"`

	// Audit log. Empty path disables it.
	AuditDBPath    string        `yaml:"audit_db_path"`
	AuditRetention time.Duration `yaml:"audit_retention"`

	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// DefaultConfig returns default relay configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:           ":8080",
		EnableCORS:     true,
		RateLimit:      600,
		LogLevel:       "info",
		LogFormat:      "console",
		SigningKeyPath: "./keys/signing.pem",
		ClaimTTL:       24 * time.Hour,
		RequestTimeout: 60 * time.Second,
		RelayTimeout:   5 * time.Minute,
		JoinTimeout:    5 * time.Minute,
		AuthExpiry:     5 * time.Minute,
		PollWait:       30 * time.Second,
		ReconnectGrace: 10 * time.Second,
		Encodings:      encoding.Names(),
		Compression:    compression.Supported(),
		AuditRetention: 30 * 24 * time.Hour,
		MetricsEnabled: true,
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr is required", ErrInvalid)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log_format must be json or console, got %q", ErrInvalid, c.LogFormat)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate_limit must not be negative", ErrInvalid)
	}

	for name, d := range map[string]time.Duration{
		"request_timeout": c.RequestTimeout,
		"relay_timeout":   c.RelayTimeout,
		"join_timeout":    c.JoinTimeout,
		"auth_expiry":     c.AuthExpiry,
		"poll_wait":       c.PollWait,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, name)
		}
	}
	if c.ReconnectGrace < 0 || c.ClaimTTL < 0 || c.AuditRetention < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalid)
	}
	if c.PollWait > c.AuthExpiry {
		return fmt.Errorf("%w: poll_wait exceeds auth_expiry", ErrInvalid)
	}

	if len(c.Encodings) == 0 {
		return fmt.Errorf("%w: at least one encoding is required", ErrInvalid)
	}
	for _, name := range c.Encodings {
		if _, err := encoding.Lookup(name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	for _, alg := range c.Compression {
		if !compression.IsSupported(alg) {
			return fmt.Errorf("%w: unsupported compression %q", ErrInvalid, alg)
		}
	}
	return nil
}
