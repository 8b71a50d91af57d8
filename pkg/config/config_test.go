package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	data := []byte(`
addr: ":9000"
log_format: json
request_timeout: 15s
reconnect_grace: 0s
encodings: [json]
audit_db_path: /tmp/audit.db
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.ReconnectGrace != 0 {
		t.Errorf("ReconnectGrace = %v", cfg.ReconnectGrace)
	}
	if len(cfg.Encodings) != 1 || cfg.Encodings[0] != "json" {
		t.Errorf("Encodings = %v", cfg.Encodings)
	}
	// untouched fields keep their defaults
	if cfg.RelayTimeout != 5*time.Minute {
		t.Errorf("RelayTimeout = %v, want default", cfg.RelayTimeout)
	}
	if cfg.PollWait != 30*time.Second {
		t.Errorf("PollWait = %v, want default", cfg.PollWait)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != DefaultConfig().Addr {
		t.Errorf("Addr = %q", cfg.Addr)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("addr: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() of malformed yaml should fail")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := DefaultConfig()
	cfg.Addr = ":7777"
	cfg.JoinTimeout = 90 * time.Second
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Addr != ":7777" || loaded.JoinTimeout != 90*time.Second {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"negative rate limit", func(c *Config) { c.RateLimit = -1 }},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"zero poll wait", func(c *Config) { c.PollWait = 0 }},
		{"negative grace", func(c *Config) { c.ReconnectGrace = -time.Second }},
		{"poll longer than expiry", func(c *Config) { c.PollWait = 10 * time.Minute }},
		{"no encodings", func(c *Config) { c.Encodings = nil }},
		{"unknown encoding", func(c *Config) { c.Encodings = []string{"cbor"} }},
		{"unknown compression", func(c *Config) { c.Compression = []string{"lzma"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}
}
