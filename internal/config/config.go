// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates server configuration: port, host,
// auth tokens, allowed origins, rate limits, response limits, timeouts,
// TLS, security headers, working directory, and pagination.
// Configuration is file-backed (.changes/server.yaml) with
// environment-variable overrides taking precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/changesd/internal/wfserr"
)

const (
	DefaultConfigDir  = ".changes"
	DefaultConfigFile = "server.yaml"
	configVersion     = "1"

	DefaultPort = "8080"
	DefaultHost = "0.0.0.0"
)

// RateLimitConfig bounds the HTTP transport's per-client sliding-window
// rate limiter.
type RateLimitConfig struct {
	RPM      int `yaml:"rpm"`
	Burst    int `yaml:"burst"`
	WindowMs int `yaml:"window_ms"`
}

// ResponseLimits caps HTTP response bodies.
type ResponseLimits struct {
	MaxResponseKB int `yaml:"max_response_kb"`
}

// TimeoutsConfig bounds per-request and heartbeat timing.
type TimeoutsConfig struct {
	RequestMs   int `yaml:"request_ms"`
	HeartbeatMs int `yaml:"heartbeat_ms"`
}

// TLSConfig is optional TLS material for the HTTP transport.
type TLSConfig struct {
	CertPath string `yaml:"cert_path"`
	KeyPath  string `yaml:"key_path"`
}

// PaginationConfig configures page-token TTL and optional HMAC signing.
type PaginationConfig struct {
	TokenTTLHours int    `yaml:"token_ttl_hours"`
	SigningKey    string `yaml:"signing_key,omitempty"`
}

// Config is the full set of recognized server construction options.
type Config struct {
	Version                string           `yaml:"version"`
	WorkingDirectory        string           `yaml:"working_directory"`
	Port                    string           `yaml:"port"`
	Host                    string           `yaml:"host"`
	AuthTokens              []string         `yaml:"auth_tokens,omitempty"`
	AllowedOrigins          []string         `yaml:"allowed_origins,omitempty"`
	RateLimit               RateLimitConfig  `yaml:"rate_limit"`
	ResponseLimits          ResponseLimits   `yaml:"response_limits"`
	Timeouts                TimeoutsConfig   `yaml:"timeouts"`
	TLS                     *TLSConfig       `yaml:"tls,omitempty"`
	SecurityHeadersEnabled  bool             `yaml:"security_headers_enabled"`
	Pagination              PaginationConfig `yaml:"pagination"`
}

// DefaultConfig returns a config with the documented defaults.
func DefaultConfig(workingDirectory string) *Config {
	return &Config{
		Version:          configVersion,
		WorkingDirectory: workingDirectory,
		Port:             DefaultPort,
		Host:             DefaultHost,
		RateLimit: RateLimitConfig{
			RPM:      120,
			Burst:    20,
			WindowMs: 60_000,
		},
		ResponseLimits: ResponseLimits{
			MaxResponseKB: 1024,
		},
		Timeouts: TimeoutsConfig{
			RequestMs:   30_000,
			HeartbeatMs: 25_000,
		},
		SecurityHeadersEnabled: true,
		Pagination: PaginationConfig{
			TokenTTLHours: 24,
		},
	}
}

// RequestTimeout returns Timeouts.RequestMs as a time.Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeouts.RequestMs) * time.Millisecond
}

// HeartbeatInterval returns Timeouts.HeartbeatMs as a time.Duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Timeouts.HeartbeatMs) * time.Millisecond
}

// RateLimitWindow returns RateLimit.WindowMs as a time.Duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowMs) * time.Millisecond
}

// TokenTTL returns Pagination.TokenTTLHours as a time.Duration.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Pagination.TokenTTLHours) * time.Hour
}

// MaxResponseBytes returns ResponseLimits.MaxResponseKB in bytes.
func (c *Config) MaxResponseBytes() int {
	return c.ResponseLimits.MaxResponseKB * 1024
}

// Load reads configPath (or discovers .changes/server.yaml in the
// current or a parent directory when configPath is empty), applies
// environment overrides, and returns the result. A missing config file
// is not an error: DefaultConfig is used as the base.
func Load(configPath, workingDirectory string) (*Config, error) {
	cfg := DefaultConfig(workingDirectory)

	if configPath == "" {
		configPath = os.Getenv("CHANGESD_CONFIG_PATH")
	}
	if configPath == "" {
		found, err := findConfigFile(workingDirectory)
		if err != nil {
			// No config file anywhere: defaults plus env overrides is a
			// valid, runnable configuration.
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		configPath = found
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, wfserr.IO("cannot read configuration file", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, wfserr.New(wfserr.EInvalidInput, "invalid configuration format", err.Error(), fmt.Sprintf("fix the YAML syntax in %s", configPath), err)
	}
	if cfg.Version == "" {
		cfg.Version = configVersion
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return wfserr.Internal("cannot encode configuration", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return wfserr.IO("cannot create configuration directory", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return wfserr.IO("cannot write configuration file", err)
	}
	return nil
}

// ConfigPath returns <dir>/.changes/server.yaml.
func ConfigPath(dir string) string {
	return filepath.Join(dir, DefaultConfigDir, DefaultConfigFile)
}

func findConfigFile(startDir string) (string, error) {
	dir := startDir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	for {
		path := ConfigPath(dir)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

// applyEnvOverrides applies the HTTP transport's environment variables,
// taking precedence over file-based values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AUTH_TOKENS"); v != "" {
		c.AuthTokens = splitAndTrim(v)
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("TLS_CERT"); v != "" {
		c.ensureTLS().CertPath = v
	}
	if v := os.Getenv("TLS_KEY"); v != "" {
		c.ensureTLS().KeyPath = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.RPM = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.WindowMs = n
		}
	}
	if v := os.Getenv("MAX_RESPONSE_SIZE_KB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ResponseLimits.MaxResponseKB = n
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Timeouts.RequestMs = n
		}
	}
	if v := os.Getenv("SECURITY_HEADERS_ENABLED"); v != "" {
		c.SecurityHeadersEnabled = v == "1" || strings.EqualFold(v, "true")
	}
}

func (c *Config) ensureTLS() *TLSConfig {
	if c.TLS == nil {
		c.TLS = &TLSConfig{}
	}
	return c.TLS
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HasTLS reports whether both TLS cert and key paths are configured.
func (c *Config) HasTLS() bool {
	return c.TLS != nil && c.TLS.CertPath != "" && c.TLS.KeyPath != ""
}
