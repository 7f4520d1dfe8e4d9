// Package config loads and validates the acpipe service configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	HTTP ServerHTTPConfig `yaml:"http"`
	Pipe ServerPipeConfig `yaml:"pipe"`
}

type ServerHTTPConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// ServerPipeConfig exposes the same API over a local named pipe so runtimes
// without a TCP client can reach it. Windows only.
type ServerPipeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
}

type AuthConfig struct {
	// Type selects the auth mode: none, api_key
	Type string `yaml:"type"`

	// Header carries the key when type is api_key.
	Header string `yaml:"header"`

	Keys []string `yaml:"keys"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromBytes loads configuration from bytes without applying environment
// overrides. Intended for tests where env vars should not interfere.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = "127.0.0.1:8525"
	}
	if cfg.Server.HTTP.ReadTimeout == "" {
		cfg.Server.HTTP.ReadTimeout = "10s"
	}
	if cfg.Server.HTTP.WriteTimeout == "" {
		cfg.Server.HTTP.WriteTimeout = "30s"
	}
	if cfg.Server.Pipe.Name == "" {
		cfg.Server.Pipe.Name = `\\.\pipe\acpipe`
	}
	if cfg.Auth.Type == "" {
		cfg.Auth.Type = "none"
	}
	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "X-API-Key"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ACPIPE_HTTP_ADDR"); v != "" {
		cfg.Server.HTTP.Addr = v
	}
	if v := os.Getenv("ACPIPE_API_KEY"); v != "" {
		cfg.Auth.Type = "api_key"
		cfg.Auth.Keys = append(cfg.Auth.Keys, v)
	}
	if v := os.Getenv("ACPIPE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func validateConfig(cfg *Config) error {
	if _, err := time.ParseDuration(cfg.Server.HTTP.ReadTimeout); err != nil {
		return fmt.Errorf("parse server.http.read_timeout: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Server.HTTP.WriteTimeout); err != nil {
		return fmt.Errorf("parse server.http.write_timeout: %w", err)
	}
	if cfg.Server.Pipe.Enabled && !strings.HasPrefix(cfg.Server.Pipe.Name, `\\.\pipe\`) {
		return fmt.Errorf(`server.pipe.name must start with \\.\pipe\`)
	}
	switch strings.ToLower(cfg.Auth.Type) {
	case "none":
	case "api_key":
		if len(cfg.Auth.Keys) == 0 {
			return fmt.Errorf("auth.type=api_key requires at least one key")
		}
	default:
		return fmt.Errorf("unsupported auth.type %q", cfg.Auth.Type)
	}
	return nil
}

// ReadTimeoutDuration returns the parsed HTTP read timeout. Validation
// guarantees the parse succeeds.
func (c *ServerHTTPConfig) ReadTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	return d
}

func (c *ServerHTTPConfig) WriteTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	return d
}
