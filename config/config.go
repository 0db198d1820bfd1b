// Package config loads gateway configuration with the precedence
// defaults → YAML file → environment overrides.
package config

import (
	"time"

	"github.com/llmgate/llmgate/llm"
)

type Config struct {
	Server    ServerConfig                  `yaml:"server"`
	Log       LogConfig                     `yaml:"log"`
	Tracking  TrackingConfig                `yaml:"tracking"`
	Providers map[string]llm.ProviderConfig `yaml:"providers"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Inbound limiter: sustained requests per second and burst size.
	// Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

type TrackingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Catalog returns the provider catalog entry, or nil when unconfigured.
func (c *Config) Catalog(provider string) *llm.ProviderConfig {
	if pc, ok := c.Providers[provider]; ok {
		return &pc
	}
	return nil
}
