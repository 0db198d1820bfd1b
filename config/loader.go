package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Loader assembles a Config. Precedence: defaults, then the YAML file, then
// LLMGATE_* environment variables.
type Loader struct {
	path      string
	envPrefix string
}

func NewLoader() *Loader {
	return &Loader{envPrefix: "LLMGATE"}
}

func (l *Loader) WithConfigPath(path string) *Loader {
	l.path = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.path, err)
		}
		var file Config
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.path, err)
		}
		merge(cfg, &file)
	}

	l.applyEnv(cfg)
	return cfg, nil
}

// merge overlays file values onto the defaults. Provider entries replace
// whole catalogs; a partial model list in the file is taken as authoritative
// for that provider.
func merge(dst, src *Config) {
	if src.Server.Addr != "" {
		dst.Server.Addr = src.Server.Addr
	}
	if src.Server.ReadTimeout != 0 {
		dst.Server.ReadTimeout = src.Server.ReadTimeout
	}
	if src.Server.WriteTimeout != 0 {
		dst.Server.WriteTimeout = src.Server.WriteTimeout
	}
	if src.Server.RateLimit != 0 {
		dst.Server.RateLimit = src.Server.RateLimit
	}
	if src.Server.RateBurst != 0 {
		dst.Server.RateBurst = src.Server.RateBurst
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Format != "" {
		dst.Log.Format = src.Log.Format
	}
	if src.Tracking.Path != "" {
		dst.Tracking.Path = src.Tracking.Path
	}
	if src.Tracking.Enabled {
		dst.Tracking.Enabled = true
	}
	for id, pc := range src.Providers {
		if pc.ID == "" {
			pc.ID = id
		}
		dst.Providers[id] = pc
	}
}

func (l *Loader) applyEnv(cfg *Config) {
	if v := os.Getenv(l.envPrefix + "_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv(l.envPrefix + "_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(l.envPrefix + "_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv(l.envPrefix + "_TRACKING_PATH"); v != "" {
		cfg.Tracking.Path = v
	}
	if v := os.Getenv(l.envPrefix + "_TRACKING_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tracking.Enabled = enabled
		}
	}
	if v := os.Getenv(l.envPrefix + "_SERVER_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit = f
		}
	}
}
