package config

import (
	"time"

	"github.com/llmgate/llmgate/llm"
)

// Default returns the built-in configuration, including the model catalog
// with per-token USD prices. A config file extends or overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute, // streams stay open
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Tracking: TrackingConfig{
			Path: "llmgate.db",
		},
		Providers: map[string]llm.ProviderConfig{
			"openai": {
				ID:   "openai",
				Name: "OpenAI",
				Models: map[string]llm.ModelConfig{
					"gpt-4o": {
						InputTokenCost:  llm.FlatCost(2.5e-06),
						OutputTokenCost: llm.FlatCost(1e-05),
					},
					"gpt-4o-mini": {
						InputTokenCost:  llm.FlatCost(1.5e-07),
						OutputTokenCost: llm.FlatCost(6e-07),
					},
					"gpt-4-turbo": {
						InputTokenCost:  llm.FlatCost(1e-05),
						OutputTokenCost: llm.FlatCost(3e-05),
					},
					"gpt-3.5-turbo": {
						InputTokenCost:  llm.FlatCost(5e-07),
						OutputTokenCost: llm.FlatCost(1.5e-06),
					},
				},
			},
			"azure": {
				ID:   "azure",
				Name: "Azure OpenAI",
				Models: map[string]llm.ModelConfig{
					"gpt-4o": {
						InputTokenCost:  llm.FlatCost(2.5e-06),
						OutputTokenCost: llm.FlatCost(1e-05),
					},
					"gpt-4o-mini": {
						InputTokenCost:  llm.FlatCost(1.5e-07),
						OutputTokenCost: llm.FlatCost(6e-07),
					},
					"gpt-35-turbo": {
						InputTokenCost:  llm.FlatCost(5e-07),
						OutputTokenCost: llm.FlatCost(1.5e-06),
					},
				},
			},
			"cohere": {
				ID:   "cohere",
				Name: "Cohere",
				Models: map[string]llm.ModelConfig{
					"command-r": {
						InputTokenCost:  llm.FlatCost(1.5e-07),
						OutputTokenCost: llm.FlatCost(6e-07),
					},
					"command-r-plus": {
						InputTokenCost:  llm.FlatCost(2.5e-06),
						OutputTokenCost: llm.FlatCost(1e-05),
					},
				},
			},
		},
	}
}
