// Package llmgate wires the engine to its builtin provider adapters.
package llmgate

import (
	"go.uber.org/zap"

	"github.com/llmgate/llmgate/llm"
	"github.com/llmgate/llmgate/providers/azure"
	"github.com/llmgate/llmgate/providers/cohere"
	"github.com/llmgate/llmgate/providers/openai"
)

const Version = "0.3.0"

// DefaultRegistry returns a registry with every builtin provider registered.
func DefaultRegistry() *llm.Registry {
	r := llm.NewRegistry()
	r.Register("openai", openai.Factory)
	r.Register("azure", azure.Factory)
	r.Register("cohere", cohere.Factory)
	return r
}

// Connect is a convenience wrapper: build an engine for one builtin provider.
func Connect(id string, cfg *llm.ProviderConfig, creds llm.Credentials, logger *zap.Logger) (*llm.Engine, error) {
	return DefaultRegistry().Connect(id, cfg, creds, llm.WithLogger(logger))
}
