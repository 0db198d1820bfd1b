package llm

import (
	"context"

	"go.uber.org/zap"
)

// Credentials carries upstream credential material supplied at construction
// time. Environment fallbacks are the bootstrap's responsibility.
type Credentials struct {
	APIKey      string `json:"api_key,omitempty"`
	APIEndpoint string `json:"api_endpoint,omitempty"`
	APIVersion  string `json:"api_version,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`
}

// ChunkReader pulls canonical chunks from an open upstream stream. Next
// returns io.EOF when the upstream stream ends; Close releases the upstream
// connection and may be called concurrently with Next.
type ChunkReader interface {
	Next(ctx context.Context) (*Chunk, error)
	Close() error
}

// Upstream is the per-provider adapter capability set: it builds the upstream
// client call from a validated request and translates native payloads into
// the canonical completion and chunk shapes.
type Upstream interface {
	// ID returns the provider identifier ("openai", "azure", ...).
	ID() string

	// Complete performs a one-shot upstream call.
	Complete(ctx context.Context, req *ChatRequest) (*Completion, error)

	// Open starts a streaming upstream call.
	Open(ctx context.Context, req *ChatRequest) (ChunkReader, error)

	// ValidateParams checks provider-specific parameter names and ranges.
	ValidateParams(params Parameters) error

	// LeadingRoleChunk reports whether the provider's first stream chunk
	// carries only a role marker with no content, so the joiner skips it
	// when assembling text terminations.
	LeadingRoleChunk() bool
}

// Factory constructs a provider adapter bound to its catalog and credentials.
type Factory func(cfg *ProviderConfig, creds Credentials, logger *zap.Logger) (Upstream, error)
