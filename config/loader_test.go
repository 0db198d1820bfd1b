package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Tracking.Enabled)

	require.NotNil(t, cfg.Catalog("openai"))
	require.NotNil(t, cfg.Catalog("azure"))
	require.NotNil(t, cfg.Catalog("cohere"))
	assert.Nil(t, cfg.Catalog("nope"))

	mc, err := cfg.Catalog("openai").Model("gpt-4o")
	require.NoError(t, err)
	assert.InDelta(t, 2.5e-06, mc.InputTokenCost.For(1), 1e-15)
}

func TestLoadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "llmgate.yaml")
	doc := `
server:
  addr: ":9090"
  rate_limit: 50
log:
  level: debug
providers:
  openai:
    name: OpenAI
    models:
      gpt-4o:
        input_token_cost:
          - range: [0, 1000]
            cost: 0.001
          - range: [1001, null]
            cost: 0.0005
        output_token_cost: 0.002
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 50.0, cfg.Server.RateLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, "json", cfg.Log.Format)
	require.NotNil(t, cfg.Catalog("cohere"))

	// A provider entry in the file replaces the default catalog wholesale.
	catalog := cfg.Catalog("openai")
	require.NotNil(t, catalog)
	assert.Equal(t, "openai", catalog.ID)
	mc, err := catalog.Model("gpt-4o")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, mc.InputTokenCost.For(1500), 1e-12)
	_, err = catalog.Model("gpt-4o-mini")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader().WithConfigPath("/nonexistent/llmgate.yaml").Load()
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LLMGATE_SERVER_ADDR", ":7070")
	t.Setenv("LLMGATE_LOG_LEVEL", "warn")
	t.Setenv("LLMGATE_TRACKING_ENABLED", "true")
	t.Setenv("LLMGATE_TRACKING_PATH", "/tmp/track.db")
	t.Setenv("LLMGATE_SERVER_RATE_LIMIT", "12.5")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Tracking.Enabled)
	assert.Equal(t, "/tmp/track.db", cfg.Tracking.Path)
	assert.Equal(t, 12.5, cfg.Server.RateLimit)
}

func TestEnvPrefixOverride(t *testing.T) {
	t.Setenv("CUSTOM_SERVER_ADDR", ":6060")

	cfg, err := NewLoader().WithEnvPrefix("CUSTOM").Load()
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Server.Addr)
}
