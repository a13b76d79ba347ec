package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 2, cfg.Pipeline.MaxReviewCycles)
	assert.Equal(t, 1, cfg.Pipeline.MaxRerunsPerAgent)
	assert.Equal(t, 20, cfg.Pipeline.MaxPhotos)
	assert.Equal(t, 5, cfg.Pipeline.PhotoBatchSize)
	assert.Equal(t, 3, cfg.Pipeline.RetryAttempts)
	assert.Equal(t, "2s", cfg.Pipeline.RetryBaseDelay)
	assert.Equal(t, "single_model", cfg.Frameworks.Vision)
	assert.Equal(t, "single", cfg.Frameworks.Estimate)
	assert.Equal(t, "single", cfg.Frameworks.Gap)
	assert.Equal(t, "single", cfg.Frameworks.Strategist)
	assert.Equal(t, 2, cfg.Frameworks.DebateRounds)
	assert.InDelta(t, 0.33, cfg.Business.DefaultMarginTarget, 1e-9)
}

func TestLoaderConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log:
  level: debug
  format: json
pipeline:
  max_review_cycles: 3
frameworks:
  vision: parallel_aggregate
providers:
  vision:
    api_key: test-key
    model: gpt-4o
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewLoader().WithConfigFile(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Pipeline.MaxReviewCycles)
	assert.Equal(t, "parallel_aggregate", cfg.Frameworks.Vision)
	assert.True(t, cfg.Providers.Vision.Enabled())
	assert.Equal(t, "gpt-4o", cfg.Providers.Vision.Model)
	// Untouched sections keep defaults.
	assert.Equal(t, "single", cfg.Frameworks.Estimate)
}

func TestLoaderEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLAIMPILOT_LOG_LEVEL", "error")
	t.Setenv("CLAIMPILOT_PIPELINE_PHOTO_BATCH_SIZE", "10")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, 10, cfg.Pipeline.PhotoBatchSize)
}

func TestProviderEnabled(t *testing.T) {
	p := ProviderConfig{Kind: "openai", Model: "gpt-4o"}
	assert.False(t, p.Enabled())

	p.APIKey = "sk-test"
	assert.True(t, p.Enabled())
}
