package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, 10*time.Minute, cfg.Ingest.DedupWindow)
	assert.Equal(t, 4, cfg.Ingest.BackfillWorkers)
	assert.Equal(t, 8, cfg.Ingest.MaxAttempts)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestLoad_MergesYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := `
version: 1
embeddings:
  provider: ollama
  model: mxbai-embed-large
  dimensions: 1024
ingest:
  dedup_window: 5m
  max_attempts: 3
retention:
  max_count: 500
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".swarmmem.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "mxbai-embed-large", cfg.Embeddings.Model)
	assert.Equal(t, 1024, cfg.Embeddings.Dimensions)
	assert.Equal(t, 5*time.Minute, cfg.Ingest.DedupWindow)
	assert.Equal(t, 3, cfg.Ingest.MaxAttempts)
	assert.Equal(t, 500, cfg.Retention.MaxCount)

	// Unset fields keep defaults
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, 4, cfg.Ingest.BackfillWorkers)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	dir := t.TempDir()
	yaml := "embeddings:\n  provider: ollama\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".swarmmem.yaml"), []byte(yaml), 0o644))

	t.Setenv("SWARMMEM_EMBED_PROVIDER", "static")
	t.Setenv("SWARMMEM_BACKFILL_WORKERS", "9")
	t.Setenv("SWARMMEM_DEDUP_WINDOW", "45s")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 9, cfg.Ingest.BackfillWorkers)
	assert.Equal(t, 45*time.Second, cfg.Ingest.DedupWindow)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".swarmmem.yaml"), []byte("embeddings: [not a map"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "fancy" }},
		{"zero batch size", func(c *Config) { c.Embeddings.BatchSize = 0 }},
		{"oversized batch", func(c *Config) { c.Embeddings.BatchSize = 1000 }},
		{"zero workers", func(c *Config) { c.Ingest.BackfillWorkers = 0 }},
		{"zero attempts", func(c *Config) { c.Ingest.MaxAttempts = 0 }},
		{"shrinking backoff", func(c *Config) { c.Ingest.RetryMultiplier = 0.5 }},
		{"negative retention", func(c *Config) { c.Retention.MaxCount = -1 }},
		{"unknown transport", func(c *Config) { c.Server.Transport = "sse" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".swarmmem.yaml")

	cfg := NewConfig()
	cfg.Embeddings.Provider = "ollama"
	cfg.Retention.MaxCount = 42
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "ollama", loaded.Embeddings.Provider)
	assert.Equal(t, 42, loaded.Retention.MaxCount)
}
