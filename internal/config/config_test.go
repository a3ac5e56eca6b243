package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultChunkWindow, cfg.Chunking.Window)
	assert.Equal(t, DefaultChunkOverlap, cfg.Chunking.Overlap)
	assert.Equal(t, DefaultTopK, cfg.Retrieval.TopK)
	assert.InDelta(t, DefaultRelevanceThreshold, cfg.Retrieval.RelevanceThreshold, 1e-9)
	assert.Equal(t, "ollama", cfg.Providers.Backend)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Chunking, cfg.Chunking)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recall.yaml")
	yaml := `
chunking:
  window: 400
  overlap: 50
retrieval:
  top_k: 3
  relevance_threshold: 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 400, cfg.Chunking.Window)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.5, cfg.Retrieval.RelevanceThreshold, 1e-9)
	// Untouched sections keep defaults
	assert.Equal(t, DefaultOllamaHost, cfg.Providers.OllamaHost)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking:\n  window: 400\n"), 0o644))

	t.Setenv("RECALL_CHUNK_WINDOW", "640")
	t.Setenv("RECALL_TOP_K", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 640, cfg.Chunking.Window)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking: [oops"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero window", func(c *Config) { c.Chunking.Window = 0 }},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }},
		{"overlap >= window", func(c *Config) { c.Chunking.Window = 100; c.Chunking.Overlap = 100 }},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"threshold out of range", func(c *Config) { c.Retrieval.RelevanceThreshold = 1.5 }},
		{"unknown backend", func(c *Config) { c.Providers.Backend = "watson" }},
		{"gemini without key", func(c *Config) { c.Providers.Backend = "gemini" }},
		{"zero dimensions", func(c *Config) { c.Providers.Dimensions = 0 }},
		{"zero in-flight", func(c *Config) { c.Limits.MaxInFlight = 0 }},
		{"zero workers", func(c *Config) { c.Limits.IndexWorkers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recall.yaml")

	cfg := Default()
	cfg.Chunking.Window = 1200
	cfg.Retrieval.TopK = 10
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1200, loaded.Chunking.Window)
	assert.Equal(t, 10, loaded.Retrieval.TopK)
}
