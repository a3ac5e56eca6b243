// Package config loads and validates Recall configuration.
//
// Configuration is resolved in priority order:
//  1. Environment variables (RECALL_*) - highest priority
//  2. Config file (recall.yaml in the data directory)
//  3. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Chunking defaults. Window and overlap are character counts; the values
// follow common RAG guidance of roughly 10-15% overlap.
const (
	DefaultChunkWindow  = 800
	DefaultChunkOverlap = 100
)

// Retrieval defaults.
const (
	DefaultTopK               = 5
	DefaultRelevanceThreshold = 0.70
)

// Provider defaults.
const (
	DefaultProvider        = "ollama"
	DefaultOllamaHost      = "http://localhost:11434"
	DefaultEmbedModel      = "nomic-embed-text"
	DefaultGenerateModel   = "llama3.2"
	DefaultGeminiEmbed     = "text-embedding-004"
	DefaultGeminiGenerate  = "gemini-1.5-flash"
	DefaultDimensions      = 768
	DefaultCallTimeout     = 15 * time.Second
	DefaultMaxInFlight     = 4
	DefaultRequestsPerSec  = 5.0
	DefaultRateBurst       = 5
	DefaultEmbedCacheSize  = 1000
	DefaultIndexWorkers    = 2
)

// Config represents the complete Recall configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	DataDir   string          `yaml:"data_dir" json:"data_dir"`
	Chunking  ChunkingConfig  `yaml:"chunking" json:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Providers ProvidersConfig `yaml:"providers" json:"providers"`
	Limits    LimitsConfig    `yaml:"limits" json:"limits"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ChunkingConfig configures the text chunker.
type ChunkingConfig struct {
	// Window is the chunk window size in characters.
	Window int `yaml:"window" json:"window"`
	// Overlap is the character overlap between consecutive chunks.
	// Must be strictly smaller than Window.
	Overlap int `yaml:"overlap" json:"overlap"`
}

// RetrievalConfig configures similarity search.
type RetrievalConfig struct {
	// TopK is the maximum number of results returned per query.
	TopK int `yaml:"top_k" json:"top_k"`
	// RelevanceThreshold filters out matches below this cosine similarity.
	RelevanceThreshold float64 `yaml:"relevance_threshold" json:"relevance_threshold"`
}

// ProvidersConfig configures the embedding and generation providers.
type ProvidersConfig struct {
	// Backend selects the provider backend: "ollama" (local, default) or
	// "gemini" (hosted, requires API key).
	Backend string `yaml:"backend" json:"backend"`

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// EmbedModel is the embedding model name.
	EmbedModel string `yaml:"embed_model" json:"embed_model"`

	// GenerateModel is the answer-synthesis model name.
	GenerateModel string `yaml:"generate_model" json:"generate_model"`

	// Dimensions is the embedding dimension. All vectors in a store share
	// this dimension.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// GeminiAPIKey is the API key for the Gemini backend.
	// Prefer setting it via RECALL_GEMINI_API_KEY.
	GeminiAPIKey string `yaml:"gemini_api_key" json:"-"`

	// CallTimeout bounds each individual provider request.
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout"`
}

// LimitsConfig configures shared provider throttling.
type LimitsConfig struct {
	// MaxInFlight is the process-wide cap on concurrent provider calls,
	// shared by all indexing jobs and queries.
	MaxInFlight int `yaml:"max_in_flight" json:"max_in_flight"`

	// RequestsPerSec is the sustained provider request rate.
	RequestsPerSec float64 `yaml:"requests_per_sec" json:"requests_per_sec"`

	// RateBurst is the short-term burst allowance.
	RateBurst int `yaml:"rate_burst" json:"rate_burst"`

	// EmbedCacheSize is the number of query embeddings kept in the LRU cache.
	EmbedCacheSize int `yaml:"embed_cache_size" json:"embed_cache_size"`

	// IndexWorkers is the number of sources indexed concurrently.
	IndexWorkers int `yaml:"index_workers" json:"index_workers"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		DataDir: DefaultDataDir(),
		Chunking: ChunkingConfig{
			Window:  DefaultChunkWindow,
			Overlap: DefaultChunkOverlap,
		},
		Retrieval: RetrievalConfig{
			TopK:               DefaultTopK,
			RelevanceThreshold: DefaultRelevanceThreshold,
		},
		Providers: ProvidersConfig{
			Backend:       DefaultProvider,
			OllamaHost:    DefaultOllamaHost,
			EmbedModel:    DefaultEmbedModel,
			GenerateModel: DefaultGenerateModel,
			Dimensions:    DefaultDimensions,
			CallTimeout:   DefaultCallTimeout,
		},
		Limits: LimitsConfig{
			MaxInFlight:    DefaultMaxInFlight,
			RequestsPerSec: DefaultRequestsPerSec,
			RateBurst:      DefaultRateBurst,
			EmbedCacheSize: DefaultEmbedCacheSize,
			IndexWorkers:   DefaultIndexWorkers,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultDataDir returns the default data directory (~/.recall).
// Falls back to temp directory if home directory is unavailable.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".recall")
	}
	return filepath.Join(home, ".recall")
}

// ConfigPath returns the config file path inside the data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "recall.yaml")
}

// Load resolves configuration from defaults, an optional config file, and
// environment overrides. A missing config file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = ConfigPath(cfg.DataDir)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults apply.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the given path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays RECALL_* environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("RECALL_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("RECALL_PROVIDER"); v != "" {
		c.Providers.Backend = v
	}
	if v := os.Getenv("RECALL_OLLAMA_HOST"); v != "" {
		c.Providers.OllamaHost = v
	}
	if v := os.Getenv("RECALL_EMBED_MODEL"); v != "" {
		c.Providers.EmbedModel = v
	}
	if v := os.Getenv("RECALL_GENERATE_MODEL"); v != "" {
		c.Providers.GenerateModel = v
	}
	if v := os.Getenv("RECALL_GEMINI_API_KEY"); v != "" {
		c.Providers.GeminiAPIKey = v
	}
	if v := os.Getenv("RECALL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RECALL_CHUNK_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.Window = n
		}
	}
	if v := os.Getenv("RECALL_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.Overlap = n
		}
	}
	if v := os.Getenv("RECALL_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retrieval.TopK = n
		}
	}
	if v := os.Getenv("RECALL_RELEVANCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retrieval.RelevanceThreshold = f
		}
	}
	if v := os.Getenv("RECALL_MAX_IN_FLIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Limits.MaxInFlight = n
		}
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Chunking.Window <= 0 {
		return fmt.Errorf("chunking.window must be positive, got %d", c.Chunking.Window)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking.overlap must be non-negative, got %d", c.Chunking.Overlap)
	}
	if c.Chunking.Overlap >= c.Chunking.Window {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than chunking.window (%d)",
			c.Chunking.Overlap, c.Chunking.Window)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.RelevanceThreshold < -1 || c.Retrieval.RelevanceThreshold > 1 {
		return fmt.Errorf("retrieval.relevance_threshold must be in [-1, 1], got %g",
			c.Retrieval.RelevanceThreshold)
	}
	switch c.Providers.Backend {
	case "ollama", "gemini", "static":
	default:
		return fmt.Errorf("providers.backend must be ollama, gemini or static, got %q",
			c.Providers.Backend)
	}
	if c.Providers.Backend == "gemini" && c.Providers.GeminiAPIKey == "" {
		return fmt.Errorf("providers.backend is gemini but no API key is set (RECALL_GEMINI_API_KEY)")
	}
	if c.Providers.Dimensions <= 0 {
		return fmt.Errorf("providers.dimensions must be positive, got %d", c.Providers.Dimensions)
	}
	if c.Limits.MaxInFlight <= 0 {
		return fmt.Errorf("limits.max_in_flight must be positive, got %d", c.Limits.MaxInFlight)
	}
	if c.Limits.IndexWorkers <= 0 {
		return fmt.Errorf("limits.index_workers must be positive, got %d", c.Limits.IndexWorkers)
	}
	return nil
}
