package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keepmark/recall/internal/config"
	"github.com/keepmark/recall/internal/recallerr"
)

// Providers bundles the embedding and generation providers built from
// configuration. Both share one Limiter, so indexing and queries compete
// for the same process-wide call budget.
type Providers struct {
	// Embedder is reliability-wrapped and LRU-cached.
	Embedder EmbeddingProvider

	// Generator is reliability-wrapped. Nil for the static backend,
	// which has no generation capability; answers then fall back to
	// verbatim snippets.
	Generator GenerationProvider
}

// New builds providers for the configured backend.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Providers, error) {
	limiter := NewLimiter(cfg.Limits.MaxInFlight, cfg.Limits.RequestsPerSec, cfg.Limits.RateBurst)
	rcfg := ReliableConfig{
		Limiter:     limiter,
		CallTimeout: cfg.Providers.CallTimeout,
		Logger:      logger,
	}

	var (
		embedder  EmbeddingProvider
		generator GenerationProvider
	)

	switch cfg.Providers.Backend {
	case "ollama":
		ocfg := OllamaConfig{
			Host:          cfg.Providers.OllamaHost,
			EmbedModel:    cfg.Providers.EmbedModel,
			GenerateModel: cfg.Providers.GenerateModel,
			Dimensions:    cfg.Providers.Dimensions,
		}
		embedder = NewOllamaEmbedder(ocfg)
		generator = NewOllamaGenerator(ocfg)

	case "gemini":
		gcfg := GeminiConfig{
			APIKey:        cfg.Providers.GeminiAPIKey,
			EmbedModel:    cfg.Providers.EmbedModel,
			GenerateModel: cfg.Providers.GenerateModel,
			Dimensions:    cfg.Providers.Dimensions,
		}
		if cfg.Providers.EmbedModel == config.DefaultEmbedModel {
			gcfg.EmbedModel = config.DefaultGeminiEmbed
		}
		if cfg.Providers.GenerateModel == config.DefaultGenerateModel {
			gcfg.GenerateModel = config.DefaultGeminiGenerate
		}

		ge, err := NewGeminiEmbedder(ctx, gcfg)
		if err != nil {
			return nil, err
		}
		gg, err := NewGeminiGenerator(ctx, gcfg)
		if err != nil {
			ge.Close()
			return nil, err
		}
		embedder = ge
		generator = gg

	case "static":
		embedder = NewStaticEmbedder(cfg.Providers.Dimensions)

	default:
		return nil, recallerr.New(recallerr.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown provider backend %q", cfg.Providers.Backend), nil)
	}

	embedder = NewCachedEmbedder(NewReliableEmbedder(embedder, rcfg), cfg.Limits.EmbedCacheSize)
	if generator != nil {
		generator = NewReliableGenerator(generator, rcfg)
	}

	logger.Info("providers ready",
		"backend", cfg.Providers.Backend,
		"embed_model", embedder.ModelName(),
		"dimensions", embedder.Dimensions(),
		"max_in_flight", cfg.Limits.MaxInFlight,
	)

	return &Providers{Embedder: embedder, Generator: generator}, nil
}

// Close closes both providers, returning the first error.
func (p *Providers) Close() error {
	var firstErr error
	if p.Embedder != nil {
		if err := p.Embedder.Close(); err != nil {
			firstErr = err
		}
	}
	if p.Generator != nil {
		if err := p.Generator.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
