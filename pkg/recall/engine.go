// Package recall is the embedding API for the semantic bookmark index.
// It wires the chunker, providers, vector store, retriever, and answer
// synthesizer into one engine.
package recall

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/keepmark/recall/internal/answer"
	"github.com/keepmark/recall/internal/chunk"
	"github.com/keepmark/recall/internal/config"
	"github.com/keepmark/recall/internal/index"
	"github.com/keepmark/recall/internal/provider"
	"github.com/keepmark/recall/internal/recallerr"
	"github.com/keepmark/recall/internal/retrieve"
	"github.com/keepmark/recall/internal/store"
	"github.com/keepmark/recall/internal/validation"
)

// Engine is the top-level handle over the semantic index.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	lock        *store.DirLock
	vs          store.VectorStore
	providers   *provider.Providers
	retriever   *retrieve.Retriever
	synthesizer *answer.Synthesizer
	indexer     *index.Indexer
	manager     *index.Manager

	cancel context.CancelFunc
	closed bool
}

type options struct {
	logger    *slog.Logger
	vs        store.VectorStore
	embedder  provider.EmbeddingProvider
	generator provider.GenerationProvider
	noLock    bool
}

// Option customizes engine construction.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithVectorStore injects a vector store, bypassing SQLite and the data
// directory lock.
func WithVectorStore(vs store.VectorStore) Option {
	return func(o *options) {
		o.vs = vs
		o.noLock = true
	}
}

// WithEmbedder injects an embedding provider, bypassing the configured
// backend.
func WithEmbedder(e provider.EmbeddingProvider) Option {
	return func(o *options) { o.embedder = e }
}

// WithGenerator injects a generation provider.
func WithGenerator(g provider.GenerationProvider) Option {
	return func(o *options) { o.generator = g }
}

// New builds an engine from the configuration. The data directory is
// locked for the engine's lifetime; a second process on the same
// directory fails fast instead of corrupting the index.
//
// Background indexing workers observe ctx: cancelling it interrupts
// in-flight sources, committing their completed chunks as partially
// indexed. Close on an uncancelled ctx drains the queue instead.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	e := &Engine{cfg: cfg, logger: o.logger}

	if !o.noLock {
		e.lock = store.NewDirLock(cfg.DataDir)
		acquired, err := e.lock.TryLock()
		if err != nil {
			return nil, recallerr.StorageError("lock data directory", err)
		}
		if !acquired {
			return nil, recallerr.New(recallerr.ErrCodeStoreLocked,
				"data directory is in use by another recall process", nil).
				WithDetail("lock_file", e.lock.Path())
		}
	}

	if o.vs != nil {
		e.vs = o.vs
	} else {
		dbPath := filepath.Join(cfg.DataDir, "recall.db")
		vs, err := store.OpenSQLiteStore(dbPath, cfg.Providers.Dimensions, o.logger)
		if err != nil {
			e.unlock()
			return nil, err
		}
		e.vs = vs
	}

	if o.embedder != nil || o.generator != nil {
		e.providers = &provider.Providers{Embedder: o.embedder, Generator: o.generator}
	} else {
		providers, err := provider.New(ctx, cfg, o.logger)
		if err != nil {
			e.vs.Close()
			e.unlock()
			return nil, err
		}
		e.providers = providers
	}

	chunker, err := chunk.New(cfg.Chunking.Window, cfg.Chunking.Overlap)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.indexer = index.New(chunker, e.providers.Embedder, e.vs, o.logger)
	e.manager = index.NewManager(e.indexer, e.vs, cfg.Limits.IndexWorkers, o.logger)
	e.retriever = retrieve.New(e.providers.Embedder, e.vs, retrieve.Config{
		TopK:      cfg.Retrieval.TopK,
		Threshold: cfg.Retrieval.RelevanceThreshold,
	}, o.logger)
	e.synthesizer = answer.New(e.providers.Generator, answer.StoreResolver{VS: e.vs},
		cfg.Retrieval.TopK, o.logger)

	// Workers inherit the construction context: cancelling it (a CLI
	// interrupt, say) reaches in-flight indexing at chunk granularity,
	// while a normal Close on a live context still drains the queue.
	workerCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.manager.Start(workerCtx)

	return e, nil
}

// IndexSource indexes one source synchronously.
func (e *Engine) IndexSource(ctx context.Context, item store.SourceItem) (*index.Report, error) {
	if err := validation.Source(item); err != nil {
		return nil, err
	}
	return e.indexer.IndexSource(ctx, item)
}

// Submit queues a source for background indexing. Close drains the
// queue before shutting down.
func (e *Engine) Submit(item store.SourceItem) error {
	if err := validation.Source(item); err != nil {
		return err
	}
	return e.manager.Submit(item)
}

// Progress reports background indexing counters.
func (e *Engine) Progress() index.Progress {
	return e.manager.Progress()
}

// QueryOptions narrows a query.
type QueryOptions struct {
	// Scope restricts retrieval to these source IDs.
	Scope []string

	// TopK overrides the configured result limit when positive.
	TopK int
}

// Query answers a question from the indexed corpus. A query that
// matches nothing returns a result with no sources and zero confidence,
// not an error.
func (e *Engine) Query(ctx context.Context, query string, opts QueryOptions) (*answer.Result, error) {
	start := time.Now()
	queryID := uuid.NewString()

	trimmed, err := validation.Query(query)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With("query_id", queryID)
	logger.Debug("query started", "top_k", opts.TopK, "scope", len(opts.Scope))

	matches, err := e.retriever.Retrieve(ctx, trimmed, retrieve.Options{
		Scope: opts.Scope,
		TopK:  opts.TopK,
	})
	if err != nil {
		return nil, err
	}

	result, err := e.synthesizer.Synthesize(ctx, trimmed, matches)
	if err != nil {
		return nil, err
	}
	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	logger.Info("query answered",
		"matches", len(matches),
		"confidence", result.Confidence,
		"synthesized", result.Synthesized,
		"duration_ms", result.ProcessingTimeMs,
	)
	return result, nil
}

// RemoveSource deletes a source and everything indexed for it.
func (e *Engine) RemoveSource(ctx context.Context, sourceID string) error {
	id, err := validation.SourceID(sourceID)
	if err != nil {
		return err
	}
	return e.manager.Remove(ctx, id)
}

// RetryPartials re-embeds failed chunks of partially indexed sources.
// Returns the number of sources now fully indexed.
func (e *Engine) RetryPartials(ctx context.Context) (int, error) {
	return e.manager.RetryPartials(ctx)
}

// Stats summarizes the corpus.
func (e *Engine) Stats(ctx context.Context) (*store.IndexStats, error) {
	return e.vs.Stats(ctx)
}

// Sources lists metadata for every known source.
func (e *Engine) Sources(ctx context.Context) ([]*store.SourceMeta, error) {
	return e.vs.ListMeta(ctx)
}

// Close drains background indexing and releases every resource. Safe to
// call more than once.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	if e.manager != nil {
		if err := e.manager.Close(); err != nil {
			firstErr = err
		}
	}
	if e.cancel != nil {
		e.cancel()
	}
	if e.providers != nil {
		if err := e.providers.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.vs != nil {
		if err := e.vs.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (e *Engine) unlock() error {
	if e.lock == nil {
		return nil
	}
	return e.lock.Unlock()
}
