// Package index builds and maintains the semantic index: chunking,
// embedding, and the per-source commit protocol.
package index

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/keepmark/recall/internal/chunk"
	"github.com/keepmark/recall/internal/provider"
	"github.com/keepmark/recall/internal/recallerr"
	"github.com/keepmark/recall/internal/store"
)

// Outcome classifies the result of indexing one source.
type Outcome string

const (
	// OutcomeIndexed means every chunk was embedded and committed.
	OutcomeIndexed Outcome = "indexed"

	// OutcomePartial means some chunks failed to embed; the rest were
	// committed and the failures recorded for a later retry pass.
	OutcomePartial Outcome = "partially_indexed"

	// OutcomeFailed means no chunk could be embedded. Previously
	// indexed content for the source is left untouched.
	OutcomeFailed Outcome = "failed"

	// OutcomeSkipped means the content hash matched an already indexed
	// source, so no provider calls were made.
	OutcomeSkipped Outcome = "skipped"
)

// Report summarizes one indexing run for a source.
type Report struct {
	SourceID     string
	Outcome      Outcome
	ChunkCount   int
	FailedChunks []int
	Duration     time.Duration
}

// Indexer chunks source text, embeds the chunks, and commits the result
// to the vector store.
type Indexer struct {
	chunker  *chunk.Chunker
	embedder provider.EmbeddingProvider
	vs       store.VectorStore
	logger   *slog.Logger
}

// New creates an indexer.
func New(chunker *chunk.Chunker, embedder provider.EmbeddingProvider, vs store.VectorStore, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{chunker: chunker, embedder: embedder, vs: vs, logger: logger}
}

// IndexSource indexes one source end to end.
//
// Re-indexing unchanged content is a no-op: when the content hash matches
// a fully indexed source, the run is skipped. Otherwise the old chunks
// stay queryable until the new set is committed in a single replace, so
// concurrent queries never observe a half-indexed source.
//
// A run where every chunk fails leaves the store untouched apart from the
// failure being recorded in the source's metadata, and returns an error.
// An authorization failure aborts the batch immediately.
//
// Cancellation mid-batch keeps the work already done: chunks embedded
// before the cancellation are committed and the source is marked
// partially indexed, with the unattempted chunks recorded for the retry
// pass. The cancellation error is still returned.
func (ix *Indexer) IndexSource(ctx context.Context, item store.SourceItem) (*Report, error) {
	start := time.Now()

	if strings.TrimSpace(item.ID) == "" {
		return nil, recallerr.New(recallerr.ErrCodeSourceEmpty, "source ID must not be empty", nil)
	}

	hash := chunk.Fingerprint(item.CombinedText)

	prev, err := ix.vs.Meta(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.ContentHash == hash && prev.Status == store.StatusIndexed {
		ix.logger.Debug("source unchanged, skipping", "source_id", item.ID)
		return &Report{
			SourceID:   item.ID,
			Outcome:    OutcomeSkipped,
			ChunkCount: prev.ChunkCount,
			Duration:   time.Since(start),
		}, nil
	}

	// Record the in-flight state. Existing chunks stay queryable.
	working := ix.metaFor(item, hash, store.StatusIndexing, prev)
	if err := ix.vs.PutMeta(ctx, working); err != nil {
		return nil, err
	}

	chunks := ix.chunker.Split(item.ID, item.CombinedText)
	if len(chunks) == 0 {
		// Nothing to embed. The source is fully indexed with zero
		// chunks; any previous chunks for it are removed.
		meta := ix.metaFor(item, hash, store.StatusIndexed, nil)
		if err := ix.vs.ReplaceSource(ctx, item.ID, nil, nil, meta); err != nil {
			return nil, err
		}
		return &Report{SourceID: item.ID, Outcome: OutcomeIndexed, Duration: time.Since(start)}, nil
	}

	recs, failed, err := ix.embedChunks(ctx, chunks)
	if err != nil {
		if len(recs) > 0 {
			// Cancelled mid-batch with some chunks already embedded.
			// Commit the completed work and record the rest as failed
			// so the retry pass can finish the source later.
			return ix.commitInterrupted(item, hash, prev, chunks, recs, failed, start, err)
		}
		// Aborted before any chunk succeeded: auth failure or
		// cancellation up front. Roll the status back so the source is
		// retried from scratch later.
		ix.recordFailure(item, hash, prev, chunks)
		return nil, err
	}

	report := &Report{
		SourceID:     item.ID,
		ChunkCount:   len(chunks),
		FailedChunks: failed,
	}

	switch {
	case len(failed) == 0:
		meta := ix.metaFor(item, hash, store.StatusIndexed, nil)
		meta.ChunkCount = len(chunks)
		if err := ix.vs.ReplaceSource(ctx, item.ID, chunks, recs, meta); err != nil {
			return nil, err
		}
		report.Outcome = OutcomeIndexed

	case len(failed) < len(chunks):
		// Commit what succeeded. All chunk text is stored so the retry
		// pass can re-embed the failures without the original source.
		meta := ix.metaFor(item, hash, store.StatusPartial, nil)
		meta.ChunkCount = len(chunks)
		meta.FailedChunks = failed
		if err := ix.vs.ReplaceSource(ctx, item.ID, chunks, recs, meta); err != nil {
			return nil, err
		}
		report.Outcome = OutcomePartial

	default:
		ix.recordFailure(item, hash, prev, chunks)
		report.Outcome = OutcomeFailed
		report.Duration = time.Since(start)
		return report, recallerr.New(recallerr.ErrCodePartialIndex,
			"no chunks could be embedded for source "+item.ID, nil).
			WithSuggestion("check the provider and re-run indexing for this source")
	}

	report.Duration = time.Since(start)
	ix.logger.Info("source indexed",
		"source_id", item.ID,
		"outcome", report.Outcome,
		"chunks", report.ChunkCount,
		"failed_chunks", len(report.FailedChunks),
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// embedChunks embeds each chunk in order. Transient per-chunk failures
// are collected by index; authorization failures and context
// cancellation abort the run. On cancellation the records embedded so
// far are returned alongside the error, with every unattempted chunk
// listed as failed, so the caller can commit the completed work.
func (ix *Indexer) embedChunks(ctx context.Context, chunks []*store.Chunk) ([]*store.EmbeddingRecord, []int, error) {
	var (
		recs   []*store.EmbeddingRecord
		failed []int
	)
	now := time.Now()

	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return recs, withRemaining(failed, chunks[i:]), err
		}

		vec, err := ix.embedder.Embed(ctx, c.Text)
		if err != nil {
			if recallerr.GetCode(err) == recallerr.ErrCodeAuth {
				return nil, nil, err
			}
			if ctx.Err() != nil {
				return recs, withRemaining(failed, chunks[i:]), ctx.Err()
			}
			ix.logger.Warn("chunk embedding failed",
				"source_id", c.SourceID,
				"chunk_index", c.Index,
				"error", err,
			)
			failed = append(failed, c.Index)
			continue
		}

		recs = append(recs, &store.EmbeddingRecord{
			ChunkID:   c.ID,
			SourceID:  c.SourceID,
			Vector:    vec,
			CreatedAt: now,
		})
	}
	return recs, failed, nil
}

// withRemaining appends the indices of unattempted chunks to failed.
func withRemaining(failed []int, remaining []*store.Chunk) []int {
	for _, c := range remaining {
		failed = append(failed, c.Index)
	}
	return failed
}

// commitInterrupted persists the chunks that were embedded before a
// cancellation, marking the source partially indexed so the retry pass
// can heal the remainder. The commit uses a fresh context; the caller's
// is already cancelled. The original cancellation error is returned.
func (ix *Indexer) commitInterrupted(item store.SourceItem, hash string, prev *store.SourceMeta, chunks []*store.Chunk, recs []*store.EmbeddingRecord, failed []int, start time.Time, cause error) (*Report, error) {
	meta := ix.metaFor(item, hash, store.StatusPartial, nil)
	meta.ChunkCount = len(chunks)
	meta.FailedChunks = failed

	if err := ix.vs.ReplaceSource(context.Background(), item.ID, chunks, recs, meta); err != nil {
		ix.logger.Error("commit interrupted work", "source_id", item.ID, "error", err)
		ix.recordFailure(item, hash, prev, chunks)
		return nil, cause
	}

	ix.logger.Info("indexing interrupted, completed chunks committed",
		"source_id", item.ID,
		"embedded", len(recs),
		"remaining", len(failed),
	)
	return &Report{
		SourceID:     item.ID,
		Outcome:      OutcomePartial,
		ChunkCount:   len(chunks),
		FailedChunks: failed,
		Duration:     time.Since(start),
	}, cause
}

// recordFailure marks the source failed without touching its stored
// chunks. The failure list names every chunk of the attempted content.
func (ix *Indexer) recordFailure(item store.SourceItem, hash string, prev *store.SourceMeta, chunks []*store.Chunk) {
	meta := ix.metaFor(item, hash, store.StatusFailed, prev)
	meta.FailedChunks = make([]int, len(chunks))
	for i := range chunks {
		meta.FailedChunks[i] = i
	}
	// Metadata writes here are best effort; the indexing error is
	// already on its way to the caller.
	if err := ix.vs.PutMeta(context.Background(), meta); err != nil {
		ix.logger.Error("record failed status", "source_id", item.ID, "error", err)
	}
}

// metaFor builds source metadata, carrying the chunk count forward from
// prev when the new count is not yet known.
func (ix *Indexer) metaFor(item store.SourceItem, hash string, status store.SourceStatus, prev *store.SourceMeta) *store.SourceMeta {
	meta := &store.SourceMeta{
		SourceID:    item.ID,
		Title:       item.Title,
		URL:         item.URL,
		ContentHash: hash,
		Status:      status,
		LastUpdated: time.Now(),
	}
	if prev != nil {
		meta.ChunkCount = prev.ChunkCount
	}
	return meta
}

// RetryPartial re-embeds the recorded failed chunks of a partially
// indexed source, filling in the missing vectors one by one. When every
// failure heals, the source becomes fully indexed.
func (ix *Indexer) RetryPartial(ctx context.Context, sourceID string) (*Report, error) {
	start := time.Now()

	meta, err := ix.vs.Meta(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, recallerr.New(recallerr.ErrCodeInvalidInput, "unknown source "+sourceID, nil)
	}
	if meta.Status != store.StatusPartial || len(meta.FailedChunks) == 0 {
		return &Report{
			SourceID:   sourceID,
			Outcome:    Outcome(meta.Status),
			ChunkCount: meta.ChunkCount,
			Duration:   time.Since(start),
		}, nil
	}

	chunks, err := ix.vs.ChunksBySource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	byIndex := make(map[int]*store.Chunk, len(chunks))
	for _, c := range chunks {
		byIndex[c.Index] = c
	}

	var stillFailed []int
	now := time.Now()
	for _, idx := range meta.FailedChunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, ok := byIndex[idx]
		if !ok {
			// Chunk list changed underneath; nothing to retry here.
			continue
		}

		vec, err := ix.embedder.Embed(ctx, c.Text)
		if err != nil {
			if recallerr.GetCode(err) == recallerr.ErrCodeAuth {
				return nil, err
			}
			stillFailed = append(stillFailed, idx)
			continue
		}
		if err := ix.vs.Put(ctx, &store.EmbeddingRecord{
			ChunkID:   c.ID,
			SourceID:  sourceID,
			Vector:    vec,
			CreatedAt: now,
		}); err != nil {
			return nil, err
		}
	}

	meta.FailedChunks = stillFailed
	if len(stillFailed) == 0 {
		meta.Status = store.StatusIndexed
	}
	meta.LastUpdated = time.Now()
	if err := ix.vs.PutMeta(ctx, meta); err != nil {
		return nil, err
	}

	report := &Report{
		SourceID:     sourceID,
		Outcome:      Outcome(meta.Status),
		ChunkCount:   meta.ChunkCount,
		FailedChunks: stillFailed,
		Duration:     time.Since(start),
	}
	ix.logger.Info("retry pass complete",
		"source_id", sourceID,
		"outcome", report.Outcome,
		"remaining_failures", len(stillFailed),
	)
	return report, nil
}
