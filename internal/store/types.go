// Package store provides persistence for chunks, embeddings, and per-source
// index metadata, plus brute-force cosine similarity scans over the stored
// vectors. The SQLite store is the durable backend; an in-memory arena keyed
// by source holds the same data for lock-cheap scans and for tests.
package store

import (
	"context"
	"fmt"
	"time"
)

// SourceStatus is the indexing state of one source item.
type SourceStatus string

const (
	// StatusUnindexed means the source has never been indexed.
	StatusUnindexed SourceStatus = "unindexed"
	// StatusIndexing means an indexing pass is in progress.
	StatusIndexing SourceStatus = "indexing"
	// StatusIndexed means all chunks embedded successfully.
	StatusIndexed SourceStatus = "indexed"
	// StatusPartial means some chunks failed after retries; the source is
	// queryable with reduced coverage.
	StatusPartial SourceStatus = "partially_indexed"
	// StatusFailed means no chunk could be embedded. Any previous index for
	// the source is left untouched.
	StatusFailed SourceStatus = "failed"
)

// SourceItem is one saved unit of content (page, note, highlight bundle).
// It is owned by the ingestion side; the engine treats it as immutable input
// keyed by ID and computes its own content hash.
type SourceItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	CombinedText string `json:"combined_text"`
}

// Chunk is a bounded substring of a source item's text, the unit of
// embedding and retrieval. Chunks of a source are contiguous in Index order
// and overlap by a fixed number of characters.
type Chunk struct {
	ID          string `json:"id"`
	SourceID    string `json:"source_id"`
	Index       int    `json:"index"`
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

// EmbeddingRecord is the stored vector for one chunk. A chunk has at most
// one current embedding; all vectors in a store share one dimension.
type EmbeddingRecord struct {
	ChunkID   string    `json:"chunk_id"`
	SourceID  string    `json:"source_id"`
	Vector    []float32 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceMeta tracks per-source indexing state.
type SourceMeta struct {
	SourceID     string       `json:"source_id"`
	Title        string       `json:"title"`
	URL          string       `json:"url"`
	ContentHash  string       `json:"content_hash"`
	ChunkCount   int          `json:"chunk_count"`
	Status       SourceStatus `json:"status"`
	FailedChunks []int        `json:"failed_chunks,omitempty"`
	LastUpdated  time.Time    `json:"last_updated"`
}

// Match is a scored chunk from a similarity scan.
type Match struct {
	Chunk     *Chunk
	SourceID  string
	Score     float64
	CreatedAt time.Time
}

// IndexStats summarizes the current corpus.
type IndexStats struct {
	TotalSources    int                  `json:"total_sources"`
	TotalChunks     int                  `json:"total_chunks"`
	EmbeddedChunks  int                  `json:"embedded_chunks"`
	Dimensions      int                  `json:"dimensions"`
	LastUpdated     time.Time            `json:"last_updated"`
	SourcesByStatus map[SourceStatus]int `json:"sources_by_status"`
}

// ErrDimensionMismatch is returned when a vector does not match the store's
// configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// VectorStore persists chunks, embeddings, and source metadata, and scans
// stored vectors by cosine similarity.
//
// Scan and the read accessors may run concurrently with writes; a reader
// observes either the complete old chunk set or the complete new chunk set
// for a source, never a mix.
type VectorStore interface {
	// Put stores a single embedding record. The referenced chunk must
	// already exist (used by the retry pass to fill in missing vectors).
	Put(ctx context.Context, rec *EmbeddingRecord) error

	// GetAllBySource returns the embedding records of one source in chunk
	// index order.
	GetAllBySource(ctx context.Context, sourceID string) ([]*EmbeddingRecord, error)

	// GetAll returns every embedding record in the store.
	GetAll(ctx context.Context) ([]*EmbeddingRecord, error)

	// DeleteBySource removes the source's chunks, embeddings, and metadata
	// atomically. Unknown sources are a no-op.
	DeleteBySource(ctx context.Context, sourceID string) error

	// Count returns the number of stored embedding records.
	Count(ctx context.Context) (int, error)

	// ReplaceSource atomically swaps the source's chunk set: prior chunks
	// and embeddings are deleted and the given ones written within a single
	// transaction, together with the updated metadata.
	ReplaceSource(ctx context.Context, sourceID string, chunks []*Chunk, recs []*EmbeddingRecord, meta *SourceMeta) error

	// ChunksBySource returns the source's chunks in index order, including
	// chunks that have no embedding yet.
	ChunksBySource(ctx context.Context, sourceID string) ([]*Chunk, error)

	// Scan scores every embedded chunk against the query vector by cosine
	// similarity. If scope is non-empty only sources in scope are scanned.
	// Results are unordered; ranking is the retriever's concern.
	Scan(ctx context.Context, query []float32, scope map[string]struct{}) ([]Match, error)

	// Meta returns a source's index metadata, or nil if unknown.
	Meta(ctx context.Context, sourceID string) (*SourceMeta, error)

	// PutMeta upserts a source's index metadata.
	PutMeta(ctx context.Context, meta *SourceMeta) error

	// ListMeta returns metadata for all known sources.
	ListMeta(ctx context.Context) ([]*SourceMeta, error)

	// Stats summarizes the corpus.
	Stats(ctx context.Context) (*IndexStats, error)

	// Close releases resources.
	Close() error
}
