package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// sourceArena holds one source's chunks and vectors. Keeping each source in
// its own arena makes deletion and scoped scans proportional to the source's
// own chunks, not the whole corpus.
type sourceArena struct {
	chunks  map[string]*Chunk          // chunk ID -> chunk
	order   []string                   // chunk IDs in index order
	vectors map[string]*EmbeddingRecord // chunk ID -> embedding
}

func newSourceArena() *sourceArena {
	return &sourceArena{
		chunks:  make(map[string]*Chunk),
		vectors: make(map[string]*EmbeddingRecord),
	}
}

// MemoryStore is an in-memory VectorStore. It backs the SQLite store's scan
// path and serves as the test double throughout the engine's tests.
type MemoryStore struct {
	mu      sync.RWMutex
	dims    int
	sources map[string]*sourceArena
	meta    map[string]*SourceMeta
	closed  bool
}

// Verify interface implementation at compile time
var _ VectorStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store for vectors of the given
// dimension.
func NewMemoryStore(dims int) *MemoryStore {
	return &MemoryStore{
		dims:    dims,
		sources: make(map[string]*sourceArena),
		meta:    make(map[string]*SourceMeta),
	}
}

func (s *MemoryStore) checkDims(recs ...*EmbeddingRecord) error {
	for _, r := range recs {
		if len(r.Vector) != s.dims {
			return ErrDimensionMismatch{Expected: s.dims, Got: len(r.Vector)}
		}
	}
	return nil
}

// Put stores a single embedding record for an existing chunk.
func (s *MemoryStore) Put(ctx context.Context, rec *EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if err := s.checkDims(rec); err != nil {
		return err
	}

	arena, ok := s.sources[rec.SourceID]
	if !ok {
		return fmt.Errorf("unknown source %s", rec.SourceID)
	}
	if _, ok := arena.chunks[rec.ChunkID]; !ok {
		return fmt.Errorf("unknown chunk %s for source %s", rec.ChunkID, rec.SourceID)
	}

	arena.vectors[rec.ChunkID] = rec
	return nil
}

// GetAllBySource returns the source's embedding records in chunk index order.
func (s *MemoryStore) GetAllBySource(ctx context.Context, sourceID string) ([]*EmbeddingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	arena, ok := s.sources[sourceID]
	if !ok {
		return nil, nil
	}

	recs := make([]*EmbeddingRecord, 0, len(arena.vectors))
	for _, id := range arena.order {
		if rec, ok := arena.vectors[id]; ok {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// GetAll returns every embedding record, grouped by source, index order
// within each source.
func (s *MemoryStore) GetAll(ctx context.Context) ([]*EmbeddingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sourceIDs := make([]string, 0, len(s.sources))
	for id := range s.sources {
		sourceIDs = append(sourceIDs, id)
	}
	sort.Strings(sourceIDs)

	var recs []*EmbeddingRecord
	for _, sid := range sourceIDs {
		arena := s.sources[sid]
		for _, cid := range arena.order {
			if rec, ok := arena.vectors[cid]; ok {
				recs = append(recs, rec)
			}
		}
	}
	return recs, nil
}

// DeleteBySource removes the source's chunks, embeddings, and metadata.
func (s *MemoryStore) DeleteBySource(ctx context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	delete(s.sources, sourceID)
	delete(s.meta, sourceID)
	return nil
}

// Count returns the number of stored embedding records.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, arena := range s.sources {
		n += len(arena.vectors)
	}
	return n, nil
}

// ReplaceSource swaps the source's chunk set and metadata in one step.
// Readers see the old arena until the swap completes.
func (s *MemoryStore) ReplaceSource(ctx context.Context, sourceID string, chunks []*Chunk, recs []*EmbeddingRecord, meta *SourceMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if err := s.checkDims(recs...); err != nil {
		return err
	}

	arena := newSourceArena()
	for _, c := range chunks {
		arena.chunks[c.ID] = c
		arena.order = append(arena.order, c.ID)
	}
	for _, r := range recs {
		if _, ok := arena.chunks[r.ChunkID]; !ok {
			return fmt.Errorf("embedding for unknown chunk %s", r.ChunkID)
		}
		arena.vectors[r.ChunkID] = r
	}

	s.sources[sourceID] = arena
	if meta != nil {
		m := *meta
		s.meta[sourceID] = &m
	}
	return nil
}

// ChunksBySource returns the source's chunks in index order.
func (s *MemoryStore) ChunksBySource(ctx context.Context, sourceID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	arena, ok := s.sources[sourceID]
	if !ok {
		return nil, nil
	}

	chunks := make([]*Chunk, 0, len(arena.order))
	for _, id := range arena.order {
		chunks = append(chunks, arena.chunks[id])
	}
	return chunks, nil
}

// Scan scores every embedded chunk against the query vector.
func (s *MemoryStore) Scan(ctx context.Context, query []float32, scope map[string]struct{}) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	for sid, arena := range s.sources {
		if len(scope) > 0 {
			if _, ok := scope[sid]; !ok {
				continue
			}
		}
		for _, cid := range arena.order {
			rec, ok := arena.vectors[cid]
			if !ok {
				continue
			}
			matches = append(matches, Match{
				Chunk:     arena.chunks[cid],
				SourceID:  sid,
				Score:     CosineSimilarity(query, rec.Vector),
				CreatedAt: rec.CreatedAt,
			})
		}
	}
	return matches, nil
}

// Meta returns the source's metadata, or nil if unknown.
func (s *MemoryStore) Meta(ctx context.Context, sourceID string) (*SourceMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.meta[sourceID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

// PutMeta upserts the source's metadata.
func (s *MemoryStore) PutMeta(ctx context.Context, meta *SourceMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	cp := *meta
	s.meta[meta.SourceID] = &cp
	return nil
}

// ListMeta returns metadata for all known sources, ordered by source ID.
func (s *MemoryStore) ListMeta(ctx context.Context) ([]*SourceMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.meta))
	for id := range s.meta {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	metas := make([]*SourceMeta, 0, len(ids))
	for _, id := range ids {
		cp := *s.meta[id]
		metas = append(metas, &cp)
	}
	return metas, nil
}

// Stats summarizes the corpus.
func (s *MemoryStore) Stats(ctx context.Context) (*IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &IndexStats{
		Dimensions:      s.dims,
		SourcesByStatus: make(map[SourceStatus]int),
	}

	for _, arena := range s.sources {
		stats.TotalChunks += len(arena.chunks)
		stats.EmbeddedChunks += len(arena.vectors)
	}

	var last time.Time
	for _, m := range s.meta {
		stats.TotalSources++
		stats.SourcesByStatus[m.Status]++
		if m.LastUpdated.After(last) {
			last = m.LastUpdated
		}
	}
	stats.LastUpdated = last

	return stats, nil
}

// Close marks the store closed. Further writes fail.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// replaceFromRows rebuilds one source arena from loaded rows. Used by the
// SQLite store when warming its cache at open.
func (s *MemoryStore) replaceFromRows(sourceID string, chunks []*Chunk, recs []*EmbeddingRecord, meta *SourceMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	arena := newSourceArena()
	for _, c := range chunks {
		arena.chunks[c.ID] = c
		arena.order = append(arena.order, c.ID)
	}
	for _, r := range recs {
		arena.vectors[r.ChunkID] = r
	}
	s.sources[sourceID] = arena
	if meta != nil {
		s.meta[sourceID] = meta
	}
}
