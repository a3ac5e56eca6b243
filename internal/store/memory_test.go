package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunks(sourceID string, texts ...string) []*Chunk {
	chunks := make([]*Chunk, len(texts))
	offset := 0
	for i, text := range texts {
		chunks[i] = &Chunk{
			ID:          sourceID + "-c" + string(rune('0'+i)),
			SourceID:    sourceID,
			Index:       i,
			Text:        text,
			StartOffset: offset,
			EndOffset:   offset + len(text),
		}
		offset += len(text)
	}
	return chunks
}

func testRecords(chunks []*Chunk, vectors ...[]float32) []*EmbeddingRecord {
	recs := make([]*EmbeddingRecord, 0, len(vectors))
	for i, v := range vectors {
		if v == nil {
			continue
		}
		recs = append(recs, &EmbeddingRecord{
			ChunkID:   chunks[i].ID,
			SourceID:  chunks[i].SourceID,
			Vector:    v,
			CreatedAt: time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
		})
	}
	return recs
}

func metaFor(sourceID string, status SourceStatus, chunkCount int) *SourceMeta {
	return &SourceMeta{
		SourceID:    sourceID,
		Title:       "Title " + sourceID,
		URL:         "https://example.com/" + sourceID,
		ContentHash: "hash-" + sourceID,
		ChunkCount:  chunkCount,
		Status:      status,
		LastUpdated: time.Now().UTC(),
	}
}

func TestMemoryStore_ReplaceAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)

	chunks := testChunks("a", "first", "second")
	recs := testRecords(chunks, []float32{1, 0, 0}, []float32{0, 1, 0})
	require.NoError(t, s.ReplaceSource(ctx, "a", chunks, recs, metaFor("a", StatusIndexed, 2)))

	got, err := s.GetAllBySource(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a-c0", got[0].ChunkID)
	assert.Equal(t, "a-c1", got[1].ChunkID)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryStore_ReplaceSwapsCompletely(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)

	oldChunks := testChunks("a", "old one", "old two", "old three")
	oldRecs := testRecords(oldChunks, []float32{1, 0, 0}, []float32{0, 1, 0}, []float32{0, 0, 1})
	require.NoError(t, s.ReplaceSource(ctx, "a", oldChunks, oldRecs, metaFor("a", StatusIndexed, 3)))

	newChunks := testChunks("a", "new only")
	newRecs := testRecords(newChunks, []float32{1, 1, 0})
	require.NoError(t, s.ReplaceSource(ctx, "a", newChunks, newRecs, metaFor("a", StatusIndexed, 1)))

	got, err := s.ChunksBySource(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new only", got[0].Text)

	n, _ := s.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_DeleteBySourceRemovesEverything(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)

	chunks := testChunks("a", "x", "y")
	recs := testRecords(chunks, []float32{1, 0, 0}, []float32{0, 1, 0})
	require.NoError(t, s.ReplaceSource(ctx, "a", chunks, recs, metaFor("a", StatusIndexed, 2)))

	require.NoError(t, s.DeleteBySource(ctx, "a"))

	got, err := s.GetAllBySource(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got)

	m, err := s.Meta(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, m)

	n, _ := s.Count(ctx)
	assert.Equal(t, 0, n)
}

func TestMemoryStore_DeleteUnknownSourceIsNoop(t *testing.T) {
	s := NewMemoryStore(3)
	assert.NoError(t, s.DeleteBySource(context.Background(), "ghost"))
}

func TestMemoryStore_PutRequiresExistingChunk(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)

	chunks := testChunks("a", "text")
	require.NoError(t, s.ReplaceSource(ctx, "a", chunks, nil, metaFor("a", StatusPartial, 1)))

	// Filling in the missing vector succeeds
	err := s.Put(ctx, &EmbeddingRecord{
		ChunkID: "a-c0", SourceID: "a", Vector: []float32{1, 2, 3}, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	// Unknown chunk fails
	err = s.Put(ctx, &EmbeddingRecord{
		ChunkID: "a-c9", SourceID: "a", Vector: []float32{1, 2, 3}, CreatedAt: time.Now(),
	})
	assert.Error(t, err)
}

func TestMemoryStore_DimensionMismatchRejected(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)

	chunks := testChunks("a", "text")
	recs := testRecords(chunks, []float32{1, 2}) // wrong dimension

	err := s.ReplaceSource(ctx, "a", chunks, recs, metaFor("a", StatusIndexed, 1))
	require.Error(t, err)

	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)
}

func TestMemoryStore_ScanScoresAndScopes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)

	aChunks := testChunks("a", "about foxes")
	require.NoError(t, s.ReplaceSource(ctx, "a", aChunks,
		testRecords(aChunks, []float32{1, 0, 0}), metaFor("a", StatusIndexed, 1)))

	bChunks := testChunks("b", "about dogs")
	require.NoError(t, s.ReplaceSource(ctx, "b", bChunks,
		testRecords(bChunks, []float32{0, 1, 0}), metaFor("b", StatusIndexed, 1)))

	// Unscoped scan sees both sources
	matches, err := s.Scan(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Scoped scan sees only b, even though a scores higher
	matches, err = s.Scan(ctx, []float32{1, 0, 0}, map[string]struct{}{"b": {}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].SourceID)
	assert.InDelta(t, 0.0, matches[0].Score, 1e-6)
}

func TestMemoryStore_ScanSkipsUnembeddedChunks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)

	chunks := testChunks("a", "one", "two", "three")
	// Only chunks 0 and 2 have vectors
	recs := testRecords(chunks, []float32{1, 0, 0}, nil, []float32{0, 0, 1})
	require.NoError(t, s.ReplaceSource(ctx, "a", chunks, recs, metaFor("a", StatusPartial, 3)))

	matches, err := s.Scan(ctx, []float32{1, 1, 1}, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestMemoryStore_Stats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)

	aChunks := testChunks("a", "x", "y")
	require.NoError(t, s.ReplaceSource(ctx, "a", aChunks,
		testRecords(aChunks, []float32{1, 0, 0}, nil), metaFor("a", StatusPartial, 2)))

	bChunks := testChunks("b", "z")
	require.NoError(t, s.ReplaceSource(ctx, "b", bChunks,
		testRecords(bChunks, []float32{0, 1, 0}), metaFor("b", StatusIndexed, 1)))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalSources)
	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, 2, stats.EmbeddedChunks)
	assert.Equal(t, 3, stats.Dimensions)
	assert.Equal(t, 1, stats.SourcesByStatus[StatusPartial])
	assert.Equal(t, 1, stats.SourcesByStatus[StatusIndexed])
	assert.False(t, stats.LastUpdated.IsZero())
}

func TestMemoryStore_MetaRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)

	meta := metaFor("a", StatusFailed, 0)
	meta.FailedChunks = []int{0, 2}
	require.NoError(t, s.PutMeta(ctx, meta))

	got, err := s.Meta(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, []int{0, 2}, got.FailedChunks)

	// Returned meta is a copy; mutating it does not affect the store
	got.Status = StatusIndexed
	again, _ := s.Meta(ctx, "a")
	assert.Equal(t, StatusFailed, again.Status)
}

func TestMemoryStore_ClosedRejectsWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)
	require.NoError(t, s.Close())

	assert.Error(t, s.PutMeta(ctx, metaFor("a", StatusIndexed, 0)))
	assert.Error(t, s.ReplaceSource(ctx, "a", nil, nil, nil))
}
