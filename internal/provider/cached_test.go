package provider

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how many times Embed reaches the backend.
type countingEmbedder struct {
	inner EmbeddingProvider
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) Dimensions() int    { return c.inner.Dimensions() }
func (c *countingEmbedder) ModelName() string  { return c.inner.ModelName() }
func (c *countingEmbedder) Close() error       { return c.inner.Close() }

func TestCachedEmbedder_RepeatHitsCache(t *testing.T) {
	// Given
	counting := &countingEmbedder{inner: NewStaticEmbedder(32)}
	cached := NewCachedEmbedder(counting, 10)
	defer cached.Close()

	// When
	first, err := cached.Embed(context.Background(), "same query")
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), "same query")
	require.NoError(t, err)

	// Then
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), counting.calls.Load())
}

func TestCachedEmbedder_DistinctTextsMiss(t *testing.T) {
	counting := &countingEmbedder{inner: NewStaticEmbedder(32)}
	cached := NewCachedEmbedder(counting, 10)
	defer cached.Close()

	_, err := cached.Embed(context.Background(), "first")
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "second")
	require.NoError(t, err)

	assert.Equal(t, int64(2), counting.calls.Load())
}

func TestCachedEmbedder_EvictsBeyondCapacity(t *testing.T) {
	counting := &countingEmbedder{inner: NewStaticEmbedder(32)}
	cached := NewCachedEmbedder(counting, 1)
	defer cached.Close()

	ctx := context.Background()
	_, err := cached.Embed(ctx, "a")
	require.NoError(t, err)
	_, err = cached.Embed(ctx, "b")
	require.NoError(t, err)
	// "a" was evicted by "b" in a single-slot cache.
	_, err = cached.Embed(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, int64(3), counting.calls.Load())
}

func TestCachedEmbedder_PassesThroughMetadata(t *testing.T) {
	cached := NewCachedEmbedder(NewStaticEmbedder(48), 0)
	defer cached.Close()

	assert.Equal(t, 48, cached.Dimensions())
	assert.Equal(t, "static-hash", cached.ModelName())
}
