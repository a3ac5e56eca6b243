package answer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepmark/recall/internal/store"
)

// scriptedGenerator returns a fixed answer or error.
type scriptedGenerator struct {
	answer     string
	err        error
	lastPrompt string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.lastPrompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func (g *scriptedGenerator) ModelName() string { return "scripted" }
func (g *scriptedGenerator) Close() error      { return nil }

// mapResolver resolves titles and URLs from a map.
type mapResolver map[string][2]string

func (r mapResolver) Resolve(ctx context.Context, sourceID string) (string, string, error) {
	v := r[sourceID]
	return v[0], v[1], nil
}

func match(sourceID, text string, score float64) store.Match {
	return store.Match{
		Chunk: &store.Chunk{
			ID:       sourceID + "-c0",
			SourceID: sourceID,
			Text:     text,
		},
		SourceID:  sourceID,
		Score:     score,
		CreatedAt: time.Now(),
	}
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestSynthesize_GroundedAnswerWithCitations(t *testing.T) {
	// Given
	gen := &scriptedGenerator{answer: "Sourdough needs a mature starter [1]."}
	resolver := mapResolver{
		"bm-1": {"Sourdough Guide", "https://example.com/sourdough"},
	}
	s := New(gen, resolver, 5, discard())

	matches := []store.Match{
		match("bm-1", "A mature starter is the key to sourdough.", 0.9),
	}

	// When
	result, err := s.Synthesize(context.Background(), "what does sourdough need?", matches)

	// Then
	require.NoError(t, err)
	assert.True(t, result.Synthesized)
	assert.Equal(t, "Sourdough needs a mature starter [1].", result.Answer)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "bm-1", result.Sources[0].SourceID)
	assert.Equal(t, "Sourdough Guide", result.Sources[0].Title)
	assert.Equal(t, "https://example.com/sourdough", result.Sources[0].URL)
	assert.Contains(t, gen.lastPrompt, "mature starter")
	assert.Contains(t, gen.lastPrompt, "only the excerpts")
}

func TestSynthesize_NoMatchesIsNotAnError(t *testing.T) {
	s := New(&scriptedGenerator{answer: "unused"}, mapResolver{}, 5, discard())

	result, err := s.Synthesize(context.Background(), "anything", nil)

	require.NoError(t, err)
	assert.False(t, result.Synthesized)
	assert.Empty(t, result.Sources)
	assert.Zero(t, result.Confidence)
	assert.NotEmpty(t, result.Answer)
}

func TestSynthesize_GenerationFailureFallsBackToSnippets(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("model not loaded")}
	resolver := mapResolver{"bm-1": {"Pool Tuning", ""}}
	s := New(gen, resolver, 5, discard())

	matches := []store.Match{
		match("bm-1", "Size worker pools to GOMAXPROCS for CPU-bound work.", 0.8),
	}

	result, err := s.Synthesize(context.Background(), "how to size pools?", matches)

	require.NoError(t, err)
	assert.False(t, result.Synthesized)
	assert.Contains(t, result.Answer, "Size worker pools")
	require.Len(t, result.Sources, 1)
	assert.Greater(t, result.Confidence, 0.0)
}

func TestSynthesize_NilGeneratorUsesSnippets(t *testing.T) {
	resolver := mapResolver{"bm-1": {"", ""}}
	s := New(nil, resolver, 5, discard())

	result, err := s.Synthesize(context.Background(), "q", []store.Match{
		match("bm-1", "snippet text here", 0.75),
	})

	require.NoError(t, err)
	assert.False(t, result.Synthesized)
	assert.Contains(t, result.Answer, "snippet text here")
	// Without a title, the source ID labels the snippet.
	assert.Contains(t, result.Answer, "bm-1")
}

func TestSynthesize_DeduplicatesCitationsBySource(t *testing.T) {
	gen := &scriptedGenerator{answer: "answer"}
	resolver := mapResolver{
		"bm-1": {"One", ""},
		"bm-2": {"Two", ""},
	}
	s := New(gen, resolver, 5, discard())

	matches := []store.Match{
		match("bm-1", "best chunk from one", 0.95),
		match("bm-2", "chunk from two", 0.9),
		match("bm-1", "weaker chunk from one", 0.85),
	}

	result, err := s.Synthesize(context.Background(), "q", matches)

	require.NoError(t, err)
	require.Len(t, result.Sources, 2)
	// The best chunk per source wins the citation slot.
	assert.Equal(t, "bm-1", result.Sources[0].SourceID)
	assert.Contains(t, result.Sources[0].Snippet, "best chunk")
	assert.Equal(t, "bm-2", result.Sources[1].SourceID)
}

func TestConfidence_ScalesWithFilledSlots(t *testing.T) {
	full := []store.Match{
		match("a", "t", 0.8), match("b", "t", 0.8), match("c", "t", 0.8),
		match("d", "t", 0.8), match("e", "t", 0.8),
	}
	partial := full[:2]

	assert.InDelta(t, 0.8, confidence(full, 5), 1e-9)
	// 0.8 mean * 2/5 slots filled
	assert.InDelta(t, 0.32, confidence(partial, 5), 1e-9)
	assert.Zero(t, confidence(nil, 5))
}

func TestSynthesize_LongSnippetsAreTruncated(t *testing.T) {
	resolver := mapResolver{"bm-1": {"", ""}}
	s := New(nil, resolver, 5, discard())

	long := strings.Repeat("lorem ipsum ", 100)
	result, err := s.Synthesize(context.Background(), "q", []store.Match{
		match("bm-1", long, 0.8),
	})

	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	assert.LessOrEqual(t, len([]rune(result.Sources[0].Snippet)), snippetLimit+3)
	assert.True(t, strings.HasSuffix(result.Sources[0].Snippet, "..."))
}
