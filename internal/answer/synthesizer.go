// Package answer turns retrieved chunks into a grounded answer with
// citations and a confidence score.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/keepmark/recall/internal/provider"
	"github.com/keepmark/recall/internal/store"
)

// snippetLimit caps excerpt length in citations and fallback answers.
const snippetLimit = 300

// Citation points an answer back at an indexed source.
type Citation struct {
	SourceID string  `json:"source_id"`
	Title    string  `json:"title,omitempty"`
	URL      string  `json:"url,omitempty"`
	Snippet  string  `json:"snippet"`
	Score    float64 `json:"score"`
}

// Result is the complete response to a query.
type Result struct {
	// Answer is the synthesized text, or concatenated snippets when
	// Synthesized is false.
	Answer string `json:"answer"`

	// Sources cites the material the answer draws on, best first.
	Sources []Citation `json:"sources"`

	// Confidence is in [0, 1]: the mean similarity of the citations
	// scaled by how many of the requested slots were filled.
	Confidence float64 `json:"confidence"`

	// Synthesized reports whether a generation model produced the
	// answer. False means verbatim snippets.
	Synthesized bool `json:"synthesized"`

	// ProcessingTimeMs is filled in by the caller.
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// SourceResolver looks up display metadata for a source ID.
type SourceResolver interface {
	Resolve(ctx context.Context, sourceID string) (title, url string, err error)
}

// StoreResolver resolves source metadata from the vector store.
type StoreResolver struct {
	VS store.VectorStore
}

// Resolve returns the stored title and URL, or empty strings when the
// source is unknown.
func (r StoreResolver) Resolve(ctx context.Context, sourceID string) (string, string, error) {
	meta, err := r.VS.Meta(ctx, sourceID)
	if err != nil {
		return "", "", err
	}
	if meta == nil {
		return "", "", nil
	}
	return meta.Title, meta.URL, nil
}

// Synthesizer builds grounded answers from retrieval matches.
type Synthesizer struct {
	generator provider.GenerationProvider
	resolver  SourceResolver
	topK      int
	logger    *slog.Logger
}

// New creates a synthesizer. A nil generator is allowed; every answer
// then uses the snippet fallback. topK is the retrieval slot count used
// for confidence scaling.
func New(generator provider.GenerationProvider, resolver SourceResolver, topK int, logger *slog.Logger) *Synthesizer {
	if topK <= 0 {
		topK = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		generator: generator,
		resolver:  resolver,
		topK:      topK,
		logger:    logger,
	}
}

// Synthesize produces an answer for the query from the given matches.
// No matches is not an error: the result has no sources and zero
// confidence. A generation failure degrades to verbatim snippets
// instead of failing the query.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, matches []store.Match) (*Result, error) {
	if len(matches) == 0 {
		return &Result{
			Answer:  "No indexed content matched this question.",
			Sources: []Citation{},
		}, nil
	}

	citations, err := s.buildCitations(ctx, matches)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Sources:    citations,
		Confidence: confidence(matches, s.topK),
	}

	if s.generator != nil {
		answer, genErr := s.generator.Generate(ctx, buildPrompt(query, matches, citations))
		if genErr == nil && strings.TrimSpace(answer) != "" {
			result.Answer = strings.TrimSpace(answer)
			result.Synthesized = true
			return result, nil
		}
		if genErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("answer synthesis failed, falling back to snippets", "error", genErr)
		}
	}

	result.Answer = snippetAnswer(citations)
	result.Synthesized = false
	return result, nil
}

// buildCitations keeps the best match per source, preserving overall
// match order so citations stay sorted best first.
func (s *Synthesizer) buildCitations(ctx context.Context, matches []store.Match) ([]Citation, error) {
	seen := make(map[string]bool, len(matches))
	citations := make([]Citation, 0, len(matches))
	for _, m := range matches {
		if seen[m.SourceID] {
			continue
		}
		seen[m.SourceID] = true

		title, url, err := s.resolver.Resolve(ctx, m.SourceID)
		if err != nil {
			return nil, err
		}
		citations = append(citations, Citation{
			SourceID: m.SourceID,
			Title:    title,
			URL:      url,
			Snippet:  truncate(m.Chunk.Text, snippetLimit),
			Score:    m.Score,
		})
	}
	return citations, nil
}

// confidence is the mean match similarity scaled by the fraction of
// requested slots that were filled. Fewer matches than slots means less
// supporting evidence, so confidence drops accordingly.
func confidence(matches []store.Match, topK int) float64 {
	if len(matches) == 0 {
		return 0
	}
	var sum float64
	for _, m := range matches {
		sum += m.Score
	}
	mean := sum / float64(len(matches))

	filled := float64(len(matches)) / float64(topK)
	if filled > 1 {
		filled = 1
	}

	c := mean * filled
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// buildPrompt assembles the grounding prompt: numbered excerpts followed
// by the question and strict instructions to answer only from them.
func buildPrompt(query string, matches []store.Match, citations []Citation) string {
	citationIndex := make(map[string]int, len(citations))
	for i, c := range citations {
		citationIndex[c.SourceID] = i + 1
	}

	var sb strings.Builder
	sb.WriteString("You are answering a question using only the excerpts below, ")
	sb.WriteString("which come from the user's saved bookmarks and notes.\n\n")

	for _, m := range matches {
		fmt.Fprintf(&sb, "[%d] %s\n\n", citationIndex[m.SourceID], strings.TrimSpace(m.Chunk.Text))
	}

	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\n")
	sb.WriteString("Answer using only the excerpts above. Cite excerpt numbers like [1]. ")
	sb.WriteString("If the excerpts do not contain the answer, say so plainly.")
	return sb.String()
}

// snippetAnswer concatenates citation snippets as a non-synthesized
// answer.
func snippetAnswer(citations []Citation) string {
	var sb strings.Builder
	sb.WriteString("Most relevant saved content:\n")
	for i, c := range citations {
		label := c.Title
		if label == "" {
			label = c.SourceID
		}
		fmt.Fprintf(&sb, "\n%d. %s\n   %s\n", i+1, label, c.Snippet)
	}
	return sb.String()
}

// truncate cuts text at a rune boundary, appending an ellipsis.
func truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
