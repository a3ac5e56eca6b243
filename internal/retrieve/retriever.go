// Package retrieve runs similarity search over the indexed corpus.
package retrieve

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/keepmark/recall/internal/provider"
	"github.com/keepmark/recall/internal/recallerr"
	"github.com/keepmark/recall/internal/store"
)

// Config tunes retrieval behavior.
type Config struct {
	// TopK is the maximum number of matches returned.
	TopK int

	// Threshold drops matches whose cosine similarity is below it.
	Threshold float64
}

// Options narrows a single retrieval call.
type Options struct {
	// Scope restricts the scan to these source IDs. Empty means the
	// whole corpus.
	Scope []string

	// TopK overrides the configured limit when positive.
	TopK int
}

// Retriever embeds a query and scans the vector store for the most
// similar chunks.
type Retriever struct {
	embedder provider.EmbeddingProvider
	vs       store.VectorStore
	cfg      Config
	logger   *slog.Logger
}

// New creates a retriever. The embedder should be the cached one so
// repeated queries skip the provider.
func New(embedder provider.EmbeddingProvider, vs store.VectorStore, cfg Config, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, vs: vs, cfg: cfg, logger: logger}
}

// Retrieve returns the top matches for the query, best first. Ties on
// score go to the more recently embedded chunk. An empty result is not
// an error; a corpus with nothing relevant simply yields no matches.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]store.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, recallerr.New(recallerr.ErrCodeQueryEmpty, "query must not be empty", nil)
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scope := make(map[string]struct{}, len(opts.Scope))
	for _, id := range opts.Scope {
		scope[id] = struct{}{}
	}

	matches, err := r.vs.Scan(ctx, vec, scope)
	if err != nil {
		return nil, err
	}

	kept := matches[:0]
	for _, m := range matches {
		if m.Score >= r.cfg.Threshold {
			kept = append(kept, m)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].CreatedAt.After(kept[j].CreatedAt)
	})

	topK := r.cfg.TopK
	if opts.TopK > 0 {
		topK = opts.TopK
	}
	if topK > 0 && len(kept) > topK {
		kept = kept[:topK]
	}

	r.logger.Debug("retrieval complete",
		"scanned", len(matches),
		"returned", len(kept),
		"threshold", r.cfg.Threshold,
	)
	return kept, nil
}

// TopK returns the configured result limit.
func (r *Retriever) TopK() int {
	return r.cfg.TopK
}
