// Package provider implements the embedding and generation backends.
//
// Backends: "ollama" (local, default), "gemini" (hosted), and "static"
// (deterministic hash-based, no network). Raw backends are composed with
// a shared limiter, a circuit breaker, retry with exponential backoff,
// and a per-call timeout; see ReliableEmbedder and ReliableGenerator.
package provider

import (
	"context"
)

// EmbeddingProvider converts text into a fixed-dimension vector.
type EmbeddingProvider interface {
	// Embed returns the embedding for a single text. The returned vector
	// always has Dimensions() elements.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier, used for cache keys and logs.
	ModelName() string

	// Close releases provider resources.
	Close() error
}

// GenerationProvider produces a completion for a prompt. Used for answer
// synthesis; callers build the full prompt including retrieved context.
type GenerationProvider interface {
	Generate(ctx context.Context, prompt string) (string, error)
	ModelName() string
	Close() error
}
