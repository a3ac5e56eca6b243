package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/keepmark/recall/internal/recallerr"
)

// Breaker defaults. The breaker opens after a run of consecutive
// failures and probes again after the cooldown.
const (
	breakerFailureThreshold = 5
	breakerCooldown         = 30 * time.Second
)

// ReliableConfig tunes the reliability wrapper around a raw provider.
type ReliableConfig struct {
	// Limiter is the process-wide call limiter, shared across providers.
	Limiter *Limiter

	// CallTimeout bounds each individual provider request.
	CallTimeout time.Duration

	// Retry controls backoff between attempts. Zero value means
	// recallerr.DefaultRetryConfig.
	Retry recallerr.RetryConfig

	Logger *slog.Logger
}

func (c *ReliableConfig) normalize() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.Retry.MaxRetries == 0 && c.Retry.InitialDelay == 0 {
		c.Retry = recallerr.DefaultRetryConfig()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// Caller-side cancellation is not a backend failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// ReliableEmbedder wraps an EmbeddingProvider with the shared limiter, a
// circuit breaker, a per-call timeout, and retry with exponential
// backoff. Retries happen outside the limiter so backoff sleeps do not
// hold an in-flight slot.
type ReliableEmbedder struct {
	inner   EmbeddingProvider
	cfg     ReliableConfig
	breaker *gobreaker.CircuitBreaker
}

// NewReliableEmbedder wraps the given embedder.
func NewReliableEmbedder(inner EmbeddingProvider, cfg ReliableConfig) *ReliableEmbedder {
	cfg.normalize()
	return &ReliableEmbedder{
		inner:   inner,
		cfg:     cfg,
		breaker: newBreaker("embed:" + inner.ModelName()),
	}
}

// Embed calls the wrapped provider, retrying transient failures.
func (r *ReliableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return recallerr.RetryWithResult(ctx, r.cfg.Retry, func() ([]float32, error) {
		return guardedCall(ctx, &r.cfg, r.breaker, func(callCtx context.Context) ([]float32, error) {
			return r.inner.Embed(callCtx, text)
		})
	})
}

// Dimensions returns the embedding dimension of the wrapped provider.
func (r *ReliableEmbedder) Dimensions() int {
	return r.inner.Dimensions()
}

// ModelName returns the model identifier of the wrapped provider.
func (r *ReliableEmbedder) ModelName() string {
	return r.inner.ModelName()
}

// Close closes the wrapped provider.
func (r *ReliableEmbedder) Close() error {
	return r.inner.Close()
}

// ReliableGenerator is the generation counterpart of ReliableEmbedder.
type ReliableGenerator struct {
	inner   GenerationProvider
	cfg     ReliableConfig
	breaker *gobreaker.CircuitBreaker
}

// NewReliableGenerator wraps the given generator.
func NewReliableGenerator(inner GenerationProvider, cfg ReliableConfig) *ReliableGenerator {
	cfg.normalize()
	return &ReliableGenerator{
		inner:   inner,
		cfg:     cfg,
		breaker: newBreaker("generate:" + inner.ModelName()),
	}
}

// Generate calls the wrapped provider, retrying transient failures.
func (r *ReliableGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return recallerr.RetryWithResult(ctx, r.cfg.Retry, func() (string, error) {
		return guardedCall(ctx, &r.cfg, r.breaker, func(callCtx context.Context) (string, error) {
			return r.inner.Generate(callCtx, prompt)
		})
	})
}

// ModelName returns the model identifier of the wrapped provider.
func (r *ReliableGenerator) ModelName() string {
	return r.inner.ModelName()
}

// Close closes the wrapped provider.
func (r *ReliableGenerator) Close() error {
	return r.inner.Close()
}

// guardedCall performs a single attempt: acquire a limiter slot, bound
// the call with the per-call timeout, and route it through the breaker.
func guardedCall[T any](ctx context.Context, cfg *ReliableConfig, breaker *gobreaker.CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if cfg.Limiter != nil {
		if err := cfg.Limiter.Acquire(ctx); err != nil {
			return zero, err
		}
		defer cfg.Limiter.Release()
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()

	out, err := breaker.Execute(func() (interface{}, error) {
		return fn(callCtx)
	})
	if err != nil {
		return zero, mapGuardError(ctx, callCtx, err)
	}
	return out.(T), nil
}

// mapGuardError normalizes breaker and timeout errors into typed errors.
// A per-call timeout with a live parent context is transient; the next
// attempt gets a fresh deadline.
func mapGuardError(parent, call context.Context, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return recallerr.NetworkError("provider circuit open", err).
			WithSuggestion("the backend is failing repeatedly; check its health")
	case parent.Err() != nil:
		return parent.Err()
	case errors.Is(err, context.DeadlineExceeded) && call.Err() != nil:
		return recallerr.NetworkError("provider call timed out", err)
	default:
		return err
	}
}

var (
	_ EmbeddingProvider  = (*ReliableEmbedder)(nil)
	_ GenerationProvider = (*ReliableGenerator)(nil)
)
