package provider

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepmark/recall/internal/recallerr"
)

// flakyEmbedder fails the first failures calls with failErr, then succeeds.
type flakyEmbedder struct {
	failures int
	failErr  error
	calls    atomic.Int64
	sleep    time.Duration
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := f.calls.Add(1)
	if f.sleep > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.sleep):
		}
	}
	if int(n) <= f.failures {
		return nil, f.failErr
	}
	return []float32{1, 0, 0}, nil
}

func (f *flakyEmbedder) Dimensions() int   { return 3 }
func (f *flakyEmbedder) ModelName() string { return "flaky" }
func (f *flakyEmbedder) Close() error      { return nil }

func fastReliableConfig() ReliableConfig {
	return ReliableConfig{
		CallTimeout: 100 * time.Millisecond,
		Retry: recallerr.RetryConfig{
			MaxRetries:   3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2.0,
		},
	}
}

func TestReliableEmbedder_RetriesTransientFailures(t *testing.T) {
	// Given a backend that rate-limits twice before succeeding
	flaky := &flakyEmbedder{
		failures: 2,
		failErr:  recallerr.RateLimited("slow down", nil),
	}
	r := NewReliableEmbedder(flaky, fastReliableConfig())

	// When
	vec, err := r.Embed(context.Background(), "text")

	// Then
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vec)
	assert.Equal(t, int64(3), flaky.calls.Load())
}

func TestReliableEmbedder_AuthFailureIsNotRetried(t *testing.T) {
	flaky := &flakyEmbedder{
		failures: 10,
		failErr:  recallerr.AuthError("bad key", nil),
	}
	r := NewReliableEmbedder(flaky, fastReliableConfig())

	_, err := r.Embed(context.Background(), "text")

	require.Error(t, err)
	assert.Equal(t, recallerr.ErrCodeAuth, recallerr.GetCode(err))
	assert.Equal(t, int64(1), flaky.calls.Load())
}

func TestReliableEmbedder_CallTimeoutIsTransient(t *testing.T) {
	// Backend hangs past the per-call timeout on the first attempt only.
	flaky := &flakyEmbedder{sleep: 50 * time.Millisecond}
	cfg := fastReliableConfig()
	cfg.CallTimeout = 10 * time.Millisecond
	cfg.Retry.MaxRetries = 1
	r := NewReliableEmbedder(flaky, cfg)

	_, err := r.Embed(context.Background(), "text")

	// Every attempt times out, so the wrapper reports a retryable
	// network error rather than a bare deadline error.
	require.Error(t, err)
	assert.Equal(t, recallerr.ErrCodeNetwork, recallerr.GetCode(err))
	assert.Equal(t, int64(2), flaky.calls.Load())
}

func TestReliableEmbedder_ParentCancellationWins(t *testing.T) {
	flaky := &flakyEmbedder{sleep: time.Second}
	r := NewReliableEmbedder(flaky, fastReliableConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Embed(ctx, "text")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReliableEmbedder_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	flaky := &flakyEmbedder{
		failures: 1000,
		failErr:  recallerr.NetworkError("connection refused", nil),
	}
	cfg := fastReliableConfig()
	cfg.Retry.MaxRetries = 0
	r := NewReliableEmbedder(flaky, cfg)

	for i := 0; i < breakerFailureThreshold; i++ {
		_, err := r.Embed(context.Background(), "text")
		require.Error(t, err)
	}
	before := flaky.calls.Load()

	// The breaker is now open, so the backend is no longer called.
	_, err := r.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, before, flaky.calls.Load())
	assert.Equal(t, recallerr.ErrCodeNetwork, recallerr.GetCode(err))
}

func TestReliableEmbedder_SharedLimiterBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64
	tracking := &trackingEmbedder{inFlight: &inFlight, peak: &peak}
	cfg := fastReliableConfig()
	cfg.Limiter = NewLimiter(2, 0, 1)
	r := NewReliableEmbedder(tracking, cfg)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := r.Embed(context.Background(), "text")
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.LessOrEqual(t, peak.Load(), int64(2))
}

// trackingEmbedder records peak concurrent Embed calls.
type trackingEmbedder struct {
	inFlight *atomic.Int64
	peak     *atomic.Int64
}

func (e *trackingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	cur := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		old := e.peak.Load()
		if cur <= old || e.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return []float32{1}, nil
}

func (e *trackingEmbedder) Dimensions() int   { return 1 }
func (e *trackingEmbedder) ModelName() string { return "tracking" }
func (e *trackingEmbedder) Close() error      { return nil }
