package provider

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter throttles provider calls process-wide. A single Limiter is
// shared by all indexing jobs and queries, so concurrent work competes
// for the same in-flight slots instead of multiplying load on the
// backend.
type Limiter struct {
	rate *rate.Limiter
	sem  *semaphore.Weighted
}

// NewLimiter creates a limiter allowing maxInFlight concurrent calls at a
// sustained requestsPerSec rate with the given burst.
func NewLimiter(maxInFlight int, requestsPerSec float64, burst int) *Limiter {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	if burst <= 0 {
		burst = 1
	}
	rl := rate.NewLimiter(rate.Limit(requestsPerSec), burst)
	if requestsPerSec <= 0 {
		rl = rate.NewLimiter(rate.Inf, burst)
	}
	return &Limiter{
		rate: rl,
		sem:  semaphore.NewWeighted(int64(maxInFlight)),
	}
}

// Acquire blocks until a call slot is available or ctx is done.
// Every successful Acquire must be paired with Release.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.rate.Wait(ctx); err != nil {
		return err
	}
	return l.sem.Acquire(ctx, 1)
}

// Release returns a call slot.
func (l *Limiter) Release() {
	l.sem.Release(1)
}
