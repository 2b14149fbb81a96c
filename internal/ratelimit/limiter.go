// Package ratelimit throttles outbound calls to the remote platform: a token
// bucket enforces each job's minimum inter-request delay, and a jittered
// exponential backoff paces retries after throttling or transient failures.
package ratelimit

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"golang.org/x/time/rate"

	"github.com/brightkite/channelpull/internal/metrics"
)

// Backoff computes retry delays. The delay doubles per attempt from Base up
// to Max, with random jitter in the upper half to spread synchronized
// retries.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before retry number attempt (zero-based). A
// retry-after hint from the remote wins when it is longer than the computed
// delay.
func (b Backoff) Delay(attempt int, hint time.Duration) time.Duration {
	delay := float64(b.Base) * math.Pow(2, float64(attempt))
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	half := time.Duration(delay / 2)
	jittered := half + randomJitter(half)
	if hint > jittered {
		return hint
	}
	return jittered
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Limiter paces one pull job's requests against a single channel.
type Limiter struct {
	channel string
	bucket  *rate.Limiter
	backoff Backoff
}

// New builds a Limiter enforcing minDelay between requests. A zero minDelay
// disables the bucket.
func New(channel string, minDelay time.Duration, backoff Backoff) *Limiter {
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	return &Limiter{
		channel: channel,
		bucket:  rate.NewLimiter(limit, 1),
		backoff: backoff,
	}
}

// Acquire blocks until it is safe to issue the next request. The only error
// it returns is the context's; abandoning the wait is always a caller-side
// cancellation, never a limiter failure.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitWait(l.channel, d)
	}
	return nil
}

// Pause sleeps out the backoff for the given attempt, honoring the remote's
// retry-after hint. It returns early when ctx ends; the caller re-checks
// cancellation afterwards.
func (l *Limiter) Pause(ctx context.Context, attempt int, hint time.Duration) {
	delay := l.backoff.Delay(attempt, hint)
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
