// Package retry implements the bounded exponential backoff policy shared by
// chunk uploads, finalize calls, and merge status polling.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	mediaerrors "github.com/kingkw1/2Truths-1Lie-sub004/errors"
)

// Backoff computes retry delays with exponential growth, additive jitter, and
// a hard cap.
//
// Thread Safety: the configuration fields are immutable after construction
// and the jitter source is safe for concurrent use.
type Backoff struct {
	// BaseDelay seeds the exponential growth
	BaseDelay time.Duration

	// MaxDelay caps the computed delay
	MaxDelay time.Duration

	// Jitter bounds the random addition; zero disables jitter
	Jitter time.Duration

	// randInt63n is swapped for a deterministic source in tests
	randInt63n func(int64) int64
}

// New creates a Backoff with the given base, cap, and jitter bound.
func New(baseDelay, maxDelay, jitter time.Duration) *Backoff {
	return &Backoff{
		BaseDelay:  baseDelay,
		MaxDelay:   maxDelay,
		Jitter:     jitter,
		randInt63n: rand.Int63n,
	}
}

// Delay returns the wait before the given retry attempt. Attempt numbers are
// 1-based: the first retry waits roughly BaseDelay.
//
// The delay grows as BaseDelay * 2^(attempt-1), gains a random addition in
// [0, Jitter), and is capped at MaxDelay. With BaseDelay >= Jitter the
// sequence of delays is non-decreasing in the attempt number.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	// Exponential backoff: BaseDelay * 2^(attempt-1)
	delay := time.Duration(math.Pow(2, float64(attempt-1))) * b.BaseDelay

	// Add jitter to prevent synchronized retries across sessions
	if b.Jitter > 0 {
		rnd := b.randInt63n
		if rnd == nil {
			rnd = rand.Int63n
		}
		delay += time.Duration(rnd(int64(b.Jitter)))
	}

	// Cap at maximum delay (after adding jitter)
	if delay > b.MaxDelay {
		delay = b.MaxDelay
	}

	// Ensure delay is not negative
	if delay < 0 {
		delay = 0
	}

	return delay
}

// Retryable reports whether another attempt may help. Only transient failure
// kinds qualify; auth, validation, and cancellation never do.
func (b *Backoff) Retryable(err error) bool {
	if err == nil {
		return false
	}
	return mediaerrors.IsRetryable(err)
}

// Sleep waits for the given delay or until the context is cancelled,
// whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
