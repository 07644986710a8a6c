package fetcher

import (
	"context"
	"errors"
	"time"
)

// LinearRetryPolicy retries every failure until the attempt budget is spent,
// waiting factor*attempt between attempts.
type LinearRetryPolicy struct {
	maxAttempts int
	factor      time.Duration
}

// NewLinearRetryPolicy builds a policy; non-positive attempts mean one try.
func NewLinearRetryPolicy(maxAttempts int, factor time.Duration) *LinearRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if factor < 0 {
		factor = 0
	}
	return &LinearRetryPolicy{maxAttempts: maxAttempts, factor: factor}
}

// MaxAttempts reports the attempt budget.
func (p *LinearRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether another attempt follows attempt (1-based).
// Per-request timeouts are retried; caller cancellation is not.
func (p *LinearRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Backoff returns the wait before the attempt following attempt.
func (p *LinearRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.factor * time.Duration(attempt)
}
