// Package ratelimit paces concurrent upstream calls with per-endpoint token
// buckets so the live API cannot exhaust the shared provider quota.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/neows-archiver/internal/metrics"
	"github.com/JakeFAU/neows-archiver/internal/neo"
)

// Config holds rate limiter configuration.
type Config struct {
	// RPS is the sustained request rate per endpoint. Zero or negative disables limiting.
	RPS   float64
	Burst int
}

// Limiter manages one token bucket per endpoint label.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Wait blocks until endpoint may be called or ctx ends.
func (l *Limiter) Wait(ctx context.Context, endpoint string) error {
	label := metrics.EndpointLabel(endpoint)
	l.mu.Lock()
	limiter, ok := l.limiters[label]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[label] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(label, waited)
	}
	return nil
}

// Fetcher gates every call to the wrapped fetcher on the limiter.
type Fetcher struct {
	next    neo.Fetcher
	limiter *Limiter
}

// Wrap returns next paced by l.
func Wrap(next neo.Fetcher, l *Limiter) *Fetcher {
	return &Fetcher{next: next, limiter: l}
}

// Fetch implements neo.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	if err := f.limiter.Wait(ctx, endpoint); err != nil {
		return nil, err
	}
	return f.next.Fetch(ctx, endpoint, params)
}
