// Package fetcher implements the resilient provider fetcher: bounded retries
// with linear backoff, a fixed post-success rate-limit pause, a shared API key,
// and a per-request timeout.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/neows-archiver/internal/clock/system"
	"github.com/JakeFAU/neows-archiver/internal/metrics"
	"github.com/JakeFAU/neows-archiver/internal/neo"
)

const (
	defaultRetries        = 3
	defaultBackoffFactor  = time.Second
	defaultRateLimitSleep = 120 * time.Millisecond
	defaultTimeout        = 10 * time.Second
	defaultUserAgent      = "neows-archiver/1.0"
	maxBodyBytes          = 32 << 20
)

// Config controls retry, pacing, and request parameters.
type Config struct {
	APIKey         string
	Retries        int
	BackoffFactor  time.Duration
	RateLimitSleep time.Duration
	Timeout        time.Duration
	UserAgent      string
}

// DefaultConfig returns the documented defaults with the public demo key.
func DefaultConfig() Config {
	return Config{
		APIKey:         "DEMO_KEY",
		Retries:        defaultRetries,
		BackoffFactor:  defaultBackoffFactor,
		RateLimitSleep: defaultRateLimitSleep,
		Timeout:        defaultTimeout,
		UserAgent:      defaultUserAgent,
	}
}

// Fetcher implements neo.Fetcher over net/http.
type Fetcher struct {
	client *http.Client
	cfg    Config
	policy *LinearRetryPolicy
	clock  neo.Clock
	logger *zap.Logger
}

// New builds a Fetcher. A nil client, clock, or logger gets a sane default.
func New(cfg Config, client *http.Client, clock neo.Clock, logger *zap.Logger) *Fetcher {
	if cfg.Retries <= 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if client == nil {
		client = &http.Client{}
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client: client,
		cfg:    cfg,
		policy: NewLinearRetryPolicy(cfg.Retries, cfg.BackoffFactor),
		clock:  clock,
		logger: logger,
	}
}

// Fetch GETs endpoint with params plus the API key and returns the JSON body.
// After the final failed attempt it returns a *neo.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	reqURL, err := f.buildURL(endpoint, params)
	if err != nil {
		return nil, err
	}
	label := metrics.EndpointLabel(endpoint)

	for attempt := 1; ; attempt++ {
		start := time.Now()
		body, err := f.attempt(ctx, reqURL)
		if err == nil {
			metrics.ObserveFetch(label, metrics.OutcomeSuccess, time.Since(start))
			if sleepErr := f.clock.Sleep(ctx, f.cfg.RateLimitSleep); sleepErr != nil {
				f.logger.Debug("rate limit pause interrupted", zap.String("endpoint", endpoint), zap.Error(sleepErr))
			}
			return body, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", endpoint, ctxErr)
		}
		if !f.policy.ShouldRetry(err, attempt) {
			metrics.ObserveFetch(label, metrics.OutcomeExhausted, time.Since(start))
			f.logger.Warn("fetch failed, giving up",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return nil, &neo.FetchError{Endpoint: endpoint, Attempts: attempt, Err: err}
		}

		metrics.ObserveFetch(label, metrics.OutcomeRetry, time.Since(start))
		backoff := f.policy.Backoff(attempt)
		f.logger.Warn("fetch failed, retrying",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", f.policy.MaxAttempts()),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if sleepErr := f.clock.Sleep(ctx, backoff); sleepErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", endpoint, sleepErr)
		}
	}
}

func (f *Fetcher) buildURL(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("endpoint %q must be absolute", endpoint)
	}
	query := u.Query()
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	if f.cfg.APIKey != "" {
		query.Set("api_key", f.cfg.APIKey)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (f *Fetcher) attempt(ctx context.Context, reqURL string) (json.RawMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", redactURLError(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &neo.StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if !json.Valid(body) {
		return nil, errors.New("response body is not valid JSON")
	}
	return json.RawMessage(body), nil
}

// redactURLError strips the query string (and with it the API key) from
// *url.Error messages.
func redactURLError(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	if u, parseErr := url.Parse(urlErr.URL); parseErr == nil {
		u.RawQuery = ""
		return &url.Error{Op: urlErr.Op, URL: u.String(), Err: urlErr.Err}
	}
	return err
}
