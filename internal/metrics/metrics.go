// Package metrics exposes Prometheus collectors for the archiver.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch attempt outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeRetry     = "retry"
	OutcomeExhausted = "exhausted"
)

// Archive insert results.
const (
	InsertNew       = "inserted"
	InsertDuplicate = "duplicate"
	InsertError     = "error"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	archiveInsertsTotal        *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neows_fetch_attempts_total",
				Help: "Provider fetch attempts, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "neows_fetch_duration_seconds",
				Help:    "Latency of single provider fetch attempts, labeled by endpoint.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"endpoint"},
		)

		archiveInsertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neows_archive_inserts_total",
				Help: "Archive insert attempts, labeled by result.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "neows_rate_limit_delay_seconds",
				Help:    "Time upstream calls spent waiting for a rate limit token, labeled by endpoint.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"endpoint"},
		)
	})
}

// EndpointLabel maps a provider URL onto a low-cardinality endpoint label.
func EndpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	path := strings.TrimSuffix(u.Path, "/")
	switch {
	case strings.HasSuffix(path, "/neo/browse"):
		return "browse"
	case strings.HasSuffix(path, "/feed"):
		return "feed"
	case strings.Contains(path, "/neo/"):
		return "lookup"
	default:
		return "other"
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records a single fetch attempt.
func ObserveFetch(endpoint, outcome string, duration time.Duration) {
	Init()
	fetchAttemptsTotal.WithLabelValues(endpoint, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveInsert records an archive insert result.
func ObserveInsert(result string) {
	Init()
	archiveInsertsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records time spent waiting on the upstream limiter.
func ObserveRateLimitDelay(endpoint string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(endpoint).Observe(delay.Seconds())
}
