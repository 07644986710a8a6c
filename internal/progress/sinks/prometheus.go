package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/neows-archiver/internal/progress"
)

// PrometheusSink turns crawl events into collectors: runs started/finished,
// running runs, pages crawled, rows inserted, and per-record failures.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec
	pages         prometheus.Counter
	inserted      prometheus.Counter
	recordIssues  *prometheus.CounterVec
	lastPage      prometheus.Gauge

	mu      sync.Mutex
	running map[[16]byte]struct{}
}

// NewPrometheusSink registers the collectors with reg (default registerer
// when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neows_crawl_runs_started_total",
			Help: "Crawl runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neows_crawl_runs_completed_total",
			Help: "Crawl runs finished, by result.",
		}, []string{"result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neows_crawl_runs_active",
			Help: "Crawl runs in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "neows_crawl_run_duration_seconds",
			Help:    "Wall time per finished crawl run.",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"result"}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neows_crawl_pages_total",
			Help: "Catalog pages fully processed.",
		}),
		inserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neows_crawl_records_inserted_total",
			Help: "New rows archived by crawls.",
		}),
		recordIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neows_crawl_record_issues_total",
			Help: "Records not archived, by reason.",
		}, []string{"reason"}),
		lastPage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neows_crawl_last_page",
			Help: "Most recent catalog page processed; resume from the next one.",
		}),
		running: make(map[[16]byte]struct{}),
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.pages,
		s.inserted,
		s.recordIssues,
		s.lastPage,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageCrawlStart:
			s.runsStarted.Inc()
			if s.track(evt.RunID, true) {
				s.runsActive.Inc()
			}
		case progress.StagePageDone:
			s.pages.Inc()
			s.inserted.Add(float64(evt.Inserted))
			s.lastPage.Set(float64(evt.Page))
		case progress.StageRecordSkipped:
			s.recordIssues.WithLabelValues("skipped").Inc()
		case progress.StageLookupFailed:
			s.recordIssues.WithLabelValues("lookup_failed").Inc()
		case progress.StageCrawlDone:
			s.finish(evt, "done")
		case progress.StageCrawlError:
			s.finish(evt, "aborted")
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.track(evt.RunID, false) {
		s.runsActive.Dec()
	}
}

// track adds or removes a run and reports whether the set changed.
func (s *PrometheusSink) track(id [16]byte, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, present := s.running[id]
	if start {
		s.running[id] = struct{}{}
		return !present
	}
	delete(s.running, id)
	return present
}

// Close is a no-op.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
