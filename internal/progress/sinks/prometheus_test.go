package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/neows-archiver/internal/progress"
)

func crawlBatch(run [16]byte) []progress.Event {
	now := time.Now()
	return []progress.Event{
		{RunID: run, TS: now, Stage: progress.StageCrawlStart},
		{RunID: run, TS: now, Stage: progress.StagePageDone, Page: 0, TotalPages: 2, Inserted: 18},
		{RunID: run, TS: now, Stage: progress.StageLookupFailed, Page: 1, RecordID: "2000433", Note: "503"},
		{RunID: run, TS: now, Stage: progress.StageRecordSkipped, Page: 1},
		{RunID: run, TS: now, Stage: progress.StagePageDone, Page: 1, TotalPages: 2, Inserted: 2},
		{RunID: run, TS: now, Stage: progress.StageCrawlDone, Inserted: 20, Dur: 90 * time.Second},
	}
}

func TestPrometheusSinkRecordsCrawl(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), crawlBatch(progress.UUIDToBytes(uuid.New()))))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsStarted), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("done")), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.runsActive), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.pages), 1e-9)
	require.InDelta(t, 20.0, testutil.ToFloat64(sink.inserted), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.recordIssues.WithLabelValues("lookup_failed")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.recordIssues.WithLabelValues("skipped")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.lastPage), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.runDuration, "neows_crawl_run_duration_seconds"))
	require.NoError(t, sink.Close(context.Background()))
}

func TestPrometheusSinkRejectsDoubleRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Consume(context.Background(), crawlBatch(progress.UUIDToBytes(uuid.New()))))
	require.NoError(t, sink.Close(context.Background()))

	require.Equal(t, 6, logs.Len())
	warns := logs.FilterLevelExact(zap.WarnLevel).All()
	require.Len(t, warns, 1)
	require.Equal(t, "2000433", warns[0].ContextMap()["record_id"])
}
