package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/neows-archiver/internal/progress"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wraps logger; nil logs nowhere.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the batch. Per-record stages log at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.Int("page", evt.Page),
		}
		if evt.TotalPages > 0 {
			fields = append(fields, zap.Int("total_pages", evt.TotalPages))
		}
		if evt.RecordID != "" {
			fields = append(fields, zap.String("record_id", evt.RecordID))
		}
		if evt.Inserted > 0 {
			fields = append(fields, zap.Int64("inserted", evt.Inserted))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageLookupFailed, progress.StageCrawlError:
			s.logger.Warn("progress event", fields...)
		default:
			s.logger.Debug("progress event", fields...)
		}
	}
	return nil
}

// Close flushes buffered log entries. Sync errors on terminals are ignored.
func (s *LogSink) Close(context.Context) error {
	_ = s.logger.Sync()
	return nil
}
