package export

import (
	"context"

	"go.uber.org/zap"

	"github.com/quillon/tracekit/internal/pipeline"
	"github.com/quillon/tracekit/internal/telemetry/metric"
	"github.com/quillon/tracekit/internal/telemetry/trace"
)

// Stdout writes every record as a structured log line. Used in development
// and as an always-available sink in the demo service.
type Stdout struct {
	logger *zap.Logger
}

// NewStdout creates a stdout exporter logging through the given logger.
func NewStdout(logger *zap.Logger) *Stdout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stdout{logger: logger}
}

// Name implements pipeline.Exporter.
func (s *Stdout) Name() string { return "stdout" }

// Export logs each span and point in the batch. Never fails.
func (s *Stdout) Export(_ context.Context, batch pipeline.Batch) error {
	for _, sd := range batch.Spans() {
		fields := []zap.Field{
			zap.String("trace_id", sd.Context.TraceID.String()),
			zap.String("span_id", sd.Context.SpanID.String()),
			zap.String("name", sd.Name),
			zap.String("kind", sd.Kind.String()),
			zap.String("service", sd.Service),
			zap.Duration("duration", sd.EndTime.Sub(sd.StartTime)),
		}
		if sd.ParentID.IsValid() {
			fields = append(fields, zap.String("parent_span_id", sd.ParentID.String()))
		}
		if sd.Status.Code != trace.StatusUnset {
			fields = append(fields,
				zap.String("status", sd.Status.Code.String()),
				zap.String("status_message", sd.Status.Message),
			)
		}
		s.logger.Info("span", fields...)
	}

	for _, p := range batch.Metrics() {
		fields := []zap.Field{
			zap.String("name", p.Name),
			zap.String("kind", p.Kind.String()),
		}
		if p.Kind == metric.KindHistogram {
			fields = append(fields,
				zap.Float64("sum", p.Sum),
				zap.Uint64("count", p.Count),
			)
		} else {
			fields = append(fields, zap.Float64("value", p.Value))
		}
		s.logger.Info("metric", fields...)
	}
	return nil
}
