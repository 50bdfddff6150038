package receiver

import (
	"github.com/quillon/tracekit/internal/telemetry/metric"
	"github.com/quillon/tracekit/internal/telemetry/trace"
)

// Sink accepts decoded telemetry from a receiver. Implementations must not
// block; the pipeline's Enqueue methods satisfy that.
type Sink interface {
	EnqueueSpan(trace.SpanData)
	EnqueuePoint(metric.Point)
}
