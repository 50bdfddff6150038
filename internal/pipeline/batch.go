package pipeline

import (
	"github.com/oklog/ulid/v2"

	"github.com/quillon/tracekit/internal/telemetry/metric"
	"github.com/quillon/tracekit/internal/telemetry/trace"
)

// Record is one unit of telemetry in the buffer: exactly one of Span or
// Metric is set.
type Record struct {
	Span   *trace.SpanData
	Metric *metric.Point
}

// Type returns "span" or "metric" for self-metrics labels.
func (r Record) Type() string {
	if r.Span != nil {
		return "span"
	}
	return "metric"
}

// Batch is an immutable, ordered set of records cut from the buffer at flush
// time. The pipeline owns it exclusively until every exporter has taken its
// copy; exporters must treat it as read-only.
type Batch struct {
	ID      string
	Records []Record
}

func newBatch(records []Record) Batch {
	return Batch{
		ID:      "batch_" + ulid.Make().String(),
		Records: records,
	}
}

// Spans returns the span records in enqueue order.
func (b Batch) Spans() []trace.SpanData {
	var spans []trace.SpanData
	for _, r := range b.Records {
		if r.Span != nil {
			spans = append(spans, *r.Span)
		}
	}
	return spans
}

// Metrics returns the metric points in enqueue order.
func (b Batch) Metrics() []metric.Point {
	var points []metric.Point
	for _, r := range b.Records {
		if r.Metric != nil {
			points = append(points, *r.Metric)
		}
	}
	return points
}

// Len returns the number of records.
func (b Batch) Len() int {
	return len(b.Records)
}
