package trace

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SpanSink receives finished span records. EnqueueSpan must be non-blocking
// and in-memory; the collector pipeline is the production implementation.
type SpanSink interface {
	EnqueueSpan(data SpanData)
}

// Tracer creates spans for one service. It is safe for concurrent use.
type Tracer struct {
	service string
	logger  *zap.Logger
	sink    SpanSink
}

// New creates a tracer. A nil sink discards finished spans, which keeps
// instrumented code paths working in tests and tools without a pipeline.
func New(service string, logger *zap.Logger, sink SpanSink) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{
		service: service,
		logger:  logger,
		sink:    sink,
	}
}

type startConfig struct {
	kind       Kind
	parent     SpanContext
	hasParent  bool
	noParent   bool
	notSampled bool
	links      []SpanContext
	attrs      []Attribute
}

// StartOption configures a call to Start.
type StartOption func(*startConfig)

// WithKind sets the span kind; the default is KindInternal.
func WithKind(kind Kind) StartOption {
	return func(c *startConfig) { c.kind = kind }
}

// WithParent sets an explicit parent, overriding the ambient span in the
// context. Used at process boundaries with an extracted remote context.
func WithParent(parent SpanContext) StartOption {
	return func(c *startConfig) {
		c.parent = parent
		c.hasParent = true
	}
}

// WithNoParent forces a new trace root even when the context carries a span.
// Combine with WithLinks to reference the originating request.
func WithNoParent() StartOption {
	return func(c *startConfig) { c.noParent = true }
}

// WithLinks attaches weak references to other span contexts. Links are stored
// verbatim and never affect the new span's trace id or parent.
func WithLinks(links ...SpanContext) StartOption {
	return func(c *startConfig) { c.links = append(c.links, links...) }
}

// WithAttributes sets initial attributes.
func WithAttributes(attrs ...Attribute) StartOption {
	return func(c *startConfig) { c.attrs = append(c.attrs, attrs...) }
}

// WithNotSampled marks the span as pre-resolved to "drop": the returned span
// is inert but still carries valid, propagatable ids.
func WithNotSampled() StartOption {
	return func(c *startConfig) { c.notSampled = true }
}

// Start creates a span and returns a context carrying it as the current span.
//
// Parent resolution: an explicit WithParent wins; otherwise the ambient span
// in ctx is the parent; with neither (or WithNoParent) the span becomes a
// trace root with a fresh trace id. A child inherits the parent's trace id
// and sampling flag, and the ambient baggage travels on unchanged.
func (t *Tracer) Start(ctx context.Context, name string, opts ...StartOption) (context.Context, Span) {
	cfg := startConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	parent := cfg.parent
	if !cfg.hasParent && !cfg.noParent {
		parent = SpanFromContext(ctx).Context()
	}
	if cfg.noParent {
		parent = SpanContext{}
	}

	sc := SpanContext{SpanID: newSpanID(), Sampled: true}
	var parentID SpanID
	if parent.IsValid() {
		sc.TraceID = parent.TraceID
		sc.Sampled = parent.Sampled
		parentID = parent.SpanID
	} else {
		sc.TraceID = newTraceID()
	}
	if cfg.notSampled {
		sc.Sampled = false
	}

	if !sc.Sampled {
		span := noopSpan{sc: sc}
		return ContextWithSpan(ctx, span), span
	}

	span := &recordingSpan{
		tracer: t,
		data: SpanData{
			Context:    sc,
			ParentID:   parentID,
			Name:       name,
			Kind:       cfg.kind,
			Service:    t.service,
			StartTime:  time.Now(),
			Attributes: cfg.attrs,
			Links:      cfg.links,
		},
	}
	return ContextWithSpan(ctx, span), span
}

// EndOnDone closes span when ctx is cancelled before a normal End. The span
// is closed with error status "cancelled" and still enqueued; a cancelled
// request never silently drops out of its trace. The returned stop function
// must be called on the normal path.
func (t *Tracer) EndOnDone(ctx context.Context, span Span) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if span.IsRecording() {
				span.SetStatus(StatusError, "cancelled")
				span.End()
			}
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (t *Tracer) finish(data SpanData) {
	if t.sink == nil {
		return
	}
	t.sink.EnqueueSpan(data)
	t.logger.Debug("span finished",
		zap.String("trace_id", data.Context.TraceID.String()),
		zap.String("span_id", data.Context.SpanID.String()),
		zap.String("name", data.Name),
		zap.Duration("duration", data.EndTime.Sub(data.StartTime)),
	)
}
