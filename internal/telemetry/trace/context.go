package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// TraceID identifies a trace: every span in a causal chain carries the same one.
type TraceID [16]byte

// SpanID identifies a single span within a trace.
type SpanID [8]byte

// IsValid reports whether the trace ID is non-zero.
func (t TraceID) IsValid() bool {
	return t != TraceID{}
}

func (t TraceID) String() string {
	return hex.EncodeToString(t[:])
}

// IsValid reports whether the span ID is non-zero.
func (s SpanID) IsValid() bool {
	return s != SpanID{}
}

func (s SpanID) String() string {
	return hex.EncodeToString(s[:])
}

// SpanContext is the immutable propagated identity of a span: the ids that
// cross process boundaries plus the pre-resolved sampling decision.
type SpanContext struct {
	TraceID TraceID
	SpanID  SpanID
	Sampled bool
}

// IsValid reports whether both ids are non-zero.
func (sc SpanContext) IsValid() bool {
	return sc.TraceID.IsValid() && sc.SpanID.IsValid()
}

func newTraceID() TraceID {
	var t TraceID
	// crypto/rand never fails on supported platforms; a short read would
	// leave a zero id, which IsValid rejects downstream.
	_, _ = rand.Read(t[:])
	return t
}

func newSpanID() SpanID {
	var s SpanID
	_, _ = rand.Read(s[:])
	return s
}

type contextKey int

const (
	spanKey contextKey = iota
	baggageKey
)

// ContextWithSpan returns a context carrying span as the current span.
func ContextWithSpan(ctx context.Context, span Span) context.Context {
	return context.WithValue(ctx, spanKey, span)
}

// SpanFromContext returns the current span, or a no-op span when none is set.
func SpanFromContext(ctx context.Context) Span {
	if span, ok := ctx.Value(spanKey).(Span); ok {
		return span
	}
	return noopSpan{}
}

// ContextWithBaggage returns a context carrying the given baggage.
func ContextWithBaggage(ctx context.Context, b Baggage) context.Context {
	return context.WithValue(ctx, baggageKey, b)
}

// BaggageFromContext returns the ambient baggage, empty when none is set.
// Baggage is a value type: mutations on the returned copy never leak back
// into the context it came from.
func BaggageFromContext(ctx context.Context) Baggage {
	if b, ok := ctx.Value(baggageKey).(Baggage); ok {
		return b
	}
	return Baggage{}
}
