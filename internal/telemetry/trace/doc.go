/*
Package trace implements the in-process tracer: span lifecycle, causal
context propagation, and the header codec used across HTTP and gRPC hops.

# Overview

A Tracer creates spans that share a trace ID along a causal chain. The
"current span" is never global state; it travels as an explicit value inside
context.Context, together with the request's baggage. Completed spans are
handed to a SpanSink (normally the collector pipeline) and never mutated
afterwards.

# Usage

	tracer := trace.New("checkout", logger, pipeline)

	ctx, span := tracer.Start(ctx, "charge-card", trace.WithKind(trace.KindClient))
	defer span.End()

	span.SetAttribute("card.network", "visa")
	if err := charge(ctx); err != nil {
		span.RecordError(err)
		return err
	}

A background task that must reference a request without extending its
lifetime captures the span context and links it instead of parenting:

	sc := span.Context()
	go func() {
		_, bg := tracer.Start(context.Background(), "audit-write",
			trace.WithNoParent(), trace.WithLinks(sc))
		defer bg.End()
		// ...
	}()

# Propagation

Context crosses process boundaries through two headers:

	traceparent: 00-<trace-id>-<span-id>-<flags>
	baggage:     key1=value1,key2=value2

A malformed traceparent never fails the request; the receiver starts a new
trace root. Instrumentation failures stay inside this package: no method on a
Span or Tracer returns an error to business logic or panics on misuse.
*/
package trace
