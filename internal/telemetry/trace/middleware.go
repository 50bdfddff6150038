package trace

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// HTTPMiddleware creates Gin middleware that extracts inbound propagation
// headers, opens a server span for the request, and finalizes it when the
// handler chain completes. A malformed traceparent starts a new trace root;
// it never fails the request.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		remote, baggage := Extract(c.Request.Header)

		ctx := ContextWithBaggage(c.Request.Context(), baggage)

		opts := []StartOption{
			WithKind(KindServer),
			WithAttributes(
				String("http.method", c.Request.Method),
				String("http.route", c.FullPath()),
				String("http.host", c.Request.Host),
			),
		}
		if remote.IsValid() {
			opts = append(opts, WithParent(remote))
		}

		ctx, span := tracer.Start(ctx, c.Request.Method+" "+c.FullPath(), opts...)
		c.Request = c.Request.WithContext(ctx)

		// Echo ids back so clients can correlate responses with traces.
		c.Header("X-Trace-ID", span.Context().TraceID.String())
		c.Header("X-Span-ID", span.Context().SpanID.String())

		c.Next()

		status := c.Writer.Status()
		span.SetAttribute("http.status_code", int64(status))
		switch {
		case c.Request.Context().Err() != nil:
			span.SetStatus(StatusError, "cancelled")
		case len(c.Errors) > 0:
			span.RecordError(c.Errors.Last())
		case status >= 500:
			span.SetStatus(StatusError, strconv.Itoa(status))
		}

		span.End()
	}
}

// UnaryServerInterceptor opens a server span per gRPC call, resuming a trace
// from traceparent/baggage metadata when present.
func UnaryServerInterceptor(tracer *Tracer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		remote, baggage := extractMetadata(ctx)

		ctx = ContextWithBaggage(ctx, baggage)
		opts := []StartOption{
			WithKind(KindServer),
			WithAttributes(
				String("rpc.system", "grpc"),
				String("rpc.method", info.FullMethod),
			),
		}
		if remote.IsValid() {
			opts = append(opts, WithParent(remote))
		}

		ctx, span := tracer.Start(ctx, info.FullMethod, opts...)
		defer span.End()

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
		}
		return resp, err
	}
}

// UnaryClientInterceptor opens a client span per outbound gRPC call and
// injects the propagation headers into outgoing metadata.
func UnaryClientInterceptor(tracer *Tracer) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, span := tracer.Start(ctx, method,
			WithKind(KindClient),
			WithAttributes(
				String("rpc.system", "grpc"),
				String("rpc.method", method),
			),
		)
		defer span.End()

		pairs := []string{TraceparentHeader, Encode(span.Context())}
		if b := BaggageFromContext(ctx); b.Len() > 0 {
			if encoded := EncodeBaggage(b); encoded != "" {
				pairs = append(pairs, BaggageHeader, encoded)
			}
		}
		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)

		err := invoker(ctx, method, req, reply, cc, opts...)
		if err != nil {
			span.RecordError(err)
		}
		return err
	}
}

func extractMetadata(ctx context.Context) (SpanContext, Baggage) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return SpanContext{}, Baggage{}
	}

	var sc SpanContext
	if vals := md.Get(TraceparentHeader); len(vals) > 0 {
		if decoded, err := Decode(vals[0]); err == nil {
			sc = decoded
		}
	}
	var b Baggage
	if vals := md.Get(BaggageHeader); len(vals) > 0 {
		b = DecodeBaggage(vals[0])
	}
	return sc, b
}
