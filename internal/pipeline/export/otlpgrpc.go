package export

import (
	"context"
	"fmt"
	"time"

	colmetricpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/quillon/tracekit/internal/collector/otlpconv"
	"github.com/quillon/tracekit/internal/pipeline"
)

// OTLPGRPC ships batches to an upstream OTLP collector over gRPC.
type OTLPGRPC struct {
	service string
	conn    *grpc.ClientConn
	traces  coltracepb.TraceServiceClient
	metrics colmetricpb.MetricsServiceClient
	timeout time.Duration
}

// NewOTLPGRPC connects to the given endpoint (host:port, plaintext). The
// connection is lazy; a down collector surfaces as export failures, not a
// constructor error.
func NewOTLPGRPC(endpoint, service string) (*OTLPGRPC, error) {
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial otlp collector %s: %w", endpoint, err)
	}
	return &OTLPGRPC{
		service: service,
		conn:    conn,
		traces:  coltracepb.NewTraceServiceClient(conn),
		metrics: colmetricpb.NewMetricsServiceClient(conn),
		timeout: 10 * time.Second,
	}, nil
}

// Name implements pipeline.Exporter.
func (e *OTLPGRPC) Name() string { return "otlp_grpc" }

// Export sends the batch's spans and points as OTLP export requests.
func (e *OTLPGRPC) Export(ctx context.Context, batch pipeline.Batch) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if spans := batch.Spans(); len(spans) > 0 {
		if _, err := e.traces.Export(ctx, otlpconv.ToProtoTraces(spans)); err != nil {
			return classifyGRPC(err)
		}
	}
	if points := batch.Metrics(); len(points) > 0 {
		if _, err := e.metrics.Export(ctx, otlpconv.ToProtoMetrics(e.service, points)); err != nil {
			return classifyGRPC(err)
		}
	}
	return nil
}

// Close releases the client connection.
func (e *OTLPGRPC) Close() error {
	return e.conn.Close()
}

// classifyGRPC maps a gRPC status to the pipeline's retry classification.
// Rejections the collector will never accept are fatal; everything else gets
// the retry budget.
func classifyGRPC(err error) error {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied, codes.Unimplemented:
		return pipeline.Fatal(err)
	default:
		return pipeline.Retryable(err)
	}
}
