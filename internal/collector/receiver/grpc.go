package receiver

import (
	"context"

	colmetricpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/quillon/tracekit/internal/collector/otlpconv"
	"github.com/quillon/tracekit/internal/infrastructure/monitoring"
)

// GRPC serves the OTLP trace and metrics services and feeds decoded records
// to the sink. The two OTLP services both name their RPC Export, so each
// gets its own server type.
type GRPC struct {
	traces  *traceService
	metrics *metricsService
}

// NewGRPC creates the gRPC receiver. metrics may be nil.
func NewGRPC(sink Sink, logger *zap.Logger, metrics *monitoring.Metrics) *GRPC {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPC{
		traces:  &traceService{sink: sink, logger: logger, metrics: metrics},
		metrics: &metricsService{sink: sink, logger: logger, metrics: metrics},
	}
}

// Register attaches both OTLP services to the server.
func (r *GRPC) Register(server *grpc.Server) {
	coltracepb.RegisterTraceServiceServer(server, r.traces)
	colmetricpb.RegisterMetricsServiceServer(server, r.metrics)
}

type traceService struct {
	coltracepb.UnimplementedTraceServiceServer

	sink    Sink
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

func (s *traceService) Export(_ context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	spans := otlpconv.FromProtoTraces(req)
	for _, sd := range spans {
		s.sink.EnqueueSpan(sd)
	}
	if s.metrics != nil {
		s.metrics.RecordReceive("grpc", "ok")
	}
	s.logger.Debug("received trace export", zap.Int("spans", len(spans)))
	return &coltracepb.ExportTraceServiceResponse{}, nil
}

type metricsService struct {
	colmetricpb.UnimplementedMetricsServiceServer

	sink    Sink
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

func (s *metricsService) Export(_ context.Context, req *colmetricpb.ExportMetricsServiceRequest) (*colmetricpb.ExportMetricsServiceResponse, error) {
	points := otlpconv.FromProtoMetrics(req)
	for _, p := range points {
		s.sink.EnqueuePoint(p)
	}
	if s.metrics != nil {
		s.metrics.RecordReceive("grpc", "ok")
	}
	s.logger.Debug("received metrics export", zap.Int("points", len(points)))
	return &colmetricpb.ExportMetricsServiceResponse{}, nil
}
