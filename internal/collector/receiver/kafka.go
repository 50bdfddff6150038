package receiver

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	colmetricpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/quillon/tracekit/internal/collector/otlpconv"
	"github.com/quillon/tracekit/internal/infrastructure/monitoring"
)

// Kafka consumes proto-encoded export requests from a topic and feeds the
// sink. Messages carry a "signal" header distinguishing traces from metrics;
// a message without one is assumed to be traces.
type Kafka struct {
	reader     *kafka.Reader
	sink       Sink
	logger     *zap.Logger
	metrics    *monitoring.Metrics
	instanceID string
}

// KafkaConfig holds the consumer settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewKafka creates a consumer joining the configured group. Each instance
// gets a unique client id so broker logs can tell replicas apart.
func NewKafka(cfg KafkaConfig, sink Sink, logger *zap.Logger, metrics *monitoring.Metrics) *Kafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	instanceID := uuid.NewString()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    10e3,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
		ErrorLogger: kafka.LoggerFunc(func(format string, args ...interface{}) {
			logger.Sugar().Warnf(format, args...)
		}),
	})

	return &Kafka{
		reader:     reader,
		sink:       sink,
		logger:     logger.With(zap.String("consumer_id", instanceID)),
		metrics:    metrics,
		instanceID: instanceID,
	}
}

// Run consumes until ctx is cancelled, then closes the reader.
func (r *Kafka) Run(ctx context.Context) error {
	defer r.reader.Close()

	r.logger.Info("kafka consumer started",
		zap.String("topic", r.reader.Config().Topic),
		zap.String("group_id", r.reader.Config().GroupID),
	)

	for {
		msg, err := r.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				r.logger.Info("kafka consumer stopping")
				return nil
			}
			r.logger.Warn("kafka read failed", zap.Error(err))
			continue
		}

		if err := r.process(msg); err != nil {
			r.logger.Warn("skipping undecodable message",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			if r.metrics != nil {
				r.metrics.RecordReceive("kafka", "undecodable")
			}
			continue
		}
		if r.metrics != nil {
			r.metrics.RecordReceive("kafka", "ok")
		}
	}
}

func (r *Kafka) process(msg kafka.Message) error {
	switch signalHeader(msg) {
	case "metrics":
		var req colmetricpb.ExportMetricsServiceRequest
		if err := proto.Unmarshal(msg.Value, &req); err != nil {
			return err
		}
		for _, p := range otlpconv.FromProtoMetrics(&req) {
			r.sink.EnqueuePoint(p)
		}
	default:
		var req coltracepb.ExportTraceServiceRequest
		if err := proto.Unmarshal(msg.Value, &req); err != nil {
			return err
		}
		for _, sd := range otlpconv.FromProtoTraces(&req) {
			r.sink.EnqueueSpan(sd)
		}
	}
	return nil
}

func signalHeader(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == "signal" {
			return string(h.Value)
		}
	}
	return "traces"
}
