package export

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"

	"github.com/quillon/tracekit/internal/collector/otlpconv"
	"github.com/quillon/tracekit/internal/pipeline"
)

// Kafka publishes batches as proto-encoded OTLP export requests on a topic.
// Spans and points from one batch share a message key (the batch ID) so
// ordering within a batch survives partitioning.
type Kafka struct {
	service string
	writer  *kafka.Writer
}

// NewKafka creates an exporter writing to the given brokers and topic.
func NewKafka(brokers []string, topic, service string) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Kafka{service: service, writer: w}
}

// Name implements pipeline.Exporter.
func (e *Kafka) Name() string { return "kafka" }

// Export writes one message per signal present in the batch. Broker errors
// are transient; marshal failures will never succeed and are fatal.
func (e *Kafka) Export(ctx context.Context, batch pipeline.Batch) error {
	var messages []kafka.Message

	if spans := batch.Spans(); len(spans) > 0 {
		value, err := proto.Marshal(otlpconv.ToProtoTraces(spans))
		if err != nil {
			return pipeline.Fatal(fmt.Errorf("marshal trace request: %w", err))
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(batch.ID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "signal", Value: []byte("traces")},
			},
		})
	}
	if points := batch.Metrics(); len(points) > 0 {
		value, err := proto.Marshal(otlpconv.ToProtoMetrics(e.service, points))
		if err != nil {
			return pipeline.Fatal(fmt.Errorf("marshal metrics request: %w", err))
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(batch.ID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "signal", Value: []byte("metrics")},
			},
		})
	}
	if len(messages) == 0 {
		return nil
	}

	if err := e.writer.WriteMessages(ctx, messages...); err != nil {
		return pipeline.Retryable(err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (e *Kafka) Close() error {
	return e.writer.Close()
}
