package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":4318", cfg.Collector.HTTPAddr)
	assert.Equal(t, ":4317", cfg.Collector.GRPCAddr)
	assert.True(t, cfg.Collector.RateLimitEnabled)

	assert.Equal(t, 2048, cfg.Pipeline.BufferCapacity)
	assert.Equal(t, 512, cfg.Pipeline.MaxBatchSize)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.FlushInterval)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Pipeline.BackoffBase)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.BackoffCap)

	assert.True(t, cfg.Export.StdoutEnabled)
	assert.Equal(t, "grpc", cfg.Export.OTLPTransport)
	assert.False(t, cfg.Kafka.IngestEnabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("COLLECTOR_HTTP_ADDR", ":9999")
	t.Setenv("PIPELINE_MAX_BATCH_SIZE", "64")
	t.Setenv("PIPELINE_FLUSH_INTERVAL", "250ms")
	t.Setenv("KAFKA_BROKERS", "b1:9092,b2:9092")
	t.Setenv("KAFKA_INGEST_ENABLED", "true")
	t.Setenv("EXPORT_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Collector.HTTPAddr)
	assert.Equal(t, 64, cfg.Pipeline.MaxBatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.FlushInterval)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.IngestEnabled)
	assert.Equal(t, "collector:4317", cfg.Export.OTLPEndpoint)
}

func TestDefaultMatchesLoad(t *testing.T) {
	loaded, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Default(), loaded)
}
