package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all collector configuration.
type Config struct {
	Collector CollectorConfig
	Pipeline  PipelineConfig
	Export    ExportConfig
	Kafka     KafkaConfig
	Logging   LogConfig
}

// CollectorConfig holds the receive-surface listen configuration.
type CollectorConfig struct {
	HTTPAddr         string `envconfig:"COLLECTOR_HTTP_ADDR" default:":4318"`
	GRPCAddr         string `envconfig:"COLLECTOR_GRPC_ADDR" default:":4317"`
	RateLimitRPS     int    `envconfig:"COLLECTOR_RATE_LIMIT_RPS" default:"200"`
	RateLimitBurst   int    `envconfig:"COLLECTOR_RATE_LIMIT_BURST" default:"400"`
	RateLimitEnabled bool   `envconfig:"COLLECTOR_RATE_LIMIT_ENABLED" default:"true"`
}

// PipelineConfig holds batching, backpressure, and retry tunables.
type PipelineConfig struct {
	BufferCapacity  int           `envconfig:"PIPELINE_BUFFER_CAPACITY" default:"2048"`
	MaxBatchSize    int           `envconfig:"PIPELINE_MAX_BATCH_SIZE" default:"512"`
	FlushInterval   time.Duration `envconfig:"PIPELINE_FLUSH_INTERVAL" default:"5s"`
	CollectInterval time.Duration `envconfig:"PIPELINE_COLLECT_INTERVAL" default:"10s"`
	MaxAttempts     int           `envconfig:"PIPELINE_MAX_ATTEMPTS" default:"3"`
	BackoffBase     time.Duration `envconfig:"PIPELINE_BACKOFF_BASE" default:"100ms"`
	BackoffCap      time.Duration `envconfig:"PIPELINE_BACKOFF_CAP" default:"5s"`
}

// ExportConfig holds backend exporter targets.
type ExportConfig struct {
	OTLPEndpoint  string `envconfig:"EXPORT_OTLP_ENDPOINT" default:""`
	OTLPTransport string `envconfig:"EXPORT_OTLP_TRANSPORT" default:"grpc"` // "grpc" or "http"
	StdoutEnabled bool   `envconfig:"EXPORT_STDOUT_ENABLED" default:"true"`
}

// KafkaConfig holds the kafka span transport configuration, used by both the
// kafka exporter and the kafka receiver.
type KafkaConfig struct {
	Brokers       []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	Topic         string   `envconfig:"KAFKA_TOPIC" default:"traces"`
	GroupID       string   `envconfig:"KAFKA_GROUP_ID" default:"tracekit-collector"`
	ExportEnabled bool     `envconfig:"KAFKA_EXPORT_ENABLED" default:"false"`
	IngestEnabled bool     `envconfig:"KAFKA_INGEST_ENABLED" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Collector: CollectorConfig{
			HTTPAddr:         ":4318",
			GRPCAddr:         ":4317",
			RateLimitRPS:     200,
			RateLimitBurst:   400,
			RateLimitEnabled: true,
		},
		Pipeline: PipelineConfig{
			BufferCapacity:  2048,
			MaxBatchSize:    512,
			FlushInterval:   5 * time.Second,
			CollectInterval: 10 * time.Second,
			MaxAttempts:     3,
			BackoffBase:     100 * time.Millisecond,
			BackoffCap:      5 * time.Second,
		},
		Export: ExportConfig{
			OTLPTransport: "grpc",
			StdoutEnabled: true,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "traces",
			GroupID: "tracekit-collector",
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}
