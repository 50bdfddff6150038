package collector

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/quillon/tracekit/internal/collector/middleware"
	"github.com/quillon/tracekit/internal/collector/receiver"
	"github.com/quillon/tracekit/internal/infrastructure/config"
	"github.com/quillon/tracekit/internal/infrastructure/monitoring"
	"github.com/quillon/tracekit/internal/pipeline"
	"github.com/quillon/tracekit/internal/pipeline/export"
	"github.com/quillon/tracekit/internal/telemetry/metric"
)

// Server wires the receivers, the pipeline, and the exporters into one
// runnable collector.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	metrics    *monitoring.Metrics
	pipeline   *pipeline.Pipeline
	httpServer *http.Server
	grpcServer *grpc.Server
	kafka      *receiver.Kafka

	kafkaCancel context.CancelFunc
	kafkaDone   chan struct{}
}

// New assembles a collector from configuration. Exporters are chosen from
// cfg.Export and cfg.Kafka; at least the stdout exporter should be enabled
// or received telemetry goes nowhere.
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	exporters, err := buildExporters(cfg, logger)
	if err != nil {
		return nil, err
	}
	if len(exporters) == 0 {
		logger.Warn("no exporters configured, received telemetry will be dropped")
	}
	if cfg.Kafka.ExportEnabled && cfg.Kafka.IngestEnabled {
		logger.Warn("kafka export and ingest enabled on the same topic, collector would re-consume its own output")
	}

	promRegistry := prometheus.NewRegistry()
	selfMetrics := monitoring.New(promRegistry)

	// The collector's own instruments live in a Registry, collected by the
	// pipeline and scraped through the /metrics bridge alongside the
	// self-metrics.
	instruments := metric.NewRegistry(logger.Named("instruments"))

	p := pipeline.New(pipeline.Config{
		BufferCapacity:  cfg.Pipeline.BufferCapacity,
		MaxBatchSize:    cfg.Pipeline.MaxBatchSize,
		FlushInterval:   cfg.Pipeline.FlushInterval,
		CollectInterval: cfg.Pipeline.CollectInterval,
		MaxAttempts:     cfg.Pipeline.MaxAttempts,
		BackoffBase:     cfg.Pipeline.BackoffBase,
		BackoffCap:      cfg.Pipeline.BackoffCap,
	}, logger.Named("pipeline"), exporters,
		pipeline.WithSelfMetrics(selfMetrics),
		pipeline.WithRegistry(instruments),
	)

	if _, err := instruments.ObservableGauge("collector.records.dropped", func() (float64, error) {
		return float64(p.Dropped()), nil
	}, metric.Opts{Description: "Records evicted from the pipeline buffer under backpressure"}); err != nil {
		return nil, err
	}
	if err := promRegistry.Register(metric.NewPrometheusBridge(instruments)); err != nil {
		return nil, err
	}

	httpReceiver := receiver.NewHTTP(p, logger.Named("http"), selfMetrics, promRegistry)
	rateCfg := middleware.RateLimitConfig{}
	if cfg.Collector.RateLimitEnabled {
		rateCfg = middleware.DefaultRateLimitConfig()
		if cfg.Collector.RateLimitRPS > 0 {
			rateCfg = middleware.RateLimitConfig{
				RequestsPerSecond: cfg.Collector.RateLimitRPS,
				Burst:             cfg.Collector.RateLimitBurst,
			}
		}
	}

	grpcServer := grpc.NewServer()
	receiver.NewGRPC(p, logger.Named("grpc"), selfMetrics).Register(grpcServer)

	srv := &Server{
		cfg:      cfg,
		logger:   logger,
		metrics:  selfMetrics,
		pipeline: p,
		httpServer: &http.Server{
			Addr:              cfg.Collector.HTTPAddr,
			Handler:           httpReceiver.Router(rateCfg),
			ReadHeaderTimeout: 10 * time.Second,
		},
		grpcServer: grpcServer,
	}

	if cfg.Kafka.IngestEnabled {
		srv.kafka = receiver.NewKafka(receiver.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, p, logger.Named("kafka"), selfMetrics)
	}

	return srv, nil
}

func buildExporters(cfg *config.Config, logger *zap.Logger) ([]pipeline.Exporter, error) {
	const service = "tracekit-collector"
	var exporters []pipeline.Exporter

	if cfg.Export.StdoutEnabled {
		exporters = append(exporters, export.NewStdout(logger.Named("stdout")))
	}
	if cfg.Export.OTLPEndpoint != "" {
		switch cfg.Export.OTLPTransport {
		case "http":
			exporters = append(exporters, export.NewOTLPHTTP(cfg.Export.OTLPEndpoint, service))
		case "grpc":
			exp, err := export.NewOTLPGRPC(cfg.Export.OTLPEndpoint, service)
			if err != nil {
				return nil, err
			}
			exporters = append(exporters, exp)
		default:
			return nil, fmt.Errorf("unknown otlp transport %q", cfg.Export.OTLPTransport)
		}
	}
	if cfg.Kafka.ExportEnabled {
		exporters = append(exporters, export.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, service))
	}
	return exporters, nil
}

// Run starts the pipeline and all listeners; it blocks until one of the
// servers fails.
func (s *Server) Run() error {
	s.pipeline.Start()

	errCh := make(chan error, 2)

	grpcListener, err := net.Listen("tcp", s.cfg.Collector.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", s.cfg.Collector.GRPCAddr, err)
	}
	go func() {
		s.logger.Info("grpc receiver listening", zap.String("addr", s.cfg.Collector.GRPCAddr))
		if err := s.grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	go func() {
		s.logger.Info("http receiver listening", zap.String("addr", s.cfg.Collector.HTTPAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if s.kafka != nil {
		var ctx context.Context
		ctx, s.kafkaCancel = context.WithCancel(context.Background())
		s.kafkaDone = make(chan struct{})
		go func() {
			defer close(s.kafkaDone)
			if err := s.kafka.Run(ctx); err != nil {
				s.logger.Error("kafka consumer failed", zap.Error(err))
			}
		}()
	}

	return <-errCh
}

// Shutdown stops the ingest surfaces first, then drains the pipeline so
// already-received telemetry still reaches the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("collector shutting down")

	if s.kafkaCancel != nil {
		s.kafkaCancel()
		select {
		case <-s.kafkaDone:
		case <-ctx.Done():
		}
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	s.grpcServer.GracefulStop()
	s.metrics.Close()

	return s.pipeline.Shutdown(ctx)
}
