package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/quillon/tracekit/internal/demo"
	"github.com/quillon/tracekit/internal/infrastructure/logging"
	"github.com/quillon/tracekit/internal/pipeline"
	"github.com/quillon/tracekit/internal/pipeline/export"
	"github.com/quillon/tracekit/internal/telemetry/metric"
	"github.com/quillon/tracekit/internal/telemetry/trace"
)

const service = "tracekit-demo"

func main() {
	logger := logging.NewDevelopment()
	defer logger.Sync()

	addr := envOr("DEMO_ADDR", ":8080")

	exporters := []pipeline.Exporter{export.NewStdout(logger.Named("export"))}
	if collectorURL := os.Getenv("DEMO_COLLECTOR_URL"); collectorURL != "" {
		exporters = append(exporters, export.NewOTLPHTTP(collectorURL, service))
	}

	registry := metric.NewRegistry(logger.Named("metric"))
	p := pipeline.New(pipeline.Config{
		FlushInterval:   2 * time.Second,
		CollectInterval: 5 * time.Second,
	}, logger.Named("pipeline"), exporters, pipeline.WithRegistry(registry))
	p.Start()

	tracer := trace.New(service, logger.Named("trace"), p)

	svc, err := demo.New(tracer, registry, logger.Logger, "http://localhost"+addr)
	if err != nil {
		logger.Fatal("failed to build demo service", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("demo service listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := p.Shutdown(ctx); err != nil {
		logger.Warn("pipeline drain incomplete", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
