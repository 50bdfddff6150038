/*
Package monitoring provides the collector's self-metrics.

# Overview

This package implements Prometheus-based self-observation for the pipeline
and its receive surface: intake throughput, buffer pressure, drops, export
outcomes, and retry counts. Losing telemetry under backpressure is an
accepted policy; these counters are where that loss stops being silent.

# Usage

	// Create the self-metrics set on a dedicated registry
	reg := prometheus.NewRegistry()
	metrics := monitoring.New(reg)

	// Instrument the collector's own HTTP surface
	router.Use(monitoring.Middleware(metrics))

	// Record pipeline events
	metrics.RecordEnqueue("span")
	metrics.RecordBatchDrop("otlp-grpc", "retry_exhausted")

# Exposition

Expose alongside the instrument-registry scrape on the same endpoint:

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
