package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's own throughput and drop counters. Telemetry
// loss is silent for callers; these are the only place it becomes visible.
type Metrics struct {
	// Intake
	RecordsEnqueued *prometheus.CounterVec
	RecordsDropped  *prometheus.CounterVec
	BufferSize      prometheus.Gauge

	// Export
	BatchesExported *prometheus.CounterVec
	BatchesDropped  *prometheus.CounterVec
	ExportRetries   *prometheus.CounterVec
	ExportDuration  *prometheus.HistogramVec

	// Receive surface
	ReceiverRequests *prometheus.CounterVec

	Uptime    prometheus.Gauge
	startTime time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates the self-metrics set on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),
		stop:      make(chan struct{}),

		RecordsEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_pipeline_records_enqueued_total",
				Help: "Total records accepted by the pipeline buffer",
			},
			[]string{"type"},
		),
		RecordsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_pipeline_records_dropped_total",
				Help: "Total records dropped by the pipeline",
			},
			[]string{"reason"},
		),
		BufferSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracekit_pipeline_buffer_size",
				Help: "Records currently buffered awaiting flush",
			},
		),
		BatchesExported: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_pipeline_batches_exported_total",
				Help: "Batches delivered per exporter",
			},
			[]string{"exporter"},
		),
		BatchesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_pipeline_batches_dropped_total",
				Help: "Batches abandoned per exporter after retry exhaustion or fatal errors",
			},
			[]string{"exporter", "reason"},
		),
		ExportRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_pipeline_export_retries_total",
				Help: "Export attempts retried per exporter",
			},
			[]string{"exporter"},
		),
		ExportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracekit_pipeline_export_duration_seconds",
				Help:    "Export call duration per exporter",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"exporter"},
		),
		ReceiverRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_receiver_requests_total",
				Help: "Inbound receive requests by transport and outcome",
			},
			[]string{"transport", "status"},
		),
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracekit_uptime_seconds",
				Help: "Collector uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		}
	}
}

// Close stops the uptime ticker goroutine. Safe to call more than once.
func (m *Metrics) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// RecordEnqueue records an accepted record of the given type ("span" or
// "metric").
func (m *Metrics) RecordEnqueue(recordType string) {
	m.RecordsEnqueued.WithLabelValues(recordType).Inc()
}

// RecordDrop records a dropped record.
func (m *Metrics) RecordDrop(reason string) {
	m.RecordsDropped.WithLabelValues(reason).Inc()
}

// RecordExport records a successful batch delivery.
func (m *Metrics) RecordExport(exporter string, duration time.Duration) {
	m.BatchesExported.WithLabelValues(exporter).Inc()
	m.ExportDuration.WithLabelValues(exporter).Observe(duration.Seconds())
}

// RecordBatchDrop records an abandoned batch.
func (m *Metrics) RecordBatchDrop(exporter, reason string) {
	m.BatchesDropped.WithLabelValues(exporter, reason).Inc()
}

// RecordRetry records a retried export attempt.
func (m *Metrics) RecordRetry(exporter string) {
	m.ExportRetries.WithLabelValues(exporter).Inc()
}

// RecordReceive records an inbound receive request.
func (m *Metrics) RecordReceive(transport, status string) {
	m.ReceiverRequests.WithLabelValues(transport, status).Inc()
}

// SetBufferSize updates the buffered-records gauge.
func (m *Metrics) SetBufferSize(n int) {
	m.BufferSize.Set(float64(n))
}
