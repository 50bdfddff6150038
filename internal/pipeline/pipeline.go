package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quillon/tracekit/internal/infrastructure/monitoring"
	"github.com/quillon/tracekit/internal/infrastructure/resilience"
	"github.com/quillon/tracekit/internal/telemetry/metric"
	"github.com/quillon/tracekit/internal/telemetry/trace"
)

// Exporter delivers batches to one backend. Export may block on network I/O;
// the pipeline isolates that behind a dedicated worker per exporter. Errors
// are classified with Retryable/Fatal; an unwrapped error counts as
// retryable.
type Exporter interface {
	Name() string
	Export(ctx context.Context, batch Batch) error
}

// Config tunes buffering, flushing, and retry. Zero values get defaults.
type Config struct {
	BufferCapacity  int
	MaxBatchSize    int
	FlushInterval   time.Duration
	CollectInterval time.Duration
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = 2048
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 512
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 100 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 5 * time.Second
	}
	return c
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithRegistry attaches an instrument registry: the pipeline snapshots it on
// CollectInterval and feeds the points through the buffer.
func WithRegistry(registry *metric.Registry) Option {
	return func(p *Pipeline) { p.registry = registry }
}

// WithSelfMetrics attaches the pipeline's own throughput/drop counters.
func WithSelfMetrics(metrics *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = metrics }
}

// Pipeline is the batching/export subsystem. Construct with New, launch with
// Start, drain with Shutdown.
type Pipeline struct {
	cfg      Config
	logger   *zap.Logger
	registry *metric.Registry
	metrics  *monitoring.Metrics
	workers  []*exportWorker

	mu      sync.Mutex
	buf     []Record
	dropped uint64
	closed  bool

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a pipeline fanning out to the given exporters.
func New(cfg Config, logger *zap.Logger, exporters []Exporter, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	p := &Pipeline{
		cfg:    cfg,
		logger: logger,
		buf:    make([]Record, 0, cfg.BufferCapacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, exp := range exporters {
		p.workers = append(p.workers, newExportWorker(p, exp))
	}
	return p
}

// Start launches the flush timer, the collection ticker, and one worker per
// exporter.
func (p *Pipeline) Start() {
	for _, w := range p.workers {
		p.wg.Add(1)
		go w.run()
	}

	p.wg.Add(1)
	go p.flushLoop()

	if p.registry != nil && p.cfg.CollectInterval > 0 {
		p.wg.Add(1)
		go p.collectLoop()
	}
}

// EnqueueSpan adds a finished span record. Never blocks; implements
// trace.SpanSink.
func (p *Pipeline) EnqueueSpan(data trace.SpanData) {
	p.enqueue(Record{Span: &data})
}

// EnqueuePoint adds a metric point. Never blocks.
func (p *Pipeline) EnqueuePoint(point metric.Point) {
	p.enqueue(Record{Metric: &point})
}

// enqueue appends to the bounded buffer, evicting the oldest record when
// full (drop-oldest backpressure).
func (p *Pipeline) enqueue(rec Record) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if len(p.buf) >= p.cfg.BufferCapacity {
		copy(p.buf, p.buf[1:])
		p.buf = p.buf[:len(p.buf)-1]
		p.dropped++
		if p.metrics != nil {
			p.metrics.RecordDrop("buffer_full")
		}
	}
	p.buf = append(p.buf, rec)
	size := len(p.buf)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordEnqueue(rec.Type())
		p.metrics.SetBufferSize(size)
	}

	if size >= p.cfg.MaxBatchSize {
		select {
		case p.notify <- struct{}{}:
		default:
		}
	}
}

func (p *Pipeline) flushLoop() {
	defer p.wg.Done()

	timer := time.NewTimer(p.cfg.FlushInterval)
	defer timer.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-p.notify:
			p.flush()
		case <-timer.C:
			p.flush()
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.cfg.FlushInterval)
	}
}

func (p *Pipeline) collectLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.CollectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case now := <-ticker.C:
			for _, point := range p.registry.Collect(now) {
				p.EnqueuePoint(point)
			}
		}
	}
}

// flush cuts up to MaxBatchSize records off the front of the buffer and
// hands the batch to every worker. Records past the batch size stay buffered
// for the next trigger.
func (p *Pipeline) flush() {
	p.mu.Lock()
	if len(p.buf) == 0 {
		p.mu.Unlock()
		return
	}
	n := len(p.buf)
	if n > p.cfg.MaxBatchSize {
		n = p.cfg.MaxBatchSize
	}
	records := make([]Record, n)
	copy(records, p.buf[:n])
	remaining := copy(p.buf, p.buf[n:])
	p.buf = p.buf[:remaining]
	size := len(p.buf)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.SetBufferSize(size)
	}

	// A backlog of a full batch or more re-arms the size trigger, so a burst
	// drains batch by batch instead of waiting out the interval.
	if size >= p.cfg.MaxBatchSize {
		select {
		case p.notify <- struct{}{}:
		default:
		}
	}

	batch := newBatch(records)
	p.logger.Debug("flushing batch",
		zap.String("batch_id", batch.ID),
		zap.Int("records", batch.Len()),
	)

	for _, w := range p.workers {
		w.offer(batch)
	}
}

// Shutdown stops intake, flushes the remaining buffer, and waits for the
// workers to drain or the context to expire.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.done)
	p.flush()

	// Stop intake only after the final flush so late EndSpan calls racing
	// shutdown still land in it.
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	for _, w := range p.workers {
		w.close()
	}

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns the count of records evicted under backpressure.
func (p *Pipeline) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// exportWorker owns delivery to one backend: a dedicated queue, retry with
// exponential backoff, and a circuit breaker for sustained outages.
type exportWorker struct {
	pipeline *Pipeline
	exporter Exporter
	breaker  *resilience.Breaker
	queue    chan Batch
	once     sync.Once
}

func newExportWorker(p *Pipeline, exp Exporter) *exportWorker {
	return &exportWorker{
		pipeline: p,
		exporter: exp,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		}),
		queue: make(chan Batch, 16),
	}
}

// offer hands a batch to the worker without blocking the flusher; a worker
// with a full backlog drops the batch for its backend only.
func (w *exportWorker) offer(batch Batch) {
	select {
	case w.queue <- batch:
	default:
		w.pipeline.logger.Warn("export backlog full, dropping batch",
			zap.String("exporter", w.exporter.Name()),
			zap.String("batch_id", batch.ID),
		)
		if w.pipeline.metrics != nil {
			w.pipeline.metrics.RecordBatchDrop(w.exporter.Name(), "backlog_full")
		}
	}
}

func (w *exportWorker) close() {
	w.once.Do(func() { close(w.queue) })
}

func (w *exportWorker) run() {
	defer w.pipeline.wg.Done()

	for batch := range w.queue {
		w.export(batch)
	}
}

// export delivers one batch: up to MaxAttempts tries with exponential
// backoff for retryable errors, immediate drop for fatal ones. A batch is
// delivered at most once per backend.
func (w *exportWorker) export(batch Batch) {
	name := w.exporter.Name()
	metrics := w.pipeline.metrics

	if !w.breaker.Allow() {
		if metrics != nil {
			metrics.RecordBatchDrop(name, "circuit_open")
		}
		return
	}

	backoff := w.pipeline.cfg.BackoffBase
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := w.exporter.Export(context.Background(), batch)
		if err == nil {
			w.breaker.Success()
			if metrics != nil {
				metrics.RecordExport(name, time.Since(start))
			}
			return
		}

		w.breaker.Failure()

		if !IsRetryable(err) {
			w.pipeline.logger.Warn("dropping batch after fatal export error",
				zap.String("exporter", name),
				zap.String("batch_id", batch.ID),
				zap.Error(err),
			)
			if metrics != nil {
				metrics.RecordBatchDrop(name, "fatal")
			}
			return
		}

		if attempt >= w.pipeline.cfg.MaxAttempts {
			w.pipeline.logger.Warn("dropping batch after retry exhaustion",
				zap.String("exporter", name),
				zap.String("batch_id", batch.ID),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			if metrics != nil {
				metrics.RecordBatchDrop(name, "retry_exhausted")
			}
			return
		}

		if metrics != nil {
			metrics.RecordRetry(name)
		}
		if !w.breaker.Allow() {
			if metrics != nil {
				metrics.RecordBatchDrop(name, "circuit_open")
			}
			return
		}

		select {
		case <-time.After(backoff):
		case <-w.pipeline.done:
			// Shutdown: one final immediate attempt before giving up is not
			// worth holding the drain; drop and count.
			if metrics != nil {
				metrics.RecordBatchDrop(name, "shutdown")
			}
			return
		}
		backoff *= 2
		if backoff > w.pipeline.cfg.BackoffCap {
			backoff = w.pipeline.cfg.BackoffCap
		}
	}
}
