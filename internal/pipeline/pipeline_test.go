package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillon/tracekit/internal/telemetry/metric"
	"github.com/quillon/tracekit/internal/telemetry/trace"
)

// fakeExporter records batches and fails according to its script.
type fakeExporter struct {
	name string

	mu      sync.Mutex
	batches []Batch
	// script holds errors for the first len(script) calls; later calls
	// succeed.
	script []error
	calls  int
	block  chan struct{} // when set, Export waits on it
}

func (f *fakeExporter) Name() string { return f.name }

func (f *fakeExporter) Export(_ context.Context, batch Batch) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls
	f.calls++
	if call < len(f.script) {
		if err := f.script[call]; err != nil {
			return err
		}
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeExporter) delivered() []Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Batch(nil), f.batches...)
}

func (f *fakeExporter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func spanRecord(name string) trace.SpanData {
	return trace.SpanData{Name: name}
}

func testConfig() Config {
	return Config{
		BufferCapacity: 16,
		MaxBatchSize:   2,
		FlushInterval:  time.Hour, // size-triggered flushes only
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
		BackoffCap:     4 * time.Millisecond,
	}
}

func TestFlushOnBatchSize(t *testing.T) {
	exp := &fakeExporter{name: "a"}
	p := New(testConfig(), nil, []Exporter{exp})
	p.Start()
	defer p.Shutdown(context.Background())

	p.EnqueueSpan(spanRecord("s1"))
	p.EnqueueSpan(spanRecord("s2"))
	p.EnqueueSpan(spanRecord("s3"))

	require.Eventually(t, func() bool {
		return len(exp.delivered()) >= 1
	}, time.Second, 5*time.Millisecond)

	first := exp.delivered()[0]
	assert.Equal(t, 2, first.Len(), "flush cuts exactly the batch size")
	assert.Contains(t, first.ID, "batch_")

	// The third record stays buffered until the next trigger.
	require.NoError(t, p.Shutdown(context.Background()))
	all := exp.delivered()
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[1].Len())
	assert.Equal(t, "s3", all[1].Records[0].Span.Name)
}

func TestFlushOnInterval(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBatchSize = 100
	cfg.FlushInterval = 20 * time.Millisecond

	exp := &fakeExporter{name: "a"}
	p := New(cfg, nil, []Exporter{exp})
	p.Start()
	defer p.Shutdown(context.Background())

	p.EnqueueSpan(spanRecord("s1"))

	require.Eventually(t, func() bool {
		return len(exp.delivered()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, exp.delivered()[0].Len())
}

func TestSizeTriggerDrainsBacklog(t *testing.T) {
	exp := &fakeExporter{name: "a"}
	p := New(testConfig(), nil, []Exporter{exp})
	p.Start()
	defer p.Shutdown(context.Background())

	for i := 0; i < 5; i++ {
		p.EnqueueSpan(spanRecord("s"))
	}

	// Every full batch drains on the size trigger alone, with no further
	// enqueues and no interval tick.
	require.Eventually(t, func() bool {
		total := 0
		for _, b := range exp.delivered() {
			total += b.Len()
		}
		return total >= 4
	}, time.Second, 5*time.Millisecond)
}

func TestDropOldestWhenFull(t *testing.T) {
	cfg := testConfig()
	cfg.BufferCapacity = 3
	cfg.MaxBatchSize = 100 // no size-triggered flush

	exp := &fakeExporter{name: "a"}
	p := New(cfg, nil, []Exporter{exp})
	p.Start()

	for _, name := range []string{"s1", "s2", "s3", "s4", "s5"} {
		p.EnqueueSpan(spanRecord(name))
	}
	assert.Equal(t, uint64(2), p.Dropped())

	require.NoError(t, p.Shutdown(context.Background()))

	all := exp.delivered()
	require.Len(t, all, 1)
	var names []string
	for _, rec := range all[0].Records {
		names = append(names, rec.Span.Name)
	}
	assert.Equal(t, []string{"s3", "s4", "s5"}, names, "oldest records are evicted first")
}

func TestRetryThenSuccessDeliversOnce(t *testing.T) {
	exp := &fakeExporter{
		name:   "flaky",
		script: []error{Retryable(errors.New("down")), Retryable(errors.New("down"))},
	}
	p := New(testConfig(), nil, []Exporter{exp})
	p.Start()
	defer p.Shutdown(context.Background())

	p.EnqueueSpan(spanRecord("s1"))
	p.EnqueueSpan(spanRecord("s2"))

	require.Eventually(t, func() bool {
		return len(exp.delivered()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, exp.callCount(), "two failures then one success")
	assert.Equal(t, 2, exp.delivered()[0].Len())
}

func TestRetryExhaustionDropsBatch(t *testing.T) {
	down := Retryable(errors.New("down"))
	exp := &fakeExporter{name: "dead", script: []error{down, down, down, down}}
	p := New(testConfig(), nil, []Exporter{exp})
	p.Start()
	defer p.Shutdown(context.Background())

	p.EnqueueSpan(spanRecord("s1"))
	p.EnqueueSpan(spanRecord("s2"))

	require.Eventually(t, func() bool {
		return exp.callCount() == 3
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, exp.callCount(), "attempts stop at the budget")
	assert.Empty(t, exp.delivered())
}

func TestFatalErrorDropsWithoutRetry(t *testing.T) {
	exp := &fakeExporter{name: "strict", script: []error{Fatal(errors.New("rejected"))}}
	p := New(testConfig(), nil, []Exporter{exp})
	p.Start()
	defer p.Shutdown(context.Background())

	p.EnqueueSpan(spanRecord("s1"))
	p.EnqueueSpan(spanRecord("s2"))

	require.Eventually(t, func() bool {
		return exp.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, exp.callCount())
	assert.Empty(t, exp.delivered())
}

func TestExportersAreIndependent(t *testing.T) {
	healthy := &fakeExporter{name: "healthy"}
	blocked := &fakeExporter{name: "blocked", block: make(chan struct{})}

	p := New(testConfig(), nil, []Exporter{healthy, blocked})
	p.Start()

	p.EnqueueSpan(spanRecord("s1"))
	p.EnqueueSpan(spanRecord("s2"))

	require.Eventually(t, func() bool {
		return len(healthy.delivered()) == 1
	}, time.Second, 5*time.Millisecond, "a blocked exporter must not stall the others")

	close(blocked.block)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Len(t, blocked.delivered(), 1)
}

func TestShutdownFlushesBuffer(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBatchSize = 100

	exp := &fakeExporter{name: "a"}
	p := New(cfg, nil, []Exporter{exp})
	p.Start()

	p.EnqueueSpan(spanRecord("s1"))
	p.EnqueuePoint(metric.Point{Name: "m1", Kind: metric.KindCounter, Value: 1})

	require.NoError(t, p.Shutdown(context.Background()))

	all := exp.delivered()
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].Len())
	assert.Len(t, all[0].Spans(), 1)
	assert.Len(t, all[0].Metrics(), 1)
}

func TestEnqueueAfterShutdownIsIgnored(t *testing.T) {
	exp := &fakeExporter{name: "a"}
	p := New(testConfig(), nil, []Exporter{exp})
	p.Start()
	require.NoError(t, p.Shutdown(context.Background()))

	p.EnqueueSpan(spanRecord("late"))
	assert.Empty(t, exp.delivered())
}

func TestCollectLoopFeedsRegistry(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBatchSize = 100
	cfg.FlushInterval = 20 * time.Millisecond
	cfg.CollectInterval = 10 * time.Millisecond

	registry := metric.NewRegistry(nil)
	counter, err := registry.Counter("ticks", metric.Opts{})
	require.NoError(t, err)
	require.NoError(t, counter.Add(5))

	exp := &fakeExporter{name: "a"}
	p := New(cfg, nil, []Exporter{exp}, WithRegistry(registry))
	p.Start()
	defer p.Shutdown(context.Background())

	require.Eventually(t, func() bool {
		for _, b := range exp.delivered() {
			for _, point := range b.Metrics() {
				if point.Name == "ticks" && point.Value == 5 {
					return true
				}
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestRetryClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"plain error defaults to retryable", errors.New("x"), true},
		{"wrapped retryable", Retryable(errors.New("x")), true},
		{"fatal", Fatal(errors.New("x")), false},
		{"fatal under wrapping", Retryable(Fatal(errors.New("x"))), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}
