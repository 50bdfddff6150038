package metric

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry holds every instrument for a process. All methods are safe for
// concurrent use from request-handling goroutines.
type Registry struct {
	logger *zap.Logger

	mu          sync.RWMutex
	instruments map[string]instrument
}

type instrument interface {
	descriptor() Descriptor
	collect(now time.Time) []Point
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:      logger,
		instruments: make(map[string]instrument),
	}
}

// register returns the existing instrument when name+kind match, an error on
// a kind conflict, and otherwise stores the candidate built by mk.
func (r *Registry) register(name string, kind Kind, mk func() instrument) (instrument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.instruments[name]; ok {
		if existing.descriptor().Kind != kind {
			return nil, fmt.Errorf("instrument %q already registered as %s, not %s",
				name, existing.descriptor().Kind, kind)
		}
		return existing, nil
	}
	inst := mk()
	r.instruments[name] = inst
	return inst, nil
}

// Counter registers (or returns) a monotonic counter.
func (r *Registry) Counter(name string, opts Opts) (*Counter, error) {
	inst, err := r.register(name, KindCounter, func() instrument {
		return &Counter{
			sumInstrument: sumInstrument{
				desc:   Descriptor{Name: name, Kind: KindCounter, Unit: opts.Unit, Description: opts.Description},
				series: make(map[string]*sumSeries),
			},
		}
	})
	if err != nil {
		return nil, err
	}
	return inst.(*Counter), nil
}

// UpDownCounter registers (or returns) a bidirectional counter.
func (r *Registry) UpDownCounter(name string, opts Opts) (*UpDownCounter, error) {
	inst, err := r.register(name, KindUpDownCounter, func() instrument {
		return &UpDownCounter{
			sumInstrument: sumInstrument{
				desc:   Descriptor{Name: name, Kind: KindUpDownCounter, Unit: opts.Unit, Description: opts.Description},
				series: make(map[string]*sumSeries),
			},
		}
	})
	if err != nil {
		return nil, err
	}
	return inst.(*UpDownCounter), nil
}

// Histogram registers (or returns) a histogram with fixed bucket boundaries.
// Boundaries must be ascending with no duplicates.
func (r *Registry) Histogram(name string, boundaries []float64, opts Opts) (*Histogram, error) {
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i] <= boundaries[i-1] {
			return nil, fmt.Errorf("histogram %q: boundaries must be strictly ascending", name)
		}
	}
	inst, err := r.register(name, KindHistogram, func() instrument {
		return &Histogram{
			desc:   Descriptor{Name: name, Kind: KindHistogram, Unit: opts.Unit, Description: opts.Description},
			bounds: append([]float64(nil), boundaries...),
			series: make(map[string]*histogramSeries),
		}
	})
	if err != nil {
		return nil, err
	}
	return inst.(*Histogram), nil
}

// ObservableGauge registers a pull-based gauge. The callback runs once per
// collection tick on the pipeline's scheduler, never on the caller's
// goroutine. A callback error or panic skips the gauge for that tick and
// keeps it registered.
func (r *Registry) ObservableGauge(name string, callback func() (float64, error), opts Opts) (*ObservableGauge, error) {
	inst, err := r.register(name, KindObservableGauge, func() instrument {
		return &ObservableGauge{
			desc:     Descriptor{Name: name, Kind: KindObservableGauge, Unit: opts.Unit, Description: opts.Description},
			callback: callback,
			logger:   r.logger,
		}
	})
	if err != nil {
		return nil, err
	}
	return inst.(*ObservableGauge), nil
}

// Collect snapshots every instrument cumulatively and samples gauge
// callbacks. Called by the pipeline's collection ticker.
func (r *Registry) Collect(now time.Time) []Point {
	r.mu.RLock()
	instruments := make([]instrument, 0, len(r.instruments))
	for _, inst := range r.instruments {
		instruments = append(instruments, inst)
	}
	r.mu.RUnlock()

	var points []Point
	for _, inst := range instruments {
		points = append(points, inst.collect(now)...)
	}
	return points
}

// sumSeries is one cumulative accumulator. Its own mutex keeps updates on
// one key from blocking unrelated keys.
type sumSeries struct {
	mu    sync.Mutex
	attrs []Attr
	value float64
}

// sumInstrument is the shared core of Counter and UpDownCounter.
type sumInstrument struct {
	desc   Descriptor
	mu     sync.RWMutex
	series map[string]*sumSeries
}

func (s *sumInstrument) seriesFor(attrs []Attr) *sumSeries {
	key, sorted := attrKey(attrs)

	s.mu.RLock()
	ser, ok := s.series[key]
	s.mu.RUnlock()
	if ok {
		return ser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ser, ok = s.series[key]; ok {
		return ser
	}
	ser = &sumSeries{attrs: sorted}
	s.series[key] = ser
	return ser
}

func (s *sumInstrument) add(delta float64, attrs []Attr) {
	ser := s.seriesFor(attrs)
	ser.mu.Lock()
	ser.value += delta
	ser.mu.Unlock()
}

func (s *sumInstrument) collectPoints(now time.Time) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := make([]Point, 0, len(s.series))
	for _, ser := range s.series {
		ser.mu.Lock()
		points = append(points, Point{
			Name:  s.desc.Name,
			Kind:  s.desc.Kind,
			Unit:  s.desc.Unit,
			Time:  now,
			Attrs: ser.attrs,
			Value: ser.value,
		})
		ser.mu.Unlock()
	}
	return points
}

// Counter is a monotonic cumulative sum per attribute set.
type Counter struct {
	sumInstrument
}

// Add accumulates delta. A negative delta fails with ErrInvalidArgument and
// leaves the accumulator unchanged.
func (c *Counter) Add(delta float64, attrs ...Attr) error {
	if delta < 0 || math.IsNaN(delta) {
		return fmt.Errorf("%w: counter %q delta %v", ErrInvalidArgument, c.desc.Name, delta)
	}
	c.add(delta, attrs)
	return nil
}

func (c *Counter) descriptor() Descriptor        { return c.desc }
func (c *Counter) collect(now time.Time) []Point { return c.collectPoints(now) }

// UpDownCounter is a cumulative sum whose deltas may be negative.
type UpDownCounter struct {
	sumInstrument
}

// Add accumulates delta; any real delta is allowed.
func (u *UpDownCounter) Add(delta float64, attrs ...Attr) error {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return fmt.Errorf("%w: updowncounter %q delta %v", ErrInvalidArgument, u.desc.Name, delta)
	}
	u.add(delta, attrs)
	return nil
}

func (u *UpDownCounter) descriptor() Descriptor        { return u.desc }
func (u *UpDownCounter) collect(now time.Time) []Point { return u.collectPoints(now) }

type histogramSeries struct {
	mu      sync.Mutex
	attrs   []Attr
	sum     float64
	count   uint64
	buckets []uint64 // len(bounds)+1, last bucket is the overflow
}

// Histogram maintains sum, count, and per-bucket counts over boundaries
// fixed at registration.
type Histogram struct {
	desc   Descriptor
	bounds []float64
	mu     sync.RWMutex
	series map[string]*histogramSeries
}

// Record observes value. NaN and Inf fail with ErrInvalidArgument.
func (h *Histogram) Record(value float64, attrs ...Attr) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: histogram %q value %v", ErrInvalidArgument, h.desc.Name, value)
	}

	key, sorted := attrKey(attrs)
	h.mu.RLock()
	ser, ok := h.series[key]
	h.mu.RUnlock()
	if !ok {
		h.mu.Lock()
		if ser, ok = h.series[key]; !ok {
			ser = &histogramSeries{attrs: sorted, buckets: make([]uint64, len(h.bounds)+1)}
			h.series[key] = ser
		}
		h.mu.Unlock()
	}

	bucket := len(h.bounds)
	for i, bound := range h.bounds {
		if value <= bound {
			bucket = i
			break
		}
	}

	ser.mu.Lock()
	ser.sum += value
	ser.count++
	ser.buckets[bucket]++
	ser.mu.Unlock()
	return nil
}

func (h *Histogram) descriptor() Descriptor { return h.desc }

func (h *Histogram) collect(now time.Time) []Point {
	h.mu.RLock()
	defer h.mu.RUnlock()

	points := make([]Point, 0, len(h.series))
	for _, ser := range h.series {
		ser.mu.Lock()
		points = append(points, Point{
			Name:         h.desc.Name,
			Kind:         KindHistogram,
			Unit:         h.desc.Unit,
			Time:         now,
			Attrs:        ser.attrs,
			Sum:          ser.sum,
			Count:        ser.count,
			BucketCounts: append([]uint64(nil), ser.buckets...),
			Bounds:       h.bounds,
		})
		ser.mu.Unlock()
	}
	return points
}

// ObservableGauge samples a callback on each collection tick.
type ObservableGauge struct {
	desc     Descriptor
	callback func() (float64, error)
	logger   *zap.Logger
}

func (g *ObservableGauge) descriptor() Descriptor { return g.desc }

func (g *ObservableGauge) collect(now time.Time) (points []Point) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Warn("gauge callback panicked, skipping tick",
				zap.String("instrument", g.desc.Name),
				zap.Any("panic", rec),
			)
			points = nil
		}
	}()

	value, err := g.callback()
	if err != nil {
		g.logger.Warn("gauge callback failed, skipping tick",
			zap.String("instrument", g.desc.Name),
			zap.Error(err),
		)
		return nil
	}
	return []Point{{
		Name:  g.desc.Name,
		Kind:  KindObservableGauge,
		Unit:  g.desc.Unit,
		Time:  now,
		Value: value,
	}}
}
