package metric

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusBridge exposes a Registry snapshot through the Prometheus pull
// exposition format. Register it on a prometheus.Registry behind the scrape
// endpoint; every scrape triggers a fresh Collect.
type PrometheusBridge struct {
	registry *Registry
}

var _ prometheus.Collector = (*PrometheusBridge)(nil)

// NewPrometheusBridge wraps registry for scraping.
func NewPrometheusBridge(registry *Registry) *PrometheusBridge {
	return &PrometheusBridge{registry: registry}
}

// Describe sends no descriptors, making this an unchecked collector: the
// instrument set is dynamic.
func (b *PrometheusBridge) Describe(chan<- *prometheus.Desc) {}

// Collect converts the current registry snapshot into Prometheus metrics.
func (b *PrometheusBridge) Collect(ch chan<- prometheus.Metric) {
	for _, p := range b.registry.Collect(time.Now()) {
		labelNames := make([]string, len(p.Attrs))
		labelValues := make([]string, len(p.Attrs))
		for i, a := range p.Attrs {
			labelNames[i] = sanitizeName(a.Key)
			labelValues[i] = a.Value
		}
		desc := prometheus.NewDesc(sanitizeName(p.Name), p.Unit, labelNames, nil)

		var (
			m   prometheus.Metric
			err error
		)
		switch p.Kind {
		case KindCounter:
			m, err = prometheus.NewConstMetric(desc, prometheus.CounterValue, p.Value, labelValues...)
		case KindHistogram:
			buckets := make(map[float64]uint64, len(p.Bounds))
			cumulative := uint64(0)
			for i, bound := range p.Bounds {
				cumulative += p.BucketCounts[i]
				buckets[bound] = cumulative
			}
			m, err = prometheus.NewConstHistogram(desc, p.Count, p.Sum, buckets, labelValues...)
		default:
			// UpDownCounter and ObservableGauge both map to a gauge.
			m, err = prometheus.NewConstMetric(desc, prometheus.GaugeValue, p.Value, labelValues...)
		}
		if err != nil {
			continue
		}
		ch <- m
	}
}

// sanitizeName maps instrument names like "http.server.duration" onto the
// Prometheus charset.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
