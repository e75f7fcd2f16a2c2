package prometheus

import (
	"net/http"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSource is implemented by *authflow.Engine.
type MetricsSource interface {
	MetricsSnapshot() authflow.MetricsSnapshot
}

type counterDesc struct {
	id   authflow.MetricID
	desc *prometheus.Desc
}

// Collector is a prometheus.Collector over an engine snapshot.
type Collector struct {
	source   MetricsSource
	counters []counterDesc
	latency  *prometheus.Desc
	bounds   []float64
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector reading from source on every scrape.
func NewCollector(source MetricsSource) *Collector {
	c := &Collector{
		source: source,
		latency: prometheus.NewDesc(
			internaldefs.ValidateLatency.Name,
			internaldefs.ValidateLatency.Help,
			nil, nil,
		),
		bounds: internaldefs.BoundsSeconds(),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.FullName(), def.Help, nil, nil),
		})
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.latency
}

// Collect emits nothing when the engine has metrics disabled.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()

	for _, cd := range c.counters {
		v, ok := snapshot.Counters[cd.id]
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(v))
	}

	raw, ok := snapshot.Histograms[authflow.MetricValidateLatency]
	if !ok {
		return
	}
	count, buckets := cumulative(raw, c.bounds)
	// Snapshots carry bucket counts only, so the sum is reported as zero.
	ch <- prometheus.MustNewConstHistogram(c.latency, count, 0, buckets)
}

func cumulative(raw []uint64, bounds []float64) (uint64, map[float64]uint64) {
	counts := internaldefs.Cumulative(raw)
	buckets := make(map[float64]uint64, len(bounds))
	for i, le := range bounds {
		buckets[le] = counts[i]
	}
	return counts[len(counts)-1], buckets
}

// Handler serves the collector from a private registry.
func Handler(source MetricsSource) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(source))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
