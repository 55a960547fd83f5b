package prometheus

import (
	"math"
	"net/http"

	"github.com/geochat/tokenauth"
	"github.com/geochat/tokenauth/metrics/export/internaldefs"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSource is the part of an engine a Collector reads.
type MetricsSource interface {
	MetricsSnapshot() tokenauth.MetricsSnapshot
	NotifyDropped() uint64
}

type counterDesc struct {
	id   tokenauth.MetricID
	desc *prom.Desc
}

// Collector is a prometheus.Collector over an engine's counters.
type Collector struct {
	source     MetricsSource
	counters   []counterDesc
	histograms []counterDesc
	dropped    *prom.Desc
}

var _ prom.Collector = (*Collector)(nil)

// NewCollector returns a Collector reading from source.
func NewCollector(source MetricsSource) *Collector {
	c := &Collector{
		source:     source,
		counters:   make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms: make([]counterDesc, 0, len(internaldefs.HistogramDefs)),
		dropped:    prom.NewDesc(internaldefs.NotifyDroppedName, internaldefs.NotifyDroppedHelp, nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.histograms {
		ch <- d.desc
	}
	ch <- c.dropped
}

// Collect implements prometheus.Collector. A disabled engine reports only the drop counter.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	if c == nil || c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()
	for _, d := range c.counters {
		value, found := snapshot.Counters[d.id]
		if !found {
			continue
		}
		ch <- prom.MustNewConstMetric(d.desc, prom.CounterValue, float64(value))
	}

	for _, d := range c.histograms {
		raw, found := snapshot.Histograms[d.id]
		if !found {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(cumulative)-1)
		for i, bound := range internaldefs.HistogramBounds {
			if math.IsInf(bound, 1) {
				continue
			}
			buckets[bound] = cumulative[i]
		}
		// Observations are bucketed only, so the sum is unknown.
		ch <- prom.MustNewConstHistogram(d.desc, cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prom.MustNewConstMetric(c.dropped, prom.CounterValue, float64(c.source.NotifyDropped()))
}

// Handler registers a Collector for source in a private registry and serves it.
func Handler(source MetricsSource) (http.Handler, error) {
	registry := prom.NewRegistry()
	if err := registry.Register(NewCollector(source)); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
