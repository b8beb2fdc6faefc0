package eventlink

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is anything that can describe its channel bookkeeping.
type StatsSource interface {
	Snapshot() Snapshot
}

// Collector exports channel snapshots as Prometheus metrics, labelled by
// channel name. Every scrape takes one snapshot per source.
type Collector struct {
	sources []StatsSource

	capacity *prometheus.Desc
	ready    *prometheus.Desc
	reserved *prometheus.Desc
	reported *prometheus.Desc
	released *prometheus.Desc
}

// NewCollector returns a collector over sources. Register it with a
// prometheus.Registerer to expose it.
func NewCollector(namespace string, sources ...StatsSource) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", name),
			help, []string{"channel"}, nil)
	}
	return &Collector{
		sources:  sources,
		capacity: desc("capacity_slots", "Number of slots in the channel ring."),
		ready:    desc("ready_slots", "Committed events waiting for dispatch."),
		reserved: desc("reserved_slots", "Slots being filled, ready or held by consumers."),
		reported: desc("reported_total", "Events committed by producers."),
		released: desc("released_total", "Slots returned to the free region."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.ready
	ch <- c.reserved
	ch <- c.reported
	ch <- c.released
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, src := range c.sources {
		s := src.Snapshot()
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity), s.Name)
		ch <- prometheus.MustNewConstMetric(c.ready, prometheus.GaugeValue, float64(s.Ready), s.Name)
		ch <- prometheus.MustNewConstMetric(c.reserved, prometheus.GaugeValue, float64(s.Reserved), s.Name)
		ch <- prometheus.MustNewConstMetric(c.reported, prometheus.CounterValue, float64(s.Reported), s.Name)
		ch <- prometheus.MustNewConstMetric(c.released, prometheus.CounterValue, float64(s.Released), s.Name)
	}
}
