package prom

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/fluxcache/cache"
)

// StatsCollector reads store gauges at scrape time.
type StatsCollector struct {
	stats func() cache.Stats

	entries  *prometheus.Desc
	used     *prometheus.Desc
	raw      *prometheus.Desc
	capacity *prometheus.Desc
	tier     *prometheus.Desc
	avail    *prometheus.Desc
	shardUse *prometheus.Desc
}

// NewStatsCollector returns a collector over stats, typically
// (*cache.Store).Stats. Register it with reg.MustRegister.
func NewStatsCollector(ns, sub string, constLabels prometheus.Labels, stats func() cache.Stats) *StatsCollector {
	name := func(n string) string { return prometheus.BuildFQName(ns, sub, n) }
	return &StatsCollector{
		stats:    stats,
		entries:  prometheus.NewDesc(name("entries"), "Resident entries", nil, constLabels),
		used:     prometheus.NewDesc(name("bytes_used"), "Stored (possibly compressed) bytes", nil, constLabels),
		raw:      prometheus.NewDesc(name("raw_bytes"), "Uncompressed bytes of resident values", nil, constLabels),
		capacity: prometheus.NewDesc(name("capacity_bytes"), "Configured capacity", nil, constLabels),
		tier:     prometheus.NewDesc(name("pressure_tier"), "Memory pressure tier (0 normal, 1 elevated, 2 critical)", nil, constLabels),
		avail:    prometheus.NewDesc(name("memory_available_bytes"), "Available memory at the latest sample", nil, constLabels),
		shardUse: prometheus.NewDesc(name("shard_bytes_used"), "Stored bytes per shard", []string{"shard"}, constLabels),
	}
}

func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.used
	ch <- c.raw
	ch <- c.capacity
	ch <- c.tier
	ch <- c.avail
	ch <- c.shardUse
}

func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Entries))
	ch <- prometheus.MustNewConstMetric(c.used, prometheus.GaugeValue, float64(s.BytesUsed))
	ch <- prometheus.MustNewConstMetric(c.raw, prometheus.GaugeValue, float64(s.RawBytes))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.CapacityBytes))
	ch <- prometheus.MustNewConstMetric(c.tier, prometheus.GaugeValue, float64(s.Pressure))
	if s.Memory != nil && s.Memory.Error == "" {
		ch <- prometheus.MustNewConstMetric(c.avail, prometheus.GaugeValue, float64(s.Memory.AvailableBytes))
	}
	for i, sh := range s.Shards {
		ch <- prometheus.MustNewConstMetric(c.shardUse, prometheus.GaugeValue, float64(sh.BytesUsed), strconv.Itoa(i))
	}
}

var _ prometheus.Collector = (*StatsCollector)(nil)
