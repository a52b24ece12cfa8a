// Package prom exports flux-cache metrics to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/fluxcache/cache"
)

// Adapter implements cache.Metrics and exports Prometheus counters.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	evicts     *prometheus.CounterVec
	compressed prometheus.Counter
	rawIn      prometheus.Counter
	storedOut  prometheus.Counter
}

// New constructs a Prometheus metrics adapter for the store.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Store hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Store misses",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Store evictions by cause",
				ConstLabels: constLabels,
			},
			[]string{"cause"},
		),
		compressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "compressed_values_total",
			Help:        "Values stored in compressed form",
			ConstLabels: constLabels,
		}),
		rawIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "compression_raw_bytes_total",
			Help:        "Uncompressed bytes of values stored compressed",
			ConstLabels: constLabels,
		}),
		storedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "compression_stored_bytes_total",
			Help:        "Stored bytes of values stored compressed",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.compressed, a.rawIn, a.storedOut)
	// Pre-create every cause so dashboards see zeros instead of gaps.
	for _, c := range []cache.EvictCause{cache.EvictCapacity, cache.EvictPressure, cache.EvictExpired, cache.EvictCorrupted} {
		a.evicts.WithLabelValues(c.String())
	}
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a cause label.
func (a *Adapter) Evict(c cache.EvictCause) {
	a.evicts.WithLabelValues(c.String()).Inc()
}

// Compressed records one value stored compressed.
func (a *Adapter) Compressed(rawBytes, storedBytes int) {
	a.compressed.Inc()
	a.rawIn.Add(float64(rawBytes))
	a.storedOut.Add(float64(storedBytes))
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
