package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/fluxcache/protocol"
	"github.com/IvanBrykalov/fluxcache/server"
)

// ServerAdapter implements server.Metrics.
type ServerAdapter struct {
	conns     prometheus.Gauge
	accepted  prometheus.Counter
	rejected  prometheus.Counter
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	protoErrs *prometheus.CounterVec
}

// NewServer registers connection and request metrics on reg
// (nil => prometheus.DefaultRegisterer).
func NewServer(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *ServerAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &ServerAdapter{
		conns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "connections",
			Help:        "Open client connections",
			ConstLabels: constLabels,
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "connections_total",
			Help:        "Client connections served",
			ConstLabels: constLabels,
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "connections_rejected_total",
			Help:        "Connections refused at the connection limit",
			ConstLabels: constLabels,
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "requests_total",
			Help:        "Requests by verb and response status",
			ConstLabels: constLabels,
		}, []string{"verb", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "request_duration_seconds",
			Help:        "Time spent dispatching a request to the store",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(5e-6, 4, 10),
		}, []string{"verb"}),
		protoErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "protocol_errors_total",
			Help:        "Rejected or unrecoverable request frames by kind",
			ConstLabels: constLabels,
		}, []string{"kind"}),
	}
	reg.MustRegister(a.conns, a.accepted, a.rejected, a.requests, a.latency, a.protoErrs)
	return a
}

func (a *ServerAdapter) ConnOpened() {
	a.conns.Inc()
	a.accepted.Inc()
}

func (a *ServerAdapter) ConnClosed()   { a.conns.Dec() }
func (a *ServerAdapter) ConnRejected() { a.rejected.Inc() }

func (a *ServerAdapter) Request(verb protocol.Verb, status protocol.Status, d time.Duration) {
	a.requests.WithLabelValues(verb.String(), status.String()).Inc()
	a.latency.WithLabelValues(verb.String()).Observe(d.Seconds())
}

func (a *ServerAdapter) ProtocolError(kind string) {
	a.protoErrs.WithLabelValues(kind).Inc()
}

var _ server.Metrics = (*ServerAdapter)(nil)
