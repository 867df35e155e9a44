// ABOUTME: Prometheus collectors for connections, directory lookups, requests and deliveries.
// ABOUTME: Methods are safe on a nil *Metrics so components can run without metrics enabled.

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fdc3"

// Directory resolution outcomes.
const (
	ResolutionMatched   = "matched"
	ResolutionDynamic   = "dynamic"
	ResolutionAmbiguous = "ambiguous"
	ResolutionFailed    = "failed"
)

// Metrics holds the gateway's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	connections     prometheus.Gauge
	resolutions     *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	delivered       *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	intents         *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Apps currently connected to the agent.",
		}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_resolutions_total",
			Help:      "Directory lookups for connecting apps by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled by method and result.",
		}, []string{"method", "result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Handler latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Frames queued to apps by topic.",
		}, []string{"topic"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_dropped_total",
			Help:      "Frames dropped because an app's outbound queue was full.",
		}, []string{"topic"}),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_raised_total",
			Help:      "Raised intents by resolution outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections,
		m.resolutions,
		m.requests,
		m.requestDuration,
		m.delivered,
		m.dropped,
		m.intents,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

// DirectoryResolution counts one connect-time directory lookup.
func (m *Metrics) DirectoryResolution(outcome string) {
	if m != nil {
		m.resolutions.WithLabelValues(outcome).Inc()
	}
}

// Request records a handled request.
func (m *Metrics) Request(method string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.requests.WithLabelValues(method, result).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Delivery records a frame queued (or dropped) for an app.
func (m *Metrics) Delivery(topic string, queued bool) {
	if m == nil {
		return
	}
	if queued {
		m.delivered.WithLabelValues(topic).Inc()
	} else {
		m.dropped.WithLabelValues(topic).Inc()
	}
}

// IntentRaised records a raiseIntent outcome ("delivered" or an error kind).
func (m *Metrics) IntentRaised(outcome string) {
	if m != nil {
		m.intents.WithLabelValues(outcome).Inc()
	}
}
