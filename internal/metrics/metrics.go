// ABOUTME: Prometheus collectors for the command queue, presence, push and HTTP layers
// ABOUTME: Each Metrics owns its registry so tests and multiple gateways don't collide

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Queue metrics
	CommandsEnqueued *prometheus.CounterVec
	CommandsClaimed  prometheus.Counter

	// Push metrics
	PushResults *prometheus.CounterVec

	// Presence metrics
	PresenceEvicted prometheus.Counter
	Polls           *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates and registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CommandsEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_commands_enqueued_total",
				Help: "Total number of commands durably enqueued",
			},
			[]string{"kind"},
		),

		CommandsClaimed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_commands_claimed_total",
				Help: "Total number of commands claimed by polling workers",
			},
		),

		PushResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_push_results_total",
				Help: "Push dispatch outcomes",
			},
			[]string{"result"},
		),

		PresenceEvicted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_presence_evicted_total",
				Help: "Presence rows removed by the TTL sweep",
			},
		),

		Polls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_polls_total",
				Help: "Total number of authenticated polls",
			},
			[]string{"heartbeat"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),

		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// CommandEnqueued counts one durable enqueue
func (m *Metrics) CommandEnqueued(kind string) {
	if m == nil {
		return
	}
	m.CommandsEnqueued.WithLabelValues(kind).Inc()
}

// Claimed counts commands handed to a worker
func (m *Metrics) Claimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CommandsClaimed.Add(float64(n))
}

// PushResult counts one dispatch outcome ("Sent", "Failed", "NotConfigured")
func (m *Metrics) PushResult(result string) {
	if m == nil {
		return
	}
	m.PushResults.WithLabelValues(result).Inc()
}

// Evicted counts swept presence rows
func (m *Metrics) Evicted(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.PresenceEvicted.Add(float64(n))
}

// Poll counts an authenticated poll
func (m *Metrics) Poll(heartbeat bool) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(strconv.FormatBool(heartbeat)).Inc()
}

// ObserveHTTP records one finished request
func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}
