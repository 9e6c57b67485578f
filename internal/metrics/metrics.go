// Package metrics exposes control-plane counters to Prometheus.
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

const namespace = "browser_control"

// Session start paths
const (
	StartCreate          = "create"
	StartRestore         = "restore"
	StartRestoreFallback = "restore_fallback"
)

// Metrics holds every collector on a private registry, so several
// instances can coexist in one process
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionStarts  *prometheus.CounterVec
	SessionsClosed *prometheus.CounterVec
	LaunchFailures prometheus.Counter
	Placeholders   prometheus.Counter

	// Capture metrics
	Captures *prometheus.CounterVec
	Actions  *prometheus.CounterVec

	// Viewer metrics
	Viewers       prometheus.Gauge
	Broadcasts    *prometheus.CounterVec
	DroppedEvents prometheus.Counter

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions with a live browser",
		}),
		SessionStarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_starts_total",
			Help:      "Sessions brought up, by path",
		}, []string{"path"}),
		SessionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Sessions closed, by reason",
		}, []string{"reason"}),
		LaunchFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launch_failures_total",
			Help:      "Browser launches that failed on every profile",
		}),
		Placeholders: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigation_placeholders_total",
			Help:      "Sessions left on the placeholder because no target answered",
		}),
		Captures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credentials_captured_total",
			Help:      "Captured credential records, by capture method",
		}, []string{"method"}),
		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Remote-control actions executed, by action and outcome",
		}, []string{"action", "outcome"}),
		Viewers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "viewer_connections",
			Help:      "Open realtime viewer connections",
		}),
		Broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_broadcast_total",
			Help:      "Events broadcast to viewers, by type",
		}, []string{"type"}),
		DroppedEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because a viewer could not keep up",
		}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAction records a remote-control action outcome
func (m *Metrics) RecordAction(action string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.Actions.WithLabelValues(action, outcome).Inc()
}
