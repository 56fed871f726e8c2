// Package metrics exposes Prometheus collectors for guards, server
// sessions and permalinks.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	qerrors "github.com/vango-dev/queryguard/internal/errors"
	"github.com/vango-dev/queryguard/pkg/guard"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "queryguard").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "queryguard",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors. It implements guard.Observer.
type Metrics struct {
	resolvesTotal   *prometheus.CounterVec
	resolveDuration prometheus.Histogram
	resolveIssues   prometheus.Counter
	writesTotal     *prometheus.CounterVec
	notifications   prometheus.Counter

	activeSessions prometheus.Gauge
	framesTotal    *prometheus.CounterVec
	frameDuration  *prometheus.HistogramVec
	wsErrors       *prometheus.CounterVec

	linksTotal *prometheus.CounterVec
}

var _ guard.Observer = (*Metrics)(nil)

// New registers the collectors.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	return &Metrics{
		resolvesTotal: counter("resolves_total",
			"Total number of resolver runs by outcome", "outcome"),

		resolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "resolve_duration_seconds",
			Help:        "Resolver run duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		resolveIssues: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "resolve_issues_total",
			Help:        "Total number of recoverable issues reported by resolvers",
			ConstLabels: config.ConstLabels,
		}),

		writesTotal: counter("writes_total",
			"Total number of guard writes by operation, history mode and status", "op", "history", "status"),

		notifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "listener_notifications_total",
			Help:        "Total number of listener invocations",
			ConstLabels: config.ConstLabels,
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of active WebSocket sessions",
			ConstLabels: config.ConstLabels,
		}),

		framesTotal: counter("frames_total",
			"Total number of inbound frames by type and status", "type", "status"),

		frameDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frame_duration_seconds",
			Help:        "Inbound frame handling duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"type"}),

		wsErrors: counter("websocket_errors_total",
			"Total WebSocket errors by type", "type"),

		linksTotal: counter("links_total",
			"Total permalink operations by operation and status", "op", "status"),
	}
}

// ObserveResolve implements guard.Observer.
func (m *Metrics) ObserveResolve(d time.Duration, meta guard.Meta, err error) {
	m.resolveDuration.Observe(d.Seconds())
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case meta.UsedDefault:
		outcome = "default"
	}
	m.resolvesTotal.WithLabelValues(outcome).Inc()
	m.resolveIssues.Add(float64(len(meta.Issues)))
}

// ObserveWrite implements guard.Observer.
func (m *Metrics) ObserveWrite(op string, history guard.HistoryMode, err error) {
	m.writesTotal.WithLabelValues(op, string(history), status(err)).Inc()
}

// ObserveNotify implements guard.Observer.
func (m *Metrics) ObserveNotify(listeners int) {
	m.notifications.Add(float64(listeners))
}

// SessionOpened records a new WebSocket session.
func (m *Metrics) SessionOpened() {
	m.activeSessions.Inc()
}

// SessionClosed records the end of a WebSocket session.
func (m *Metrics) SessionClosed() {
	m.activeSessions.Dec()
}

// ObserveFrame records one handled inbound frame.
func (m *Metrics) ObserveFrame(frameType string, d time.Duration, err error) {
	m.frameDuration.WithLabelValues(frameType).Observe(d.Seconds())
	m.framesTotal.WithLabelValues(frameType, status(err)).Inc()
}

// WebSocketError records a transport error.
func (m *Metrics) WebSocketError(errorType string) {
	m.wsErrors.WithLabelValues(errorType).Inc()
}

// ObserveLink records a permalink operation ("put" or "get").
func (m *Metrics) ObserveLink(op string, err error) {
	m.linksTotal.WithLabelValues(op, status(err)).Inc()
}

// status maps err to a low-cardinality label: "ok", an error code, or
// "error" for uncoded errors.
func status(err error) string {
	if err == nil {
		return "ok"
	}
	if code := qerrors.Code(err); code != "" {
		return code
	}
	return "error"
}
