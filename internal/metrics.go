package internal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures graph instrumentation.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "weft").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures graph instrumentation.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics instruments a graph. A nil *Metrics disables instrumentation.
type Metrics struct {
	computes      prometheus.Counter
	computeErrors prometheus.Counter
	cacheHits     prometheus.Counter
	staleMarks    prometheus.Counter
	commits       prometheus.Counter
	discards      prometheus.Counter
	nodes         prometheus.Gauge
}

// NewMetrics registers graph counters on the configured registry.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := MetricsConfig{
		Namespace: "weft",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	factory := promauto.With(cfg.Registry)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		})
	}

	return &Metrics{
		computes:      counter("computes_total", "Total derived node evaluations."),
		computeErrors: counter("compute_errors_total", "Total failed derived node evaluations."),
		cacheHits:     counter("cache_hits_total", "Total reads answered from a node's memoized value."),
		staleMarks:    counter("stale_marks_total", "Total nodes marked stale by invalidation."),
		commits:       counter("commits_total", "Total committed transactions with at least one change."),
		discards:      counter("discarded_results_total", "Total async results discarded because a newer write won."),
		nodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "nodes",
			Help:        "Current number of registered nodes.",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

func (m *Metrics) computed() {
	if m != nil {
		m.computes.Inc()
	}
}

func (m *Metrics) computeFailed() {
	if m != nil {
		m.computeErrors.Inc()
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) staleMarked(count int) {
	if m != nil {
		m.staleMarks.Add(float64(count))
	}
}

func (m *Metrics) committed() {
	if m != nil {
		m.commits.Inc()
	}
}

func (m *Metrics) discarded() {
	if m != nil {
		m.discards.Inc()
	}
}

func (m *Metrics) nodeCreated() {
	if m != nil {
		m.nodes.Inc()
	}
}

func (m *Metrics) nodeDisposed() {
	if m != nil {
		m.nodes.Dec()
	}
}
