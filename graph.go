package weft

import (
	"log/slog"

	"weft/internal"
)

// Graph owns an independent reactive graph. Handles are bound to the
// graph they were created on; graphs never share nodes.
type Graph struct {
	inner *internal.Graph
}

// GraphOption configures a graph at creation.
type GraphOption func(*internal.Config)

// WithLogger attaches a logger for debug-level graph events.
func WithLogger(log *slog.Logger) GraphOption {
	return func(cfg *internal.Config) {
		cfg.Logger = log
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *Metrics) GraphOption {
	return func(cfg *internal.Config) {
		cfg.Metrics = m
	}
}

// WithDefaultEqual sets the equality used by nodes that don't override it.
func WithDefaultEqual(eq func(a, b any) bool) GraphOption {
	return func(cfg *internal.Config) {
		cfg.Equal = eq
	}
}

// New creates an empty graph. Tests typically make one per test so graphs
// stay independent.
func New(opts ...GraphOption) *Graph {
	var cfg internal.Config
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Graph{inner: internal.New(cfg)}
}

// Default returns the calling goroutine's ambient graph, created on first
// use. Handles carry their graph, so only the creation site matters.
func Default() *Graph {
	return &Graph{inner: internal.DefaultGraph()}
}

// Batch runs fn with every write buffered into one transaction. On
// successful return the writes are applied in program order, invalidation
// runs once over the changed set, and subscribers are notified once. If
// fn returns an error or panics, nothing is applied and nothing fires.
// Nested calls join the outer transaction.
func (g *Graph) Batch(fn func() error) error {
	return g.inner.Batch(fn)
}

// Close disposes every node in the graph.
func (g *Graph) Close() {
	g.inner.Close()
}

// Batch runs fn as a transaction on the ambient graph.
func Batch(fn func() error) error {
	return Default().Batch(fn)
}

// Metrics instruments a graph with Prometheus counters.
type Metrics = internal.Metrics

// MetricsOption configures Metrics.
type MetricsOption = internal.MetricsOption

// NewMetrics registers graph counters on the configured registry
// (prometheus.DefaultRegisterer unless WithRegistry overrides it).
func NewMetrics(opts ...MetricsOption) *Metrics {
	return internal.NewMetrics(opts...)
}

// Metrics options, re-exported.
var (
	WithNamespace   = internal.WithNamespace
	WithSubsystem   = internal.WithSubsystem
	WithConstLabels = internal.WithConstLabels
	WithRegistry    = internal.WithRegistry
)
