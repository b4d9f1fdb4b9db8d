package internal

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Config carries graph-wide options.
type Config struct {
	// Logger receives debug-level events. Nil discards.
	Logger *slog.Logger

	// Metrics receives instrumentation counters. Nil disables.
	Metrics *Metrics

	// Equal is the default equality used by nodes that don't override it.
	// Nil means EqualDefault.
	Equal EqualFunc
}

// Graph owns a reactive dependency graph: the node table, the dependency
// edges, the open transaction and the evaluation machinery. All graph
// mutation is serialized behind a single mutex; synchronous evaluation
// runs with the lock held, async evaluations lock per read.
type Graph struct {
	mu sync.Mutex

	nodes  map[NodeID]*node
	nextID NodeID

	// open transaction, nil when none. Nested batches join it.
	txn      *txn
	txnDepth int

	// in-progress synchronous evaluations, for cycle detection.
	evalStack []*node

	log     *slog.Logger
	metrics *Metrics
	equal   EqualFunc
}

// New creates an empty graph. Multiple independent graphs can coexist.
func New(cfg Config) *Graph {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	equal := cfg.Equal
	if equal == nil {
		equal = EqualDefault
	}

	return &Graph{
		nodes:   make(map[NodeID]*node),
		log:     log,
		metrics: cfg.Metrics,
		equal:   equal,
	}
}

func (g *Graph) allocateLocked(kind Kind, cfg NodeConfig) *node {
	g.nextID++
	n := &node{
		id:    g.nextID,
		kind:  kind,
		equal: g.equal,
	}
	if cfg.Equal != nil {
		n.equal = cfg.Equal
	}
	g.nodes[n.id] = n
	g.metrics.nodeCreated()
	return n
}

func unknownNode(id NodeID) error {
	return fmt.Errorf("%w: %d", ErrUnknownNode, id)
}
