package internal

import (
	"fmt"
	"maps"
	"slices"
)

// CreatePrimitive registers a writable leaf cell holding initial. The node
// starts valid with version 1.
func (g *Graph) CreatePrimitive(initial any, cfg NodeConfig) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.allocateLocked(KindPrimitive, cfg)
	n.value = initial
	n.version = 1
	n.status = StatusValid

	g.log.Debug("node created", "id", n.id, "kind", "primitive")
	return n.id
}

// CreateDerived registers a computed node. It starts stale and is never
// eagerly evaluated; the first read runs compute. A non-nil setter makes
// the node writable, with writes routed through it to primitives.
func (g *Graph) CreateDerived(compute ComputeFunc, setter SetFunc, cfg NodeConfig) NodeID {
	return g.createDerived(compute, setter, false, cfg)
}

// CreateDerivedAsync registers a computed node whose compute runs on its
// own goroutine. Reads while the evaluation is in flight return ErrPending.
func (g *Graph) CreateDerivedAsync(compute ComputeFunc, setter SetFunc, cfg NodeConfig) NodeID {
	return g.createDerived(compute, setter, true, cfg)
}

func (g *Graph) createDerived(compute ComputeFunc, setter SetFunc, async bool, cfg NodeConfig) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.allocateLocked(KindDerived, cfg)
	n.compute = compute
	n.setter = setter
	n.async = async
	n.status = StatusStale

	g.log.Debug("node created", "id", n.id, "kind", "derived", "async", async)
	return n.id
}

// Read returns the node's current value, recomputing first if stale. A
// top-level read tracks nothing.
func (g *Graph) Read(id NodeID) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, unknownNode(id)
	}
	return g.ensureValidLocked(n)
}

// Write buffers a new value for the node into the open transaction, or
// opens and commits an implicit single-write transaction if none is open.
// Writes to a derived node are routed through its setter; a derived node
// without one is not writable.
func (g *Graph) Write(id NodeID, v any) error {
	g.mu.Lock()

	implicit := g.txn == nil
	if implicit {
		g.txn = newTxn()
	}

	err := g.writeLocked(id, v)

	if !implicit {
		g.mu.Unlock()
		return err
	}

	t := g.txn
	g.txn = nil
	if err != nil {
		g.mu.Unlock()
		return err
	}

	cbs := g.commitLocked(t)
	g.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
	return nil
}

func (g *Graph) writeLocked(id NodeID, v any) error {
	n, ok := g.nodes[id]
	if !ok {
		return unknownNode(id)
	}

	if n.kind == KindDerived {
		if n.setter == nil {
			return fmt.Errorf("%w: %d", ErrNotWritable, id)
		}

		// a failing setter must not leave a subset of its writes in the
		// open transaction, where a batch that swallows the error would
		// commit them
		order := slices.Clone(g.txn.order)
		values := maps.Clone(g.txn.values)
		if err := n.setter(Reader{g: g, mode: readSync}, Writer{g: g}, v); err != nil {
			g.txn.order = order
			g.txn.values = values
			return err
		}
		return nil
	}

	g.txn.buffer(id, v)
	return nil
}

// Subscribe registers a callback that fires once per settled transaction
// in which the node's version changed. The returned closure unsubscribes.
func (g *Graph) Subscribe(id NodeID, cb func()) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, unknownNode(id)
	}

	token := n.addSub(cb)
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if cur, ok := g.nodes[id]; ok && cur == n {
			n.removeSub(token)
		}
	}, nil
}

// Dispose removes the node. Unless force is set, disposing a node that
// other nodes still depend on fails with ErrHasDependents; forcing
// cascades over the dependents, since they would otherwise be permanently
// errored on their next recompute.
func (g *Graph) Dispose(id NodeID, force bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return unknownNode(id)
	}

	if len(n.dependents) > 0 && !force {
		return fmt.Errorf("%w: %d has %d dependents", ErrHasDependents, id, len(n.dependents))
	}

	g.disposeLocked(n)
	return nil
}

func (g *Graph) disposeLocked(n *node) {
	if _, ok := g.nodes[n.id]; !ok {
		return
	}

	// subscriptions go first
	n.subs = nil
	n.subOrder = nil

	for depID := range n.dependents {
		if dep, ok := g.nodes[depID]; ok {
			g.disposeLocked(dep)
		}
	}

	for _, depID := range n.deps {
		if dep, ok := g.nodes[depID]; ok {
			delete(dep.dependents, n.id)
		}
	}

	delete(g.nodes, n.id)
	g.metrics.nodeDisposed()
	g.log.Debug("node disposed", "id", n.id)
}

// Close disposes every node in the graph. In-flight async evaluations
// find their node unregistered when they settle and are discarded.
func (g *Graph) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, n := range g.nodes {
		n.subs = nil
		n.subOrder = nil
		delete(g.nodes, id)
		g.metrics.nodeDisposed()
	}
	g.log.Debug("graph closed")
}
