package internal

import (
	"errors"
	"fmt"
)

// ensureValidLocked returns the node's current value, recomputing it first
// when needed. Valid and errored nodes answer from cache in O(1).
func (g *Graph) ensureValidLocked(n *node) (any, error) {
	switch n.status {
	case StatusValid:
		g.metrics.cacheHit()
		return n.value, nil
	case StatusErrored:
		return nil, n.err
	case StatusComputing:
		if n.flight != nil {
			return nil, &pendingError{ch: n.flight.done, fl: n.flight}
		}
		return nil, g.cycleLocked(n)
	}

	if n.kind == KindPrimitive {
		// primitives never go stale
		n.status = StatusValid
		return n.value, nil
	}

	return g.refreshLocked(n)
}

// refreshLocked revalidates a stale derived node: it first settles the
// node's recorded dependencies and compares their versions against the
// ones observed at the last evaluation, skipping the recompute entirely
// when nothing actually changed. Otherwise it re-runs compute (or starts
// the async flight).
func (g *Graph) refreshLocked(n *node) (any, error) {
	n.status = StatusComputing
	g.evalStack = append(g.evalStack, n)
	defer func() {
		g.evalStack = g.evalStack[:len(g.evalStack)-1]
	}()

	unchanged, err := g.depsUnchangedLocked(n)
	if err != nil {
		n.status = StatusStale
		return nil, err
	}
	if unchanged {
		if n.err != nil {
			n.status = StatusErrored
			return nil, n.err
		}
		n.status = StatusValid
		g.metrics.cacheHit()
		return n.value, nil
	}

	if n.async {
		fl := g.startFlightLocked(n)
		return nil, &pendingError{ch: fl.done, fl: fl}
	}

	f := newFrame(n)
	value, err := runCompute(n.compute, Reader{g: g, f: f, mode: readSync})
	v, _, err := g.commitEvaluationLocked(n, f, value, err)
	return v, err
}

// depsUnchangedLocked reports whether every dependency recorded at the
// last evaluation still has the version observed back then. Settling a
// dependency may recurse arbitrarily deep.
func (g *Graph) depsUnchangedLocked(n *node) (bool, error) {
	if n.version == 0 || len(n.deps) == 0 {
		return false, nil
	}

	for _, depID := range n.deps {
		dep, ok := g.nodes[depID]
		if !ok {
			return false, nil
		}
		if _, err := g.ensureValidLocked(dep); err != nil {
			var pe *pendingError
			if errors.As(err, &pe) {
				return false, err
			}
			// an errored dependency bumped its version when it failed;
			// fall through to the comparison
		}
		if dep.version != n.depVersions[depID] {
			return false, nil
		}
	}
	return true, nil
}

// commitEvaluationLocked records the outcome of an evaluation: dependency
// edges are diffed and patched, the value is compared under the node's
// equality, the version advances iff the value changed, and staleness
// spreads to dependents only on actual change.
func (g *Graph) commitEvaluationLocked(n *node, f *frame, value any, err error) (any, []*node, error) {
	if err != nil && errors.Is(err, ErrPending) {
		// a compute read a dependency that is still in flight. The node
		// stays stale and keeps its committed dependency snapshot:
		// adopting the aborted frame's versions would mask the very
		// change that forced this run, validating the old cached value
		// against fresh dependency versions. Only the inverse edges
		// register, so the settling flight still invalidates this node.
		for _, id := range f.reads {
			dep, ok := g.nodes[id]
			if !ok {
				continue
			}
			if dep.dependents == nil {
				dep.dependents = make(map[NodeID]struct{})
			}
			dep.dependents[n.id] = struct{}{}
		}
		n.status = StatusStale
		return nil, nil, err
	}

	g.patchEdgesLocked(n, f)
	g.metrics.computed()

	if err != nil {
		// an error is always a change relative to any prior state
		n.err = &ComputeError{Node: n.id, Err: err}
		n.value = nil
		n.version++
		n.status = StatusErrored
		g.metrics.computeFailed()
		reached := g.propagateStaleLocked([]*node{n})
		return nil, reached, n.err
	}

	changed := n.version == 0 || n.err != nil || !n.equal(n.value, value)
	n.value = value
	n.err = nil
	n.status = StatusValid

	var reached []*node
	if changed {
		n.version++
		reached = g.propagateStaleLocked([]*node{n})
	}
	return value, reached, nil
}

// patchEdgesLocked replaces the node's dependency set with the reads the
// frame accumulated, updating inverse edges on both sides. Dependency sets
// are dynamic: a conditional compute may read different nodes on
// different runs.
func (g *Graph) patchEdgesLocked(n *node, f *frame) {
	for _, old := range n.deps {
		if _, still := f.seen[old]; still {
			continue
		}
		if dep, ok := g.nodes[old]; ok {
			delete(dep.dependents, n.id)
		}
	}

	for _, id := range f.reads {
		dep, ok := g.nodes[id]
		if !ok {
			continue
		}
		if dep.dependents == nil {
			dep.dependents = make(map[NodeID]struct{})
		}
		dep.dependents[n.id] = struct{}{}
	}

	n.deps = f.reads
	n.depSet = f.seen
	n.depVersions = f.versions
}

// cycleLocked builds a CycleError from the synchronous evaluation stack,
// from the offending node back to itself.
func (g *Graph) cycleLocked(n *node) error {
	path := []NodeID{n.id}
	start := 0
	for i, on := range g.evalStack {
		if on == n {
			start = i
			break
		}
	}
	for _, on := range g.evalStack[start+1:] {
		path = append(path, on.id)
	}
	path = append(path, n.id)

	g.log.Debug("cycle detected", "path", fmt.Sprint(path))
	return &CycleError{Path: path}
}

// runCompute invokes user code, converting panics into errors.
func runCompute(compute ComputeFunc, r Reader) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	return compute(r)
}
