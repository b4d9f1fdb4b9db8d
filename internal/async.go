package internal

import (
	"context"
	"errors"
)

// flightState tracks one in-flight async evaluation. done closes when the
// evaluation settles, whether its result was committed or discarded.
type flightState struct {
	owner *node
	epoch uint64
	done  chan struct{}

	// waitingOn is the flight this one is blocked on, guarded by the
	// graph mutex. Following these edges finds cycles between flights.
	waitingOn *flightState
}

// startFlightLocked launches the async evaluation of a stale node, or
// returns the flight already in progress: a node has at most one
// concurrent compute, and every reader of a computing node shares it.
func (g *Graph) startFlightLocked(n *node) *flightState {
	if n.flight != nil {
		return n.flight
	}

	n.status = StatusComputing
	fl := &flightState{owner: n, epoch: n.epoch, done: make(chan struct{})}
	n.flight = fl

	f := newFrame(n)
	r := Reader{g: g, f: f, mode: readAsync, fl: fl}

	go func() {
		value, err := runCompute(n.compute, r)
		g.settleFlight(n, fl, f, value, err)
	}()

	g.log.Debug("async evaluation started", "id", n.id, "epoch", fl.epoch)
	return fl
}

// settleFlight resolves an async evaluation. Staleness wins: if the node
// was re-marked stale while the evaluation was in flight, its epoch has
// advanced and the result is discarded, leaving the node stale for the
// next read to evaluate afresh. A committed result notifies the node's
// subscribers and any subscribed dependents it invalidated.
func (g *Graph) settleFlight(n *node, fl *flightState, f *frame, value any, err error) {
	g.mu.Lock()

	current, registered := g.nodes[n.id]
	if !registered || current != n || n.epoch != fl.epoch {
		if registered && current == n && n.flight == fl {
			n.flight = nil
			if n.status == StatusComputing {
				n.status = StatusStale
			}
		}
		g.metrics.discarded()
		g.log.Debug("async result discarded", "id", n.id, "epoch", fl.epoch)
		g.mu.Unlock()
		close(fl.done)
		return
	}

	n.flight = nil
	prev := n.version
	_, reached, _ := g.commitEvaluationLocked(n, f, value, err)

	var cbs []func()
	if n.version != prev {
		cbs = append(cbs, n.callbacks()...)
	}
	cbs = append(cbs, g.notifyReachedLocked(reached)...)

	g.log.Debug("async evaluation settled", "id", n.id, "changed", n.version != prev)
	g.mu.Unlock()
	close(fl.done)

	for _, cb := range cbs {
		cb()
	}
}

// waitOn records that fl is about to block on dep. If following the
// waits-for edges from dep leads back to fl, the two flights would block
// on each other forever, so a CycleError with the flight path is returned
// instead of registering the edge.
func (g *Graph) waitOn(fl, dep *flightState) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	path := []NodeID{fl.owner.id}
	for cur := dep; cur != nil; cur = cur.waitingOn {
		path = append(path, cur.owner.id)
		if cur == fl {
			g.log.Debug("async cycle detected", "id", fl.owner.id)
			return &CycleError{Path: path}
		}
	}

	fl.waitingOn = dep
	return nil
}

func (g *Graph) doneWaiting(fl *flightState) {
	g.mu.Lock()
	fl.waitingOn = nil
	g.mu.Unlock()
}

// Wait blocks until the node settles and returns its value, starting an
// evaluation if needed. It is how callers get blocking semantics out of
// async nodes; Read never blocks.
func (g *Graph) Wait(ctx context.Context, id NodeID) (any, error) {
	for {
		g.mu.Lock()
		n, ok := g.nodes[id]
		if !ok {
			g.mu.Unlock()
			return nil, unknownNode(id)
		}
		v, err := g.ensureValidLocked(n)
		g.mu.Unlock()

		var pe *pendingError
		if !errors.As(err, &pe) {
			return v, err
		}

		select {
		case <-pe.ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
