package internal

import "errors"

// frame is the call-scoped dependency accumulator for one evaluation. Each
// evaluation owns its own frame, so concurrent evaluations can never leak
// reads into one another. Nested evaluations compose naturally: the outer
// frame records the inner node's id, not the inner node's dependencies.
type frame struct {
	owner    *node
	reads    []NodeID
	seen     map[NodeID]struct{}
	versions map[NodeID]uint64
}

func newFrame(owner *node) *frame {
	return &frame{
		owner:    owner,
		seen:     make(map[NodeID]struct{}),
		versions: make(map[NodeID]uint64),
	}
}

// record notes a settled read of dep. The dependency's current version is
// captured so the next stale mark can be revalidated against it.
func (f *frame) record(dep *node) {
	if _, ok := f.seen[dep.id]; !ok {
		f.seen[dep.id] = struct{}{}
		f.reads = append(f.reads, dep.id)
	}
	f.versions[dep.id] = dep.version
}

type readMode int

const (
	// readSync reads run with the graph lock already held, as part of a
	// synchronous evaluation or a setter.
	readSync readMode = iota
	// readAsync reads come from an async evaluation goroutine and take
	// the lock per read. They block on pending dependencies.
	readAsync
)

// Reader is the read capability handed to compute and set functions.
type Reader struct {
	g       *Graph
	f       *frame
	mode    readMode
	fl      *flightState
	noTrack bool
}

// Untracked returns a Reader whose reads are not recorded as dependencies.
func (r Reader) Untracked() Reader {
	r.noTrack = true
	return r
}

// Read returns the current value of the node, recomputing it first if it
// is stale, and records the read into the evaluation's dependency set.
func (r Reader) Read(id NodeID) (any, error) {
	if r.mode == readSync {
		return r.g.readTrackedLocked(r, id)
	}

	for {
		r.g.mu.Lock()
		v, err := r.g.readTrackedLocked(r, id)
		r.g.mu.Unlock()

		// an async evaluation awaits pending dependencies rather than
		// giving up
		var pe *pendingError
		if errors.As(err, &pe) && r.fl != nil {
			if pe.fl == r.fl {
				// the pending flight is this evaluation itself: it read
				// its own node, directly or through sync dependents
				return nil, &CycleError{Path: []NodeID{r.fl.owner.id, r.fl.owner.id}}
			}
			if cerr := r.g.waitOn(r.fl, pe.fl); cerr != nil {
				return nil, cerr
			}
			<-pe.ch
			r.g.doneWaiting(r.fl)
			continue
		}
		return v, err
	}
}

// Writer is the write capability handed to set functions. Writes issued
// through it join the transaction the outer write opened.
type Writer struct {
	g *Graph
}

// Write buffers a new value for the node into the open transaction.
func (w Writer) Write(id NodeID, v any) error {
	return w.g.writeLocked(id, v)
}

func (g *Graph) readTrackedLocked(r Reader, id NodeID) (any, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, unknownNode(id)
	}

	v, err := g.ensureValidLocked(n)
	if !r.noTrack && r.f != nil {
		r.f.record(n)

		// async evaluations register the inverse edge as they read, not
		// just at settle: a write committed while the evaluation is in
		// flight must reach the node to advance its epoch
		if r.mode == readAsync && r.f.owner != nil {
			if n.dependents == nil {
				n.dependents = make(map[NodeID]struct{})
			}
			n.dependents[r.f.owner.id] = struct{}{}
		}
	}
	return v, err
}
