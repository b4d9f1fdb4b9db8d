package internal

import "github.com/google/uuid"

// NodeID is a stable handle for a node within its graph.
type NodeID int64

// Kind distinguishes externally settable cells from computed nodes.
type Kind int

const (
	KindPrimitive Kind = iota
	KindDerived
)

// Status is a node's lifecycle state.
type Status int

const (
	// StatusValid means the cached value is current and reads are O(1).
	StatusValid Status = iota
	// StatusStale means the node must be revalidated before its cached
	// value can be trusted.
	StatusStale
	// StatusComputing means an evaluation is in progress.
	StatusComputing
	// StatusErrored means the last evaluation failed and the error is
	// cached in place of a value.
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusStale:
		return "stale"
	case StatusComputing:
		return "computing"
	case StatusErrored:
		return "errored"
	}
	return "unknown"
}

// ComputeFunc derives a node's value. Every read it performs through the
// Reader is recorded as a dependency of the node being evaluated.
type ComputeFunc func(r Reader) (any, error)

// SetFunc routes a write on a derived node down to underlying primitives.
type SetFunc func(r Reader, w Writer, next any) error

// NodeConfig carries per-node options applied at creation.
type NodeConfig struct {
	Equal EqualFunc
}

type node struct {
	id     NodeID
	kind   Kind
	status Status
	async  bool

	value   any
	err     error
	version uint64

	// epoch advances every time the node is marked stale; an in-flight
	// async evaluation whose start epoch no longer matches is discarded.
	epoch uint64

	equal   EqualFunc
	compute ComputeFunc
	setter  SetFunc

	// deps is the exact set of ids read during the last evaluation, in
	// read order. depVersions remembers the version each dependency had
	// when it was read, so a stale mark can be revalidated without
	// recomputing when no dependency actually changed.
	deps        []NodeID
	depSet      map[NodeID]struct{}
	depVersions map[NodeID]uint64

	// dependents is the inverse edge set, maintained on every evaluation.
	dependents map[NodeID]struct{}

	flight *flightState

	subs     map[uuid.UUID]func()
	subOrder []uuid.UUID
}

func (n *node) addSub(cb func()) uuid.UUID {
	if n.subs == nil {
		n.subs = make(map[uuid.UUID]func())
	}
	token := uuid.New()
	n.subs[token] = cb
	n.subOrder = append(n.subOrder, token)
	return token
}

func (n *node) removeSub(token uuid.UUID) {
	delete(n.subs, token)
	for i, t := range n.subOrder {
		if t == token {
			n.subOrder = append(n.subOrder[:i], n.subOrder[i+1:]...)
			break
		}
	}
}

// callbacks returns the node's subscriber callbacks in subscription order.
func (n *node) callbacks() []func() {
	if len(n.subs) == 0 {
		return nil
	}
	cbs := make([]func(), 0, len(n.subs))
	for _, token := range n.subOrder {
		if cb, ok := n.subs[token]; ok {
			cbs = append(cbs, cb)
		}
	}
	return cbs
}
