// Package weft implements a fine-grained reactive dependency graph.
// Primitive nodes hold externally written values; derived nodes compute,
// cache and invalidate values from the nodes they read; subscribers are
// notified once per settled transaction, and only when a value they watch
// actually changed.
//
// Compute functions receive a Reader and must perform all reads through
// it: that is how the graph learns a node's dependencies, and dependency
// sets may differ from run to run. Calling Get on a handle from inside a
// compute function is a deadlock, not a dependency.
package weft

import (
	"context"

	"weft/internal"
)

// NodeID is a stable handle for a node within its graph.
type NodeID = internal.NodeID

// Status is a node's lifecycle state.
type Status = internal.Status

const (
	StatusValid     = internal.StatusValid
	StatusStale     = internal.StatusStale
	StatusComputing = internal.StatusComputing
	StatusErrored   = internal.StatusErrored
)

// Error taxonomy. ComputeError and CycleError carry detail; the rest are
// sentinels matched with errors.Is.
var (
	ErrUnknownNode   = internal.ErrUnknownNode
	ErrNotWritable   = internal.ErrNotWritable
	ErrHasDependents = internal.ErrHasDependents
	ErrPending       = internal.ErrPending
)

type (
	ComputeError = internal.ComputeError
	CycleError   = internal.CycleError
)

func as[T any](v any) T {
	if v == nil {
		var zero T
		return zero
	}

	return v.(T)
}

// Reader is the read capability passed to compute and set functions.
// Reads through it are recorded as dependencies of the evaluating node.
type Reader struct {
	r internal.Reader
}

// Untracked returns a Reader whose reads are not recorded as dependencies.
func (r Reader) Untracked() Reader {
	return Reader{r.r.Untracked()}
}

// Writer is the write capability passed to set functions. Writes through
// it join the transaction the outer write opened.
type Writer struct {
	w internal.Writer
}

// NodeOption configures a node at creation.
type NodeOption func(*internal.NodeConfig)

// WithEqual sets the node's equality function. The node's version advances
// only when a new value is unequal to the cached one.
func WithEqual[T any](eq func(a, b T) bool) NodeOption {
	return func(cfg *internal.NodeConfig) {
		cfg.Equal = func(a, b any) bool { return eq(as[T](a), as[T](b)) }
	}
}

// WithDeepEqual compares values structurally (go-cmp) instead of by
// identity.
func WithDeepEqual() NodeOption {
	return func(cfg *internal.NodeConfig) {
		cfg.Equal = internal.EqualDeep
	}
}

// WithAlwaysChanged makes every write and recompute count as a change.
func WithAlwaysChanged() NodeOption {
	return func(cfg *internal.NodeConfig) {
		cfg.Equal = internal.EqualNever
	}
}

func nodeConfig(opts []NodeOption) internal.NodeConfig {
	var cfg internal.NodeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Primitive is a writable leaf cell.
type Primitive[T any] struct {
	g  *internal.Graph
	id internal.NodeID
}

// NewPrimitive creates a primitive node on the calling goroutine's
// ambient graph.
func NewPrimitive[T any](initial T, opts ...NodeOption) *Primitive[T] {
	return NewPrimitiveWith(Default(), initial, opts...)
}

// NewPrimitiveWith creates a primitive node on a specific graph.
func NewPrimitiveWith[T any](g *Graph, initial T, opts ...NodeOption) *Primitive[T] {
	return &Primitive[T]{
		g:  g.inner,
		id: g.inner.CreatePrimitive(initial, nodeConfig(opts)),
	}
}

// ID returns the node's handle within its graph.
func (p *Primitive[T]) ID() NodeID { return p.id }

// Get returns the committed value. It panics if the node was disposed.
func (p *Primitive[T]) Get() T {
	v, err := p.g.Read(p.id)
	if err != nil {
		panic(err)
	}
	return as[T](v)
}

// Set writes a new value, joining the open transaction or committing an
// implicit single-write transaction. It panics if the node was disposed.
func (p *Primitive[T]) Set(v T) {
	if err := p.g.Write(p.id, v); err != nil {
		panic(err)
	}
}

// Read returns the value through a compute function's read capability,
// recording the dependency.
func (p *Primitive[T]) Read(r Reader) T {
	v, err := r.r.Read(p.id)
	if err != nil {
		panic(err)
	}
	return as[T](v)
}

// Write buffers a value through a set function's write capability.
func (p *Primitive[T]) Write(w Writer, v T) {
	if err := w.w.Write(p.id, v); err != nil {
		panic(err)
	}
}

// Subscribe registers a callback fired once per settled transaction in
// which this node's value changed. The returned closure unsubscribes.
func (p *Primitive[T]) Subscribe(cb func()) func() {
	unsub, err := p.g.Subscribe(p.id, cb)
	if err != nil {
		panic(err)
	}
	return unsub
}

// Dispose removes the node. Without force it fails with ErrHasDependents
// when other nodes still depend on it; with force it cascades over them.
func (p *Primitive[T]) Dispose(force bool) error {
	return p.g.Dispose(p.id, force)
}

// Version returns the node's version, which advances exactly when the
// value changes.
func (p *Primitive[T]) Version() uint64 {
	v, err := p.g.Version(p.id)
	if err != nil {
		panic(err)
	}
	return v
}

// Derived is a node computed from other nodes. It is evaluated lazily on
// first read and re-evaluated only after a dependency actually changed.
type Derived[T any] struct {
	g  *internal.Graph
	id internal.NodeID
}

// NewDerived creates a derived node on the calling goroutine's ambient
// graph. The compute function runs synchronously on demand.
func NewDerived[T any](compute func(r Reader) (T, error), opts ...NodeOption) *Derived[T] {
	return NewDerivedWith(Default(), compute, opts...)
}

// NewDerivedWith creates a derived node on a specific graph.
func NewDerivedWith[T any](g *Graph, compute func(r Reader) (T, error), opts ...NodeOption) *Derived[T] {
	return &Derived[T]{
		g:  g.inner,
		id: g.inner.CreateDerived(adaptCompute(compute), nil, nodeConfig(opts)),
	}
}

// NewAsyncDerived creates a derived node whose compute runs on its own
// goroutine. Get returns ErrPending while an evaluation is in flight; use
// Wait for blocking semantics. If a dependency changes while an
// evaluation is in flight, the in-flight result is discarded when it
// settles (staleness wins) and the node stays stale.
func NewAsyncDerived[T any](compute func(r Reader) (T, error), opts ...NodeOption) *Derived[T] {
	return NewAsyncDerivedWith(Default(), compute, opts...)
}

// NewAsyncDerivedWith creates an async derived node on a specific graph.
func NewAsyncDerivedWith[T any](g *Graph, compute func(r Reader) (T, error), opts ...NodeOption) *Derived[T] {
	return &Derived[T]{
		g:  g.inner,
		id: g.inner.CreateDerivedAsync(adaptCompute(compute), nil, nodeConfig(opts)),
	}
}

// NewWritableDerived creates a derived node that also accepts writes,
// routed through set down to underlying primitives.
func NewWritableDerived[T any](compute func(r Reader) (T, error), set func(r Reader, w Writer, next T) error, opts ...NodeOption) *Derived[T] {
	return NewWritableDerivedWith(Default(), compute, set, opts...)
}

// NewWritableDerivedWith creates a writable derived node on a specific
// graph.
func NewWritableDerivedWith[T any](g *Graph, compute func(r Reader) (T, error), set func(r Reader, w Writer, next T) error, opts ...NodeOption) *Derived[T] {
	setter := func(ir internal.Reader, iw internal.Writer, next any) error {
		return set(Reader{ir}, Writer{iw}, as[T](next))
	}
	return &Derived[T]{
		g:  g.inner,
		id: g.inner.CreateDerived(adaptCompute(compute), setter, nodeConfig(opts)),
	}
}

func adaptCompute[T any](compute func(r Reader) (T, error)) internal.ComputeFunc {
	return func(ir internal.Reader) (any, error) {
		v, err := compute(Reader{ir})
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// ID returns the node's handle within its graph.
func (d *Derived[T]) ID() NodeID { return d.id }

// Get returns the current value, recomputing first if a dependency
// changed. Compute failures come back as a ComputeError until a later
// evaluation succeeds; async nodes in flight return ErrPending.
func (d *Derived[T]) Get() (T, error) {
	v, err := d.g.Read(d.id)
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](v), nil
}

// MustGet is Get, panicking on error.
func (d *Derived[T]) MustGet() T {
	v, err := d.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// Wait blocks until the node settles, starting an evaluation if needed.
func (d *Derived[T]) Wait(ctx context.Context) (T, error) {
	v, err := d.g.Wait(ctx, d.id)
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](v), nil
}

// Set writes through the node's setter. Nodes created without one return
// ErrNotWritable.
func (d *Derived[T]) Set(v T) error {
	return d.g.Write(d.id, v)
}

// Read returns the value through a compute function's read capability,
// recording a dependency on this node (not on its own dependencies:
// invalidation stays granular).
func (d *Derived[T]) Read(r Reader) (T, error) {
	v, err := r.r.Read(d.id)
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](v), nil
}

// Subscribe registers a callback fired once per settled transaction in
// which this node's value changed. The returned closure unsubscribes.
func (d *Derived[T]) Subscribe(cb func()) func() {
	unsub, err := d.g.Subscribe(d.id, cb)
	if err != nil {
		panic(err)
	}
	return unsub
}

// Dispose removes the node, refusing without force while dependents
// remain.
func (d *Derived[T]) Dispose(force bool) error {
	return d.g.Dispose(d.id, force)
}

// Status reports the node's lifecycle state.
func (d *Derived[T]) Status() Status {
	s, err := d.g.Status(d.id)
	if err != nil {
		panic(err)
	}
	return s
}

// Dependencies returns the ids the node read during its last evaluation,
// in read order.
func (d *Derived[T]) Dependencies() []NodeID {
	deps, err := d.g.Dependencies(d.id)
	if err != nil {
		panic(err)
	}
	return deps
}

// Version returns the node's version, which advances exactly when its
// value changes.
func (d *Derived[T]) Version() uint64 {
	v, err := d.g.Version(d.id)
	if err != nil {
		panic(err)
	}
	return v
}
