package weft

import "weft/internal"

// Family produces parameter-indexed derived nodes: the same parameter
// always yields the same node, created lazily on first access. Parameters
// are keyed by deep equality by default (so deep-equal but distinct
// values share a node), or by identity with WithIdentityParams.
type Family[P, T any] struct {
	f *internal.Family
}

// FamilyOption configures a family at creation.
type FamilyOption func(*internal.FamilyConfig)

// WithIdentityParams keys parameters by Go map equality (identity for
// pointers) instead of deep equality. Parameters must be comparable.
func WithIdentityParams() FamilyOption {
	return func(cfg *internal.FamilyConfig) {
		cfg.Equality = internal.FamilyByIdentity
	}
}

// WithAsyncCompute makes every node the family mints an async derived
// node.
func WithAsyncCompute() FamilyOption {
	return func(cfg *internal.FamilyConfig) {
		cfg.Async = true
	}
}

// WithNodeOptions applies node options to every node the family mints.
func WithNodeOptions(opts ...NodeOption) FamilyOption {
	return func(cfg *internal.FamilyConfig) {
		cfg.Node = nodeConfig(opts)
	}
}

// NewFamily creates a family on the calling goroutine's ambient graph.
// The factory is invoked once per distinct parameter to produce that
// parameter's compute function.
func NewFamily[P, T any](factory func(param P) func(r Reader) (T, error), opts ...FamilyOption) *Family[P, T] {
	return NewFamilyWith(Default(), factory, opts...)
}

// NewFamilyWith creates a family on a specific graph.
func NewFamilyWith[P, T any](g *Graph, factory func(param P) func(r Reader) (T, error), opts ...FamilyOption) *Family[P, T] {
	var cfg internal.FamilyConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	f := g.inner.NewFamily(func(param any) internal.ComputeFunc {
		return adaptCompute(factory(as[P](param)))
	}, cfg)

	return &Family[P, T]{f: f}
}

// Node returns the derived node for param, minting it on first access.
// It panics if the parameter cannot be keyed (unencodable value in the
// default deep-equality mode).
func (f *Family[P, T]) Node(param P) *Derived[T] {
	id, err := f.f.Node(param)
	if err != nil {
		panic(err)
	}
	return &Derived[T]{g: f.f.Graph(), id: id}
}

// Dispose removes every node the family produced, cascading over their
// dependents.
func (f *Family[P, T]) Dispose() {
	f.f.Dispose()
}
