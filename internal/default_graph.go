//go:build !wasm

package internal

import (
	"sync"

	"github.com/petermattis/goid"
)

var graphs sync.Map

// DefaultGraph returns the calling goroutine's ambient graph, creating it
// on first use. Handles carry a reference to their graph, so nodes created
// here remain usable from any goroutine; only the creation site picks the
// graph. Independent graphs (one per test, say) are made with New.
func DefaultGraph() *Graph {
	gid := goid.Get()

	if g, ok := graphs.Load(gid); ok {
		return g.(*Graph)
	}

	g := New(Config{})
	graphs.Store(gid, g)
	return g
}
