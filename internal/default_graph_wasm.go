//go:build wasm

package internal

import "sync"

var once sync.Once
var defaultGraph *Graph

func DefaultGraph() *Graph {
	once.Do(func() {
		defaultGraph = New(Config{})
	})

	return defaultGraph
}
