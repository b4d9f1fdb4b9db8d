package internal

// Status reports the node's current lifecycle state.
func (g *Graph) Status(id NodeID) (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return 0, unknownNode(id)
	}
	return n.status, nil
}

// Version reports the node's current version. It advances if and only if
// the node's value changed under its equality function.
func (g *Graph) Version(id NodeID) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return 0, unknownNode(id)
	}
	return n.version, nil
}

// Dependencies returns the ids the node read during its last evaluation,
// in read order. The order is kept for debugging; it carries no semantic
// weight.
func (g *Graph) Dependencies(id NodeID) ([]NodeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, unknownNode(id)
	}
	deps := make([]NodeID, len(n.deps))
	copy(deps, n.deps)
	return deps, nil
}
