package internal

// propagateStaleLocked walks the dependent edges breadth-first from the
// changed nodes, marking every reached derived node stale and advancing
// its epoch. It never recomputes anything; recomputation is deferred to
// the next read. The visited set bounds the walk to O(V+E) over the
// touched subgraph and terminates diamonds and cycles.
//
// The returned slice holds every reached node in visit order, for the
// notification pass.
func (g *Graph) propagateStaleLocked(changed []*node) []*node {
	seen := make(map[NodeID]struct{}, len(changed))
	queue := make([]*node, 0, len(changed))

	for _, n := range changed {
		seen[n.id] = struct{}{}
		queue = append(queue, n)
	}

	var reached []*node
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		for depID := range n.dependents {
			if _, ok := seen[depID]; ok {
				continue
			}
			seen[depID] = struct{}{}

			dep, ok := g.nodes[depID]
			if !ok {
				continue
			}

			g.markStaleLocked(dep)
			reached = append(reached, dep)
			queue = append(queue, dep)
		}
	}

	if len(reached) > 0 {
		g.metrics.staleMarked(len(reached))
	}
	return reached
}

// markStaleLocked transitions a node to stale and advances its epoch, so
// that any in-flight evaluation started before this moment loses.
func (g *Graph) markStaleLocked(n *node) {
	if n.status == StatusStale {
		return
	}
	n.status = StatusStale
	n.epoch++
}
