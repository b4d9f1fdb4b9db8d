package internal

import "errors"

// txn buffers primitive writes until commit. It owns no nodes, only the
// touched ids and their final values.
type txn struct {
	order  []NodeID
	values map[NodeID]any
}

func newTxn() *txn {
	return &txn{values: make(map[NodeID]any)}
}

func (t *txn) buffer(id NodeID, v any) {
	if _, ok := t.values[id]; !ok {
		t.order = append(t.order, id)
	}
	t.values[id] = v
}

// Batch runs fn with all writes buffered into one transaction, committing
// on successful return: one invalidation pass, one notification pass. If
// fn returns an error or panics, no write takes effect and nothing is
// notified. Nested calls join the outer transaction and commit once.
func (g *Graph) Batch(fn func() error) error {
	g.mu.Lock()
	if g.txn == nil {
		g.txn = newTxn()
	}
	g.txnDepth++
	g.mu.Unlock()

	err := g.runBatchFn(fn)

	g.mu.Lock()
	g.txnDepth--
	if g.txnDepth > 0 {
		g.mu.Unlock()
		return err
	}

	t := g.txn
	g.txn = nil
	if err != nil {
		g.mu.Unlock()
		g.log.Debug("transaction rolled back", "writes", len(t.order), "err", err)
		return err
	}

	cbs := g.commitLocked(t)
	g.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
	return nil
}

// runBatchFn unwinds the batch bookkeeping when fn panics, dropping the
// buffered writes before re-panicking. A panic through nested batches hits
// one of these defers per level, so each decrements exactly once.
func (g *Graph) runBatchFn(fn func() error) error {
	defer func() {
		if rec := recover(); rec != nil {
			g.mu.Lock()
			g.txnDepth--
			if g.txnDepth == 0 {
				g.txn = nil
			}
			g.mu.Unlock()
			panic(rec)
		}
	}()

	return fn()
}

// commitLocked applies the buffered writes in program order, compares each
// against the committed value under the node's equality, propagates
// staleness once from the changed set, and collects the coalesced
// notification callbacks. The callbacks must be run after the lock is
// released.
func (g *Graph) commitLocked(t *txn) []func() {
	var changed []*node
	for _, id := range t.order {
		n, ok := g.nodes[id]
		if !ok {
			continue
		}
		v := t.values[id]
		if n.equal(n.value, v) {
			continue
		}
		n.value = v
		n.version++
		changed = append(changed, n)
	}

	if len(changed) == 0 {
		return nil
	}

	reached := g.propagateStaleLocked(changed)
	g.metrics.committed()
	g.log.Debug("transaction committed", "writes", len(t.order), "changed", len(changed), "invalidated", len(reached))

	var cbs []func()
	for _, n := range changed {
		cbs = append(cbs, n.callbacks()...)
	}
	cbs = append(cbs, g.notifyReachedLocked(reached)...)
	return cbs
}

// notifyReachedLocked settles every subscribed node the invalidation pass
// reached and collects callbacks for the ones whose version moved. Lazy
// evaluation means only subscribed nodes are pulled here; everything else
// stays stale until read. Async nodes go back in flight and notify when
// they settle instead.
//
// Versions are snapshotted up front: settling one subscribed node can
// transitively settle another before the loop gets to it.
func (g *Graph) notifyReachedLocked(reached []*node) []func() {
	prev := make(map[NodeID]uint64, len(reached))
	for _, n := range reached {
		prev[n.id] = n.version
	}

	var cbs []func()
	for _, n := range reached {
		if len(n.subs) == 0 {
			continue
		}

		// an evaluation error still bumps the version, so subscribers
		// are notified of failures too and can observe them via a read
		_, err := g.ensureValidLocked(n)
		if errors.Is(err, ErrPending) {
			continue
		}
		if n.version != prev[n.id] {
			cbs = append(cbs, n.callbacks()...)
		}
	}
	return cbs
}
