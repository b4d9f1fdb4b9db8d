package internal

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownNode is returned when an operation references a node id
	// that was disposed or never registered.
	ErrUnknownNode = errors.New("weft: unknown node")

	// ErrNotWritable is returned when writing to a derived node that has
	// no setter.
	ErrNotWritable = errors.New("weft: node is not writable")

	// ErrHasDependents is returned by a non-forced dispose of a node that
	// other nodes still depend on.
	ErrHasDependents = errors.New("weft: node has dependents")

	// ErrPending is returned when reading an async derived node whose
	// evaluation is still in flight.
	ErrPending = errors.New("weft: computation pending")
)

// ComputeError wraps a failure produced by a node's compute function. It is
// cached as the node's state and returned to every read until a later
// successful recomputation replaces it.
type ComputeError struct {
	Node NodeID
	Err  error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("weft: compute failed for node %d: %v", e.Node, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

// CycleError is returned when a node transitively reads itself during its
// own evaluation. Path holds the ids along the cycle, ending where it began.
type CycleError struct {
	Path []NodeID
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return "weft: cyclic dependency: " + strings.Join(parts, " -> ")
}

// pendingError is the concrete error behind ErrPending. It carries the
// in-flight evaluation that caused the read to come up pending, so waiters
// can block on its settle channel instead of polling.
type pendingError struct {
	ch <-chan struct{}
	fl *flightState
}

func (e *pendingError) Error() string { return ErrPending.Error() }

func (e *pendingError) Is(target error) bool { return target == ErrPending }
