package internal

import (
	"reflect"

	"github.com/google/go-cmp/cmp"
)

// EqualFunc decides whether a recomputed value counts as changed. A node's
// version advances only when its equality function reports a difference.
type EqualFunc func(a, b any) bool

// EqualDefault compares comparable values with ==, which gives value
// equality for primitives and identity for pointers. Values of
// incomparable types are never considered equal.
func EqualDefault(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}

	return a == b
}

// EqualDeep compares values structurally with go-cmp. Values must be
// comparable by cmp (exported fields, or an Equal method).
func EqualDeep(a, b any) bool {
	return cmp.Equal(a, b)
}

// EqualNever reports every value as changed.
func EqualNever(a, b any) bool {
	return false
}
