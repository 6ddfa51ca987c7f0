// Package handle implements the external adapter layer's "handle-as-integer"
// pattern (spec.md's Design Note): simulators, servers, and clients are
// addressed by opaque typed identifiers backed by a process-local registry,
// never by raw pointers, so a caller can safely hold a handle past the
// lifetime of whatever it names and get a clean not-found error instead of
// a dangling reference. Grounded on agent.Registry's insertion-ordered,
// monotonically-IDed allocation pattern, generalized to any value type and
// backed by sync.Map since handles are registered and looked up from many
// goroutines (server worker pool, dashboard, CLI) with no natural owner of
// a single mutex.
package handle

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ID is an opaque handle to a value of type T, unique for the lifetime of
// the Registry[T] that issued it and never reused even after Release.
type ID[T any] uint64

func (id ID[T]) String() string { return fmt.Sprintf("handle(%d)", uint64(id)) }

// Registry issues and resolves handles for values of type T. The zero
// Registry is not usable; use NewRegistry.
type Registry[T any] struct {
	next   uint64
	values sync.Map // ID[T] -> T
}

// NewRegistry returns an empty handle registry for T.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{}
}

// Register allocates a fresh handle for v and returns it.
func (r *Registry[T]) Register(v T) ID[T] {
	id := ID[T](atomic.AddUint64(&r.next, 1))
	r.values.Store(id, v)
	return id
}

// Resolve returns the value registered under id, or false if no such handle
// exists (never issued, or already released).
func (r *Registry[T]) Resolve(id ID[T]) (T, bool) {
	v, ok := r.values.Load(id)
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Release revokes id, so a later Resolve reports not-found. Safe to call on
// an id that was never registered or already released.
func (r *Registry[T]) Release(id ID[T]) {
	r.values.Delete(id)
}
