package endpoint

import "sync/atomic"

// Registry holds the current endpoint set. Readers take a consistent
// snapshot; updates replace the whole set atomically, so a packet that is
// mid-pipeline keeps seeing the snapshot it started with.
type Registry struct {
	set atomic.Pointer[Set]
}

// NewRegistry returns a registry initialized with set.
func NewRegistry(set *Set) *Registry {
	r := &Registry{}
	r.set.Store(set)
	return r
}

// Snapshot returns the current endpoint set. The returned set is
// immutable and stays valid even if Store replaces it concurrently.
func (r *Registry) Snapshot() *Set {
	return r.set.Load()
}

// Store replaces the current endpoint set.
func (r *Registry) Store(set *Set) {
	r.set.Store(set)
}
