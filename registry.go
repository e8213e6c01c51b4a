package aggregator

import "sync"

// Registry is a mapping from key to a single canonical Reduction
// descriptor. Keys are unique; registering a duplicate is rejected.
// Insertion order is irrelevant.
type Registry struct {
	mu         sync.RWMutex
	reductions map[string]*Reduction
}

func newRegistry() *Registry {
	return &Registry{reductions: make(map[string]*Reduction)}
}

// AddVertexReduction registers a vertex-scan reduction under key, returning
// an EmptyKeyError or DuplicateKeyError without changing state if key is
// empty or already registered.
func (r *Registry) AddVertexReduction(key string, factory SumFactory, mapFn VertexMapFunc, finalizeFn FinalizeFunc) error {
	return r.add(key, newVertexReduction(key, factory, mapFn, finalizeFn))
}

// AddEdgeReduction registers an edge-scan reduction under key, returning an
// EmptyKeyError or DuplicateKeyError without changing state if key is empty
// or already registered.
func (r *Registry) AddEdgeReduction(key string, factory SumFactory, mapFn EdgeMapFunc, finalizeFn FinalizeFunc) error {
	return r.add(key, newEdgeReduction(key, factory, mapFn, finalizeFn))
}

func (r *Registry) add(key string, red *Reduction) error {
	if key == "" {
		return EmptyKeyError{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.reductions[key]; exists {
		return DuplicateKeyError{Key: key}
	}
	r.reductions[key] = red
	return nil
}

// Get returns the Reduction registered under key, or nil if none exists.
func (r *Registry) Get(key string) *Reduction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reductions[key]
}

// MustGet returns the Reduction registered under key, panicking if key was
// never registered — the hot-path contract for AggregateNow and the async
// RPC entry points.
func (r *Registry) MustGet(key string) *Reduction {
	red := r.Get(key)
	if red == nil {
		unknownKeyPanic(key)
	}
	return red
}

// Keys returns every registered key, in no particular order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.reductions))
	for k := range r.reductions {
		keys = append(keys, k)
	}
	return keys
}

// ClearAll resets every registered Reduction's accumulator to empty,
// without unregistering any of them.
func (r *Registry) ClearAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, red := range r.reductions {
		red.Clear()
	}
}
