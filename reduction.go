package aggregator

import (
	"context"
	"sync"

	"github.com/go-sif/graggr/graph"
)

// Kind distinguishes whether a Reduction scans vertices or edges.
type Kind int

const (
	// VertexReduction scans locally-owned vertices.
	VertexReduction Kind = iota
	// EdgeReduction scans in-edges of every locally-held vertex.
	EdgeReduction
)

// VertexMapFunc maps a single vertex to a raw value to be folded into a
// Reduction's Sum.
type VertexMapFunc func(ctx context.Context, v graph.Vertex) interface{}

// EdgeMapFunc maps a single edge to a raw value to be folded into a
// Reduction's Sum.
type EdgeMapFunc func(ctx context.Context, e graph.Edge) interface{}

// FinalizeFunc is invoked against a Reduction's fully-combined Sum on every
// machine, once per completed aggregation. It may be nil, in which case the
// aggregation runs without a finalizer call.
type FinalizeFunc func(ctx context.Context, sum Sum)

// Reduction is the type-erased descriptor described in the accumulator
// object component: a kind tag, a typed internal Sum, a map function, a
// finalize function, and the combine/serialize hooks the rest of the
// aggregator drives polymorphically. Once registered, kind, the map
// functions, and finalize are immutable; only sum mutates.
type Reduction struct {
	key       string
	kind      Kind
	factory   SumFactory
	mapVertex VertexMapFunc
	mapEdge   EdgeMapFunc
	finalize  FinalizeFunc

	mu  sync.Mutex
	sum Sum
}

func newVertexReduction(key string, factory SumFactory, mapFn VertexMapFunc, finalizeFn FinalizeFunc) *Reduction {
	return &Reduction{key: key, kind: VertexReduction, factory: factory, mapVertex: mapFn, finalize: finalizeFn}
}

func newEdgeReduction(key string, factory SumFactory, mapFn EdgeMapFunc, finalizeFn FinalizeFunc) *Reduction {
	return &Reduction{key: key, kind: EdgeReduction, factory: factory, mapEdge: mapFn, finalize: finalizeFn}
}

// CloneEmpty produces a new Reduction with the same kind, map functions and
// finalizer, but an empty Sum. Used to build per-thread shards and the root
// combiner for a key.
func (r *Reduction) CloneEmpty() *Reduction {
	return &Reduction{
		key:       r.key,
		kind:      r.kind,
		factory:   r.factory,
		mapVertex: r.mapVertex,
		mapEdge:   r.mapEdge,
		finalize:  r.finalize,
	}
}

// IsVertexKind reports whether this Reduction scans vertices (true) or
// edges (false).
func (r *Reduction) IsVertexKind() bool {
	return r.kind == VertexReduction
}

// MapVertex applies the map function to v and folds its result into this
// Reduction's sum. Valid only for vertex-kind reductions, and only on a
// thread-private clone — no locking is performed.
func (r *Reduction) MapVertex(ctx context.Context, v graph.Vertex) {
	if r.kind != VertexReduction {
		panic("aggregator: MapVertex called on an edge reduction")
	}
	r.sum = foldInto(r.sum, r.factory, r.mapVertex(ctx, v))
}

// MapEdge applies the map function to e and folds its result into this
// Reduction's sum. Valid only for edge-kind reductions, and only on a
// thread-private clone — no locking is performed.
func (r *Reduction) MapEdge(ctx context.Context, e graph.Edge) {
	if r.kind != EdgeReduction {
		panic("aggregator: MapEdge called on a vertex reduction")
	}
	r.sum = foldInto(r.sum, r.factory, r.mapEdge(ctx, e))
}

// ExportValue returns an opaque serialized snapshot of the current sum. A
// nil result represents the empty sum.
func (r *Reduction) ExportValue() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sum == nil {
		return nil, nil
	}
	return r.sum.Bytes()
}

// MergeFromSerialized combines a serialized sum into this one. Thread-safe.
func (r *Reduction) MergeFromSerialized(data []byte) error {
	other, err := r.decode(data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sum = combineSums(r.sum, other)
	return nil
}

// OverwriteFromSerialized replaces this Reduction's sum with x. Thread-safe.
func (r *Reduction) OverwriteFromSerialized(data []byte) error {
	other, err := r.decode(data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sum = other
	return nil
}

// MergeFrom combines another Reduction's sum (same concrete type) into this
// one. Thread-safe with respect to this Reduction; other is expected to be a
// thread-private clone no longer being mutated concurrently.
func (r *Reduction) MergeFrom(other *Reduction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sum = combineSums(r.sum, other.sum)
}

// Clear resets this Reduction's sum to empty. Thread-safe.
func (r *Reduction) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sum = nil
}

// Finalize invokes the user finalizer against the current sum. A Reduction
// registered without a finalizer does nothing here.
func (r *Reduction) Finalize(ctx context.Context) {
	if r.finalize == nil {
		return
	}
	r.mu.Lock()
	sum := r.sum
	r.mu.Unlock()
	r.finalize(ctx, sum)
}

// decode turns a serialized snapshot (possibly nil, meaning empty) into a
// Sum of this Reduction's concrete type.
func (r *Reduction) decode(data []byte) (Sum, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return r.factory().FromBytes(data)
}
