// Package graph defines the collaborator interfaces the aggregator needs
// from a partitioned graph-processing engine: iteration over a machine's
// locally-held vertices (ghost replicas included), the owner machine-id of a vertex, and iteration
// over a vertex's in-edges. The aggregator treats the partitioning layer
// itself as external and never constructs a Graph on its own.
package graph

// Vertex is a handle to a single vertex, suitable for passing into a
// VertexMapFunc. Implementations may also represent a ghost replica (a
// read-only copy of a remotely-owned vertex held locally for edge
// traversal) — Owner distinguishes these from genuinely local vertices.
type Vertex interface {
	// ID is the vertex's globally unique identifier.
	ID() string
	// Owner is the machine-id that owns this vertex.
	Owner() int
	// Value is the vertex's user-defined payload.
	Value() interface{}
}

// Edge is a handle to a single edge, suitable for passing into an
// EdgeMapFunc. Every edge is stored canonically exactly once across the
// cluster, at its target vertex.
type Edge interface {
	// ID is the edge's globally unique identifier.
	ID() string
	// Source is the ID of the edge's source vertex.
	Source() string
	// Target is the ID of the edge's target vertex, which owns the
	// canonical storage for this edge.
	Target() string
	// Value is the edge's user-defined payload.
	Value() interface{}
}

// EdgeIterator iterates over a vertex's in-edges.
type EdgeIterator interface {
	HasNext() bool
	Next() Edge
}

// Graph is the subset of a partitioned graph-processing engine's shard the
// aggregator's local reducer needs: a count of locally-held vertices,
// indexed access to them, and iteration over a vertex's in-edges.
type Graph interface {
	// NumLocalVertices returns the number of vertices held on this machine,
	// including ghost replicas.
	NumLocalVertices() int
	// LocalVertex returns the vertex at index i, 0 <= i < NumLocalVertices().
	LocalVertex(i int) Vertex
	// InEdges returns an iterator over v's in-edges, canonically stored
	// alongside v.
	InEdges(v Vertex) EdgeIterator
}
