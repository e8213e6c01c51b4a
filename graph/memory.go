package graph

// MemoryVertex is a simple in-memory Vertex.
type MemoryVertex struct {
	id    string
	owner int
	value interface{}
}

// NewVertex builds a MemoryVertex owned by machine owner, carrying value.
func NewVertex(id string, owner int, value interface{}) *MemoryVertex {
	return &MemoryVertex{id: id, owner: owner, value: value}
}

// ID returns this vertex's identifier.
func (v *MemoryVertex) ID() string { return v.id }

// Owner returns the machine-id that owns this vertex.
func (v *MemoryVertex) Owner() int { return v.owner }

// Value returns this vertex's payload.
func (v *MemoryVertex) Value() interface{} { return v.value }

// MemoryEdge is a simple in-memory Edge, canonically stored at its target.
type MemoryEdge struct {
	id     string
	source string
	target string
	value  interface{}
}

// NewEdge builds a MemoryEdge from source to target, carrying value.
func NewEdge(id, source, target string, value interface{}) *MemoryEdge {
	return &MemoryEdge{id: id, source: source, target: target, value: value}
}

// ID returns this edge's identifier.
func (e *MemoryEdge) ID() string { return e.id }

// Source returns the ID of this edge's source vertex.
func (e *MemoryEdge) Source() string { return e.source }

// Target returns the ID of this edge's target vertex.
func (e *MemoryEdge) Target() string { return e.target }

// Value returns this edge's payload.
func (e *MemoryEdge) Value() interface{} { return e.value }

// edgeIterator is the EdgeIterator returned by Memory.InEdges.
type edgeIterator struct {
	edges []Edge
	pos   int
}

func (it *edgeIterator) HasNext() bool { return it.pos < len(it.edges) }

func (it *edgeIterator) Next() Edge {
	e := it.edges[it.pos]
	it.pos++
	return e
}

// Memory is a reference, in-memory Graph implementation: every edge is
// indexed by its target vertex ID, matching the rule that each edge is
// stored exactly once across the cluster, at its target.
type Memory struct {
	vertices []Vertex
	inEdges  map[string][]Edge
}

// NewMemory builds an empty in-memory Graph.
func NewMemory() *Memory {
	return &Memory{inEdges: make(map[string][]Edge)}
}

// AddVertex adds v to this machine's local vertex set, including ghost
// replicas (vertices whose Owner is a different machine).
func (m *Memory) AddVertex(v Vertex) {
	m.vertices = append(m.vertices, v)
}

// AddEdge stores e at its target vertex, the edge's canonical home.
func (m *Memory) AddEdge(e Edge) {
	m.inEdges[e.Target()] = append(m.inEdges[e.Target()], e)
}

// NumLocalVertices returns the number of vertices held on this machine.
func (m *Memory) NumLocalVertices() int {
	return len(m.vertices)
}

// LocalVertex returns the vertex at index i.
func (m *Memory) LocalVertex(i int) Vertex {
	return m.vertices[i]
}

// InEdges returns an iterator over v's in-edges.
func (m *Memory) InEdges(v Vertex) EdgeIterator {
	return &edgeIterator{edges: m.inEdges[v.ID()]}
}
