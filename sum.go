package aggregator

// Sum is the type-erased, conditionally-additive internal value carried by a
// Reduction. A nil Sum represents the "empty" state, distinct from any
// concrete zero value of the element type it eventually holds; this lets a
// Reduction skip constructing a zero-of-T until the first element actually
// arrives, and lets combine absorb an empty peer without special-casing the
// concrete type.
//
// Concrete implementations (accumulators.Sum, accumulators.Count, ...) are
// free to choose whatever element type they fold over; the aggregator never
// inspects it.
type Sum interface {
	// Fold applies a single mapped element into this sum and returns the
	// resulting sum. Implementations may mutate and return themselves.
	Fold(value interface{}) Sum
	// Combine merges another Sum of the same concrete type into this one and
	// returns the result. Combine is never called with a nil argument; empty
	// absorption is handled by combineSums below.
	Combine(other Sum) Sum
	// Bytes serializes this sum into an opaque snapshot for transport.
	Bytes() ([]byte, error)
	// FromBytes decodes a snapshot produced by Bytes into a new Sum of this
	// concrete type. Called on an existing instance purely to recover its
	// concrete type; the receiver's own state is not consulted.
	FromBytes(data []byte) (Sum, error)
}

// SumFactory produces a fresh, empty instance of a concrete Sum type. A
// Reduction is registered with one of these so that clone_empty() and
// deserialization have something to instantiate.
type SumFactory func() Sum

// foldInto applies value to sum, lazily instantiating an empty sum via
// factory on first use: an empty (nil) sum has no instance to fold into yet,
// so factory supplies a fresh one and value is folded into it.
func foldInto(sum Sum, factory SumFactory, value interface{}) Sum {
	if sum == nil {
		sum = factory()
	}
	return sum.Fold(value)
}

// combineSums implements Empty ⊕ x = x, x ⊕ Empty = x, Value(a) ⊕ Value(b) =
// Value(a.Combine(b)).
func combineSums(a, b Sum) Sum {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return a.Combine(b)
}
