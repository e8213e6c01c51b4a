package accumulators

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/go-sif/graggr"
)

// Compose returns a SumFactory producing a Composed accumulator that fans
// every folded value out to each of the given child factories, so several
// reductions over the same mapped value (e.g. sum and count) can share one
// registered key.
func Compose(factories ...aggregator.SumFactory) aggregator.SumFactory {
	return func() aggregator.Sum {
		children := make([]aggregator.Sum, len(factories))
		for i, f := range factories {
			children[i] = f()
		}
		return &Composed{children: children, factories: factories}
	}
}

// Composed fans a folded value out to several child Sums.
type Composed struct {
	children  []aggregator.Sum
	factories []aggregator.SumFactory
}

// Results returns the contained child Sums, so their individual results can
// be read out in a finalizer.
func (c *Composed) Results() []aggregator.Sum {
	return c.children
}

// Fold applies value to every child Sum.
func (c *Composed) Fold(value interface{}) aggregator.Sum {
	for i, child := range c.children {
		c.children[i] = child.Fold(value)
	}
	return c
}

// Combine merges another Composed's children into this one, pairwise.
func (c *Composed) Combine(o aggregator.Sum) aggregator.Sum {
	other, ok := o.(*Composed)
	if !ok {
		panic(fmt.Sprintf("accumulators: incoming sum is not a *Composed: %T", o))
	}
	for i, child := range c.children {
		c.children[i] = child.Combine(other.children[i])
	}
	return c
}

// Bytes serializes every child's snapshot into a single gob-encoded blob.
func (c *Composed) Bytes() ([]byte, error) {
	parts := make([][]byte, len(c.children))
	for i, child := range c.children {
		b, err := child.Bytes()
		if err != nil {
			return nil, err
		}
		parts[i] = b
	}
	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(parts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromBytes decodes a snapshot produced by Bytes into a new Composed.
func (c *Composed) FromBytes(data []byte) (aggregator.Sum, error) {
	var parts [][]byte
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&parts); err != nil {
		return nil, err
	}
	children := make([]aggregator.Sum, len(c.factories))
	for i, f := range c.factories {
		child, err := f().FromBytes(parts[i])
		if err != nil {
			return nil, err
		}
		children[i] = child
	}
	return &Composed{children: children, factories: c.factories}, nil
}
