package accumulators

import (
	"encoding/binary"
	"fmt"

	"github.com/go-sif/graggr"
)

// Counter returns a SumFactory producing fresh, empty Count accumulators.
func Counter() aggregator.SumFactory {
	return func() aggregator.Sum {
		return &Count{}
	}
}

// Count counts folded elements, ignoring their value.
type Count struct {
	count uint64
}

// GetCount returns the current count.
func (c *Count) GetCount() uint64 {
	return c.count
}

// Fold increments the count by one, regardless of value.
func (c *Count) Fold(value interface{}) aggregator.Sum {
	c.count++
	return c
}

// Combine adds another Count's total into this one.
func (c *Count) Combine(o aggregator.Sum) aggregator.Sum {
	other, ok := o.(*Count)
	if !ok {
		panic(fmt.Sprintf("accumulators: incoming sum is not a *Count: %T", o))
	}
	c.count += other.count
	return c
}

// Bytes serializes this Count.
func (c *Count) Bytes() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, c.count)
	return buf, nil
}

// FromBytes decodes a snapshot produced by Bytes into a new Count.
func (c *Count) FromBytes(data []byte) (aggregator.Sum, error) {
	if len(data) != 8 {
		return nil, fmt.Errorf("accumulators: Count snapshot must be 8 bytes, got %d", len(data))
	}
	return &Count{count: binary.LittleEndian.Uint64(data)}, nil
}
