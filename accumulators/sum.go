// Package accumulators provides built-in Sum implementations: a numeric
// additive Sum, a Count, and a Composed combinator, mirroring the built-in
// accumulator set a dataframe engine ships alongside its own Accumulator
// interface.
package accumulators

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-sif/graggr"
)

// Adder returns a SumFactory producing fresh, empty Sum accumulators.
func Adder() aggregator.SumFactory {
	return func() aggregator.Sum {
		return &Sum{}
	}
}

// Sum accumulates a running float64 total.
type Sum struct {
	total float64
}

// GetSum returns the current running total.
func (s *Sum) GetSum() float64 {
	return s.total
}

// Fold adds value (expected to be a numeric type) into the running total.
func (s *Sum) Fold(value interface{}) aggregator.Sum {
	s.total += toFloat64(value)
	return s
}

// Combine adds another Sum's total into this one.
func (s *Sum) Combine(o aggregator.Sum) aggregator.Sum {
	other, ok := o.(*Sum)
	if !ok {
		panic(fmt.Sprintf("accumulators: incoming sum is not a *Sum: %T", o))
	}
	s.total += other.total
	return s
}

// Bytes serializes this Sum.
func (s *Sum) Bytes() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(s.total))
	return buf, nil
}

// FromBytes decodes a snapshot produced by Bytes into a new Sum.
func (s *Sum) FromBytes(data []byte) (aggregator.Sum, error) {
	if len(data) != 8 {
		return nil, fmt.Errorf("accumulators: Sum snapshot must be 8 bytes, got %d", len(data))
	}
	return &Sum{total: math.Float64frombits(binary.LittleEndian.Uint64(data))}, nil
}

func toFloat64(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	default:
		panic(fmt.Sprintf("accumulators: Sum cannot fold value of type %T", value))
	}
}
