package aggregator

import "encoding/binary"

// testIntSum is a minimal Sum used by this package's white-box tests, kept
// separate from the accumulators package to avoid a test-only import cycle
// (accumulators imports this package).
type testIntSum struct {
	v int
}

func (s *testIntSum) Fold(value interface{}) Sum {
	s.v += value.(int)
	return s
}

func (s *testIntSum) Combine(o Sum) Sum {
	s.v += o.(*testIntSum).v
	return s
}

func (s *testIntSum) Bytes() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(s.v))
	return buf, nil
}

func (s *testIntSum) FromBytes(data []byte) (Sum, error) {
	return &testIntSum{v: int(binary.LittleEndian.Uint64(data))}, nil
}

func testIntFactory() SumFactory {
	return func() Sum { return &testIntSum{} }
}
