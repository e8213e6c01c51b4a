package aggregator

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/pierrec/lz4"
)

// encodeFloat64 encodes a float64 for transport, used for the small control
// values (wall-clock readings, next-fire times) the tick drivers broadcast
// alongside snapshots.
func encodeFloat64(v float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

// decodeFloat64 reverses encodeFloat64.
func decodeFloat64(data []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(data))
}

// compressSnapshot lz4-compresses a serialized Sum snapshot before it
// crosses the transport boundary (Gather, Broadcast, RemoteCall), mirroring
// a host engine's own partition-compression step at its transport boundary.
// A nil/empty snapshot (the empty sum) passes through uncompressed.
func compressSnapshot(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	buf := new(bytes.Buffer)
	w := lz4.NewWriter(buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decompressSnapshot reverses compressSnapshot.
func decompressSnapshot(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	r := lz4.NewReader(bytes.NewReader(data))
	out := new(bytes.Buffer)
	if _, err := io.Copy(out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
