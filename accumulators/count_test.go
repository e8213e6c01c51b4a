package accumulators

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountIgnoresValue(t *testing.T) {
	c := Counter()().(*Count)
	c.Fold(1)
	c.Fold("anything")
	c.Fold(nil)
	require.Equal(t, uint64(3), c.GetCount())
}

func TestCountCombine(t *testing.T) {
	a := Counter()().(*Count)
	a.Fold(1)
	a.Fold(1)
	b := Counter()().(*Count)
	b.Fold(1)
	combined := a.Combine(b).(*Count)
	require.Equal(t, uint64(3), combined.GetCount())
}

func TestCountBytesRoundTrip(t *testing.T) {
	c := Counter()().(*Count)
	c.Fold(1)
	c.Fold(1)
	data, err := c.Bytes()
	require.NoError(t, err)
	decoded, err := c.FromBytes(data)
	require.NoError(t, err)
	require.Equal(t, uint64(2), decoded.(*Count).GetCount())
}
