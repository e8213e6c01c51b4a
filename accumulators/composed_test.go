package accumulators

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComposedFansOutToEveryChild(t *testing.T) {
	factory := Compose(Adder(), Counter())
	c := factory().(*Composed)
	c.Fold(2.0)
	c.Fold(3.0)

	results := c.Results()
	require.Len(t, results, 2)
	require.Equal(t, 5.0, results[0].(*Sum).GetSum())
	require.Equal(t, uint64(2), results[1].(*Count).GetCount())
}

func TestComposedCombinePairwise(t *testing.T) {
	factory := Compose(Adder(), Counter())
	a := factory().(*Composed)
	a.Fold(1.0)
	b := factory().(*Composed)
	b.Fold(2.0)

	combined := a.Combine(b).(*Composed)
	require.Equal(t, 3.0, combined.Results()[0].(*Sum).GetSum())
	require.Equal(t, uint64(2), combined.Results()[1].(*Count).GetCount())
}

func TestComposedBytesRoundTrip(t *testing.T) {
	factory := Compose(Adder(), Counter())
	c := factory().(*Composed)
	c.Fold(9.0)
	c.Fold(1.0)

	data, err := c.Bytes()
	require.NoError(t, err)
	decoded, err := c.FromBytes(data)
	require.NoError(t, err)
	results := decoded.(*Composed).Results()
	require.Equal(t, 10.0, results[0].(*Sum).GetSum())
	require.Equal(t, uint64(2), results[1].(*Count).GetCount())
}
