package aggregator

import (
	"context"
	"testing"

	"github.com/go-sif/graggr/graph"
	"github.com/stretchr/testify/require"
)

func TestRegistryRejectsEmptyKey(t *testing.T) {
	r := newRegistry()
	err := r.AddVertexReduction("", testIntFactory(), nil, nil)
	require.ErrorIs(t, err, EmptyKeyError{})
	require.Nil(t, r.Get(""))
}

func TestRegistryRejectsDuplicateKeyWithoutMutatingState(t *testing.T) {
	r := newRegistry()
	mapFn := func(ctx context.Context, v graph.Vertex) interface{} { return 1 }
	require.NoError(t, r.AddVertexReduction("k", testIntFactory(), mapFn, nil))
	original := r.Get("k")

	err := r.AddEdgeReduction("k", testIntFactory(), nil, nil)
	require.Equal(t, DuplicateKeyError{Key: "k"}, err)
	require.Same(t, original, r.Get("k"), "a failed duplicate registration must leave the existing entry untouched")
}

func TestRegistryMustGetPanicsOnUnknownKey(t *testing.T) {
	r := newRegistry()
	require.Panics(t, func() {
		r.MustGet("nope")
	})
}

func TestRegistryKeys(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.AddVertexReduction("a", testIntFactory(), nil, nil))
	require.NoError(t, r.AddVertexReduction("b", testIntFactory(), nil, nil))
	keys := r.Keys()
	require.ElementsMatch(t, []string{"a", "b"}, keys)
}
