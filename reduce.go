package aggregator

import (
	"context"
	"sync"

	"github.com/go-sif/graggr/graph"
)

// foldLocalVertexStride folds cpuid's stride of locally-owned vertices
// (indices cpuid, cpuid+ncpus, cpuid+2*ncpus, ...) into clone. Vertices
// owned by a different machine are ghost replicas and are skipped — this
// owner filter is the mechanism that avoids double-counting them.
func foldLocalVertexStride(ctx context.Context, clone *Reduction, g graph.Graph, machineID, cpuid, ncpus int) {
	n := g.NumLocalVertices()
	for i := cpuid; i < n; i += ncpus {
		v := g.LocalVertex(i)
		if v.Owner() != machineID {
			continue
		}
		clone.MapVertex(ctx, v)
	}
}

// foldLocalEdgeStride folds the in-edges of cpuid's stride of locally-held
// vertices into clone. Every edge is stored canonically exactly once across
// the cluster, at its target, so visiting the in-edges of every locally-held
// vertex (not just locally-owned ones) visits each edge exactly once
// globally.
func foldLocalEdgeStride(ctx context.Context, clone *Reduction, g graph.Graph, cpuid, ncpus int) {
	n := g.NumLocalVertices()
	for i := cpuid; i < n; i += ncpus {
		v := g.LocalVertex(i)
		it := g.InEdges(v)
		for it.HasNext() {
			clone.MapEdge(ctx, it.Next())
		}
	}
}

// foldLocalStride folds cpuid's stride of the local graph shard into clone,
// dispatching on clone's kind.
func foldLocalStride(ctx context.Context, clone *Reduction, g graph.Graph, machineID, cpuid, ncpus int) {
	if clone.IsVertexKind() {
		foldLocalVertexStride(ctx, clone, g, machineID, cpuid, ncpus)
	} else {
		foldLocalEdgeStride(ctx, clone, g, cpuid, ncpus)
	}
}

// reduceLocal is the local reducer (component C): it creates one empty clone
// per worker thread, folds each thread's stride of the local graph shard
// into its clone in parallel, then folds every clone into a fresh shared
// result under mutual exclusion. An empty partition (ncpus strides that
// visit nothing) still produces a valid empty-sum result.
func reduceLocal(ctx context.Context, proto *Reduction, g graph.Graph, machineID, ncpus int) *Reduction {
	result := proto.CloneEmpty()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wg.Add(ncpus)
	for cpuid := 0; cpuid < ncpus; cpuid++ {
		go func(cpuid int) {
			defer wg.Done()
			clone := proto.CloneEmpty()
			foldLocalStride(ctx, clone, g, machineID, cpuid, ncpus)
			mu.Lock()
			result.MergeFrom(clone)
			mu.Unlock()
		}(cpuid)
	}
	wg.Wait()
	return result
}
