package aggregator

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/go-sif/graggr/clock"
	"github.com/go-sif/graggr/graph"
	"github.com/go-sif/graggr/transport"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newAsyncTestCluster(t *testing.T, n, ncpus int) []*Aggregator {
	t.Helper()
	nodes := transport.NewLocalNetwork(n)
	mclock := clock.NewManual()
	aggs := make([]*Aggregator, n)
	for i := 0; i < n; i++ {
		g := graph.NewMemory()
		g.AddVertex(graph.NewVertex("v", i, 1))
		aggs[i] = New(Options{
			MachineID:    i,
			MachineCount: n,
			Graph:        g,
			Transport:    nodes[i],
			Clock:        mclock,
		})
	}
	return aggs
}

func waitForSchedule(t *testing.T, a *Aggregator, wantLen int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.schedule.Len() == wantLen {
			return
		}
		runtime.Gosched()
	}
	t.Fatalf("machine %d: schedule never reached length %d (stuck at %d)", a.machineID, wantLen, a.schedule.Len())
}

func TestTickAsyncDrivesOneFullCycleAcrossMachines(t *testing.T) {
	defer goleak.VerifyNone(t)
	const n, ncpus = 2, 2
	aggs := newAsyncTestCluster(t, n, ncpus)

	finalized := make(chan int, n)
	for _, a := range aggs {
		a.AddVertexReduction("k", testIntFactory(), vertexValueMap, func(ctx context.Context, s Sum) {
			if s != nil {
				finalized <- s.(*testIntSum).v
			} else {
				finalized <- 0
			}
		})
	}
	var wg sync.WaitGroup
	wg.Add(n)
	for _, a := range aggs {
		go func(a *Aggregator) {
			defer wg.Done()
			require.NoError(t, a.AggregatePeriodic(context.Background(), "k", 0))
		}(a)
	}
	wg.Wait()
	wg.Add(n)
	for _, a := range aggs {
		go func(a *Aggregator) {
			defer wg.Done()
			require.NoError(t, a.Start(context.Background(), ncpus))
		}(a)
	}
	wg.Wait()

	for _, a := range aggs {
		key, ok := a.TickAsync()
		require.True(t, ok)
		require.Equal(t, "k", key)
	}

	var cwg sync.WaitGroup
	for _, a := range aggs {
		for cpuid := 0; cpuid < ncpus; cpuid++ {
			cwg.Add(1)
			go func(a *Aggregator, cpuid int) {
				defer cwg.Done()
				require.NoError(t, a.TickAsyncCompute(context.Background(), cpuid, "k"))
			}(a, cpuid)
		}
	}
	cwg.Wait()

	for i := 0; i < n; i++ {
		v := <-finalized
		require.Equal(t, 2, v, "each machine owns one vertex valued 1, combined across both machines")
	}

	for _, a := range aggs {
		waitForSchedule(t, a, 1)
	}
}

func TestTickAsyncCountdownCorruptionPanicsOnDoubleDecrement(t *testing.T) {
	defer goleak.VerifyNone(t)
	aggs := newAsyncTestCluster(t, 1, 1)
	a := aggs[0]
	a.AddVertexReduction("k", testIntFactory(), vertexValueMap, nil)
	require.NoError(t, a.AggregatePeriodic(context.Background(), "k", 0))
	require.NoError(t, a.Start(context.Background(), 1))

	state, ok := a.asyncStates.get("k")
	require.True(t, ok)
	require.True(t, state.decrementLocal("k"))
	require.Panics(t, func() {
		state.decrementLocal("k")
	})
}
