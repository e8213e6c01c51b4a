package aggregator

import (
	"context"
	"sync"

	"github.com/go-sif/graggr/internal/alog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"
)

// TickAsync is called frequently by any worker thread. It attempts to
// acquire the schedule mutex without blocking; if it fails, or if no key is
// due, it returns ok=false ("no work"). Otherwise it pops the earliest due
// key and returns it. Each popped key is returned to exactly one caller
// across all threads on this machine.
func (a *Aggregator) TickAsync() (key string, ok bool) {
	now := a.clock.ApproxTimeSeconds()
	key, ok = a.schedule.TryPopDue(now)
	if !ok {
		return "", false
	}
	state, exists := a.asyncStates.get(key)
	if !exists {
		unknownKeyPanic(key)
	}
	state.setState(stateLocalFolding)
	return key, true
}

// TickAsyncCompute must be called exactly once per popped key by every
// worker thread cpuid in [0, ncpus) on this machine. It folds this thread's
// stride of the local graph shard into its clone for key, folds that clone
// into the root accumulator, and — if this is the last thread to finish on
// this machine — advances the key into the cross-machine merge phase.
func (a *Aggregator) TickAsyncCompute(ctx context.Context, cpuid int, key string) error {
	state, ok := a.asyncStates.get(key)
	if !ok {
		unknownKeyPanic(key)
	}
	foldLocalStride(ctx, state.threads[cpuid], a.graph, a.machineID, cpuid, state.ncpus)
	state.root.MergeFrom(state.threads[cpuid])

	if !state.decrementLocal(key) {
		return nil
	}
	for i := range state.threads {
		state.threads[i] = state.threads[i].CloneEmpty()
	}
	state.resetLocal()

	if a.machineID == 0 {
		return a.decrementDistributedCoordinator(ctx, key, state)
	}
	snapshot, err := state.root.ExportValue()
	if err != nil {
		return err
	}
	state.root.Clear()
	wire, err := compressSnapshot(snapshot)
	if err != nil {
		return err
	}
	return a.transport.RemoteCall(ctx, 0, methodMergeFromPeer, key, wire)
}

// decrementDistributedCoordinator is the coordinator's merge step
// (decrement_distributed): it atomically decrements the distributed
// countdown, and when it reaches zero, snapshots the combined sum, resets
// the countdown for reuse by the finalize-acknowledge phase, dispatches
// perform_finalize to every non-coordinator machine, finalizes locally, and
// signals its own completion of the finalize phase.
func (a *Aggregator) decrementDistributedCoordinator(ctx context.Context, key string, state *asyncKeyState) error {
	state.setState(stateAwaitingPeers)
	remaining, done := state.decrementDistributed(key)
	a.logger.Logf(alog.InfoLevel, "Distributed Aggregation of %s. %d remaining.", key, remaining)
	if !done {
		return nil
	}
	a.logger.Logf(alog.InfoLevel, "Aggregate completion of %s", key)

	combined, err := state.root.ExportValue()
	if err != nil {
		return err
	}
	state.resetDistributed()
	state.setState(stateFinalizing)

	wire, err := compressSnapshot(combined)
	if err != nil {
		return err
	}
	if err := a.fanOutRemoteCall(ctx, methodPerformFinalize, key, wire, maxConcurrentFinalizeRPCs); err != nil {
		return err
	}

	state.root.Finalize(ctx)
	state.root.Clear()
	return a.finalizeAck(ctx, key, state)
}

// finalizeAck is the finalize-acknowledge step: the coordinator decrements
// the distributed countdown a second time (reused from the peer-fold
// barrier); when it reaches zero, it resets it, computes the next fire
// time, and RPC-calls schedule_key on every machine including itself.
func (a *Aggregator) finalizeAck(ctx context.Context, key string, state *asyncKeyState) error {
	_, done := state.decrementDistributed(key)
	if !done {
		return nil
	}
	state.resetDistributed()

	period, _ := a.periods.Get(key)
	nextTime := a.clock.ApproxTimeSeconds() + period
	a.logger.Logf(alog.InfoLevel, "%d: Reschedule of %s at %v", a.machineID, key, nextTime)
	wire := encodeFloat64(nextTime)
	return a.fanOutScheduleKey(ctx, key, wire)
}

// fanOutRemoteCall invokes method against every non-coordinator machine
// concurrently, bounded by a semaphore, aggregating any errors.
func (a *Aggregator) fanOutRemoteCall(ctx context.Context, method, key string, payload []byte, maxConcurrent int) error {
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	var wg sync.WaitGroup
	errCh := make(chan error, a.machineCount)
	for target := 1; target < a.machineCount; target++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			errCh <- err
			continue
		}
		wg.Add(1)
		go func(target int) {
			defer wg.Done()
			defer sem.Release(1)
			if err := a.transport.RemoteCall(ctx, target, method, key, payload); err != nil {
				errCh <- err
			}
		}(target)
	}
	wg.Wait()
	close(errCh)
	return drainErrors(errCh)
}

// fanOutScheduleKey RPC-calls schedule_key on every machine, including the
// coordinator itself.
func (a *Aggregator) fanOutScheduleKey(ctx context.Context, key string, payload []byte) error {
	var wg sync.WaitGroup
	errCh := make(chan error, a.machineCount)
	for target := 0; target < a.machineCount; target++ {
		wg.Add(1)
		go func(target int) {
			defer wg.Done()
			if err := a.transport.RemoteCall(ctx, target, methodScheduleKey, key, payload); err != nil {
				errCh <- err
			}
		}(target)
	}
	wg.Wait()
	close(errCh)
	return drainErrors(errCh)
}

func drainErrors(errCh <-chan error) error {
	var merged error
	for err := range errCh {
		merged = multierror.Append(merged, err)
	}
	return merged
}

// handleMergeFromPeer is the merge_from_peer RPC entry point, run on the
// coordinator: it merges a peer's exported snapshot into the key's root
// accumulator, then advances the distributed countdown.
func (a *Aggregator) handleMergeFromPeer(ctx context.Context, from int, key string, payload []byte) {
	state, ok := a.asyncStates.get(key)
	if !ok {
		unknownKeyPanic(key)
	}
	snapshot, err := decompressSnapshot(payload)
	if err != nil {
		a.logger.Logf(alog.ErrorLevel, "merge_from_peer: decompress from machine %d for key %q failed: %v", from, key, err)
		return
	}
	if err := state.root.MergeFromSerialized(snapshot); err != nil {
		a.logger.Logf(alog.ErrorLevel, "merge_from_peer: merge from machine %d for key %q failed: %v", from, key, err)
		return
	}
	if err := a.decrementDistributedCoordinator(ctx, key, state); err != nil {
		a.logger.Logf(alog.ErrorLevel, "merge_from_peer: coordinator merge step for key %q failed: %v", key, err)
	}
}

// handlePerformFinalize is the perform_finalize RPC entry point, run on a
// non-coordinator: it overwrites the root accumulator with the coordinator's
// combined snapshot, runs the finalizer, clears, and acknowledges.
func (a *Aggregator) handlePerformFinalize(ctx context.Context, from int, key string, payload []byte) {
	state, ok := a.asyncStates.get(key)
	if !ok {
		unknownKeyPanic(key)
	}
	snapshot, err := decompressSnapshot(payload)
	if err != nil {
		a.logger.Logf(alog.ErrorLevel, "perform_finalize: decompress for key %q failed: %v", key, err)
		return
	}
	if err := state.root.OverwriteFromSerialized(snapshot); err != nil {
		a.logger.Logf(alog.ErrorLevel, "perform_finalize: overwrite for key %q failed: %v", key, err)
		return
	}
	state.root.Finalize(ctx)
	state.root.Clear()
	state.setState(stateIdle)
	if err := a.transport.RemoteCall(ctx, 0, methodFinalizeAck, key, nil); err != nil {
		a.logger.Logf(alog.ErrorLevel, "perform_finalize: ack for key %q failed: %v", key, err)
	}
}

// handleFinalizeAck is the finalize_ack RPC entry point, run on the
// coordinator.
func (a *Aggregator) handleFinalizeAck(ctx context.Context, from int, key string, payload []byte) {
	state, ok := a.asyncStates.get(key)
	if !ok {
		unknownKeyPanic(key)
	}
	if err := a.finalizeAck(ctx, key, state); err != nil {
		a.logger.Logf(alog.ErrorLevel, "finalize_ack: for key %q failed: %v", key, err)
	}
}

// handleScheduleKey is the schedule_key RPC entry point, run on every
// machine: it re-inserts key into the local schedule at the coordinator's
// computed next fire-time.
func (a *Aggregator) handleScheduleKey(ctx context.Context, from int, key string, payload []byte) {
	nextTime := decodeFloat64(payload)
	a.schedule.Push(key, nextTime)
	if state, ok := a.asyncStates.get(key); ok {
		state.setState(stateIdle)
	}
}
