package aggregator

import (
	"context"
	"sort"
	"time"
)

// AggregateNow runs the local reducer and global combiner (components C and
// D) for key without consulting the schedule. Collective: every machine
// must call with the same key, in the same order; the operation is a
// collective barrier in effect, since combineAndFinalize blocks on Gather
// and Broadcast.
func (a *Aggregator) AggregateNow(ctx context.Context, key string) error {
	proto := a.registry.MustGet(key)
	start := time.Now()
	working := reduceLocal(ctx, proto, a.graph, a.machineID, a.ncpusOrOne())
	if err := combineAndFinalize(ctx, working, a.transport); err != nil {
		return err
	}
	a.statsTracker.RecordTick(key, time.Since(start).Nanoseconds())
	return nil
}

// AggregateAllPeriodic invokes AggregateNow for every periodic key, in
// sorted key order so every machine runs them in the same order. Used by the
// engine at startup to prime finalizers.
func (a *Aggregator) AggregateAllPeriodic(ctx context.Context) error {
	keys := a.ListPeriodicKeys()
	sort.Strings(keys)
	for _, key := range keys {
		if err := a.AggregateNow(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// TickSync is the synchronous tick driver (component F). It must be invoked
// by exactly one thread per machine, in lockstep, at a cadence chosen by
// the engine. Every due key is collected first and fired exactly once, so a
// period-0 key (always due) cannot re-fire within the same tick even though
// its rearmed fire-time equals "now" — the schedule mutates only after the
// due-list for this tick has already been captured.
func (a *Aggregator) TickSync(ctx context.Context) error {
	var localNow []byte
	if a.machineID == 0 {
		localNow = encodeFloat64(a.clock.ApproxTimeSeconds())
	}
	nowWire, err := a.transport.Broadcast(ctx, localNow)
	if err != nil {
		return err
	}
	now := decodeFloat64(nowWire)

	var due []string
	for {
		_, fireAt, ok := a.schedule.PeekMin()
		if !ok || fireAt > now {
			break
		}
		key, _, _ := a.schedule.PopMin()
		due = append(due, key)
	}

	for _, key := range due {
		if err := a.AggregateNow(ctx, key); err != nil {
			return err
		}
		period, _ := a.periods.Get(key)
		// The coordinator computes the canonical next fire-time and
		// broadcasts it; non-coordinators' own now+period is never used —
		// the broadcast value always wins.
		var nextLocal []byte
		if a.machineID == 0 {
			nextLocal = encodeFloat64(now + period)
		}
		nextWire, err := a.transport.Broadcast(ctx, nextLocal)
		if err != nil {
			return err
		}
		a.schedule.Push(key, decodeFloat64(nextWire))
	}
	a.statsTracker.SetScheduleDepth(a.schedule.Len())
	return nil
}

// ncpusOrOne returns the configured thread count for the local reducer, or
// 1 if Start has not been called with a positive ncpus (AggregateNow and
// the synchronous driver are usable as soon as reductions are registered,
// independent of whether the async driver's ncpus has been armed).
func (a *Aggregator) ncpusOrOne() int {
	if a.ncpus > 0 {
		return a.ncpus
	}
	return 1
}
