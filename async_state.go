package aggregator

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Async key state machine states (spec §4.G "State machine per key").
const (
	stateIdle int32 = iota
	stateLocalFolding
	stateAwaitingPeers
	stateFinalizing
)

// asyncKeyState is the per-periodic-key state materialized by Start when
// ncpus > 0: a root accumulator, one per-thread clone, a local countdown
// initialized to ncpus, and a distributed countdown initialized to the
// machine count. The distributed countdown is authoritative only on the
// coordinator machine.
type asyncKeyState struct {
	root    *Reduction
	threads []*Reduction

	localCountdown int32 // atomic; bounds [0, ncpus]
	distCountdown  int32 // atomic; bounds [0, numProcs]; coordinator-authoritative
	state          int32 // atomic; stateIdle .. stateFinalizing

	ncpus    int
	numProcs int
}

func newAsyncKeyState(proto *Reduction, ncpus, numProcs int) *asyncKeyState {
	threads := make([]*Reduction, ncpus)
	for i := range threads {
		threads[i] = proto.CloneEmpty()
	}
	return &asyncKeyState{
		root:           proto.CloneEmpty(),
		threads:        threads,
		localCountdown: int32(ncpus),
		distCountdown:  int32(numProcs),
		state:          stateIdle,
		ncpus:          ncpus,
		numProcs:       numProcs,
	}
}

// decrementLocal atomically decrements the local countdown for key,
// returning true iff this call drove it to zero. A negative result
// indicates a double-decrement and is a corruption fatal.
func (s *asyncKeyState) decrementLocal(key string) bool {
	v := atomic.AddInt32(&s.localCountdown, -1)
	if v < 0 {
		countdownCorruptionPanic("local", key, int(v))
	}
	return v == 0
}

func (s *asyncKeyState) resetLocal() {
	atomic.StoreInt32(&s.localCountdown, int32(s.ncpus))
}

// decrementDistributed atomically decrements the distributed countdown for
// key, returning the post-decrement value and whether this call drove it to
// zero.
func (s *asyncKeyState) decrementDistributed(key string) (remaining int32, done bool) {
	v := atomic.AddInt32(&s.distCountdown, -1)
	if v < 0 {
		countdownCorruptionPanic("distributed", key, int(v))
	}
	return v, v == 0
}

func (s *asyncKeyState) resetDistributed() {
	atomic.StoreInt32(&s.distCountdown, int32(s.numProcs))
}

func (s *asyncKeyState) setState(v int32) { atomic.StoreInt32(&s.state, v) }
func (s *asyncKeyState) getState() int32  { return atomic.LoadInt32(&s.state) }

// asyncShardCount is the number of lock stripes the async state table is
// split across, so unrelated periodic keys don't contend on one mutex.
const asyncShardCount = 32

type asyncStateShard struct {
	mu sync.Mutex
	m  map[string]*asyncKeyState
}

// asyncStateTable is a sharded map from key to asyncKeyState, sharded by
// xxhash of the key to spread contention across unrelated keys (isolation
// across keys, spec §8).
type asyncStateTable struct {
	shards [asyncShardCount]asyncStateShard
}

func newAsyncStateTable() *asyncStateTable {
	t := &asyncStateTable{}
	for i := range t.shards {
		t.shards[i].m = make(map[string]*asyncKeyState)
	}
	return t
}

func (t *asyncStateTable) shardFor(key string) *asyncStateShard {
	idx := xxhash.Sum64String(key) % asyncShardCount
	return &t.shards[idx]
}

func (t *asyncStateTable) get(key string) (*asyncKeyState, bool) {
	sh := t.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.m[key]
	return s, ok
}

func (t *asyncStateTable) materialize(key string, proto *Reduction, ncpus, numProcs int) {
	sh := t.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.m[key] = newAsyncKeyState(proto, ncpus, numProcs)
}

func (t *asyncStateTable) clear() {
	for i := range t.shards {
		t.shards[i].mu.Lock()
		t.shards[i].m = make(map[string]*asyncKeyState)
		t.shards[i].mu.Unlock()
	}
}
