package aggregator

import (
	"container/heap"
	"sync"
)

// scheduleEntry is one (key, next-fire-time) pair tracked by Schedule.
type scheduleEntry struct {
	key    string
	fireAt float64
}

// scheduleHeap is a min-heap of scheduleEntry ordered by fireAt, implementing
// container/heap.Interface. A native min-heap primitive is available in the
// standard library, so there is no need to negate times for a max-heap.
type scheduleHeap []*scheduleEntry

func (h scheduleHeap) Len() int            { return len(h) }
func (h scheduleHeap) Less(i, j int) bool  { return h[i].fireAt < h[j].fireAt }
func (h scheduleHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scheduleHeap) Push(x interface{}) { *h = append(*h, x.(*scheduleEntry)) }
func (h *scheduleHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Schedule is a min-ordered priority structure over (key, next-fire-time).
// Concurrent access is serialized by a single mutex; schedule operations are
// infrequent relative to graph work.
type Schedule struct {
	mu sync.Mutex
	h  scheduleHeap
}

func newSchedule() *Schedule {
	return &Schedule{}
}

// Push inserts (key, fireAt) into the schedule.
func (s *Schedule) Push(key string, fireAt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.h, &scheduleEntry{key: key, fireAt: fireAt})
}

// PeekMin returns the earliest (key, fireAt) without removing it.
func (s *Schedule) PeekMin() (key string, fireAt float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.h) == 0 {
		return "", 0, false
	}
	return s.h[0].key, s.h[0].fireAt, true
}

// PopMin removes and returns the earliest (key, fireAt).
func (s *Schedule) PopMin() (key string, fireAt float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.h) == 0 {
		return "", 0, false
	}
	e := heap.Pop(&s.h).(*scheduleEntry)
	return e.key, e.fireAt, true
}

// TryPopDue attempts to acquire the schedule's mutex without blocking; if it
// fails, it returns ok=false immediately (the caller should treat this as
// "no work", per the asynchronous driver's non-blocking try-lock contract).
// Otherwise it pops and returns the earliest key iff its fire time is <= now.
func (s *Schedule) TryPopDue(now float64) (key string, ok bool) {
	if !s.mu.TryLock() {
		return "", false
	}
	defer s.mu.Unlock()
	if len(s.h) == 0 || s.h[0].fireAt > now {
		return "", false
	}
	e := heap.Pop(&s.h).(*scheduleEntry)
	return e.key, true
}

// Len returns the number of entries currently scheduled.
func (s *Schedule) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.h)
}

// Clear empties the schedule.
func (s *Schedule) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h = nil
}
