package transport

import (
	"context"
	"fmt"
	"sync"
)

// rendezvous is a reusable, generation-counted barrier serving Barrier,
// Gather, and Broadcast alike: every participant contributes a byte slice
// for its slot, and the last arriver publishes the full slot set and wakes
// everyone else. Reuse across rounds is safe because a round cannot
// complete until every participant of the prior round has already read its
// published result and returned from arrive.
type rendezvous struct {
	mu         sync.Mutex
	cond       *sync.Cond
	n          int
	count      int
	generation int
	slots      [][]byte
	published  [][]byte
}

func newRendezvous(n int) *rendezvous {
	r := &rendezvous{n: n, slots: make([][]byte, n)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *rendezvous) arrive(slot int, data []byte) [][]byte {
	r.mu.Lock()
	gen := r.generation
	r.slots[slot] = data
	r.count++
	if r.count == r.n {
		published := make([][]byte, r.n)
		copy(published, r.slots)
		r.published = published
		r.count = 0
		r.generation++
		r.cond.Broadcast()
		r.mu.Unlock()
		return published
	}
	for r.generation == gen {
		r.cond.Wait()
	}
	result := r.published
	r.mu.Unlock()
	return result
}

// network is the shared state a LocalNetwork's member Transports rendezvous
// through.
type network struct {
	n         int
	barrier   *rendezvous
	gather    *rendezvous
	broadcast *rendezvous

	mu     sync.Mutex
	nodes  []*Local
}

// NewLocalNetwork builds n in-process Transports that can Barrier, Gather,
// Broadcast, and RemoteCall against each other, the same technique the
// teacher's local test harness uses to stand up a throwaway cluster inside
// a test binary.
func NewLocalNetwork(n int) []*Local {
	net := &network{
		n:         n,
		barrier:   newRendezvous(n),
		gather:    newRendezvous(n),
		broadcast: newRendezvous(n),
	}
	net.nodes = make([]*Local, n)
	for i := 0; i < n; i++ {
		net.nodes[i] = &Local{
			id:       i,
			net:      net,
			handlers: make(map[string]Handler),
		}
	}
	return net.nodes
}

// Local is an in-process reference Transport implementation.
type Local struct {
	id  int
	net *network

	mu       sync.Mutex
	handlers map[string]Handler
}

// ProcessID returns this node's process id.
func (l *Local) ProcessID() int { return l.id }

// ProcessCount returns the number of nodes in this local network.
func (l *Local) ProcessCount() int { return l.net.n }

// Barrier blocks until every node in this local network has called Barrier.
func (l *Local) Barrier(ctx context.Context) error {
	l.net.barrier.arrive(l.id, nil)
	return ctx.Err()
}

// Gather blocks until every node has called Gather, returning all N
// snapshots indexed by process id.
func (l *Local) Gather(ctx context.Context, data []byte) ([][]byte, error) {
	result := l.net.gather.arrive(l.id, data)
	return result, ctx.Err()
}

// Broadcast blocks until every node has called Broadcast, returning the
// coordinator's (process 0) data to every caller including itself.
func (l *Local) Broadcast(ctx context.Context, data []byte) ([]byte, error) {
	slots := l.net.broadcast.arrive(l.id, data)
	return slots[0], ctx.Err()
}

// RemoteCall dispatches method against target's registered handler in a new
// goroutine, fire-and-forget.
func (l *Local) RemoteCall(ctx context.Context, target int, method string, key string, payload []byte) error {
	if target < 0 || target >= l.net.n {
		return fmt.Errorf("transport: target %d out of range [0,%d)", target, l.net.n)
	}
	peer := l.net.nodes[target]
	peer.mu.Lock()
	handler, ok := peer.handlers[method]
	peer.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: node %d has no handler registered for %q", target, method)
	}
	from := l.id
	go handler(ctx, from, key, payload)
	return nil
}

// RegisterHandler installs the handler this node runs when RemoteCalled for
// method.
func (l *Local) RegisterHandler(method string, handler Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[method] = handler
}
