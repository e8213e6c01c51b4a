// Package transport defines the RPC collaborator the aggregator needs from
// a distributed engine: process identity/count, a barrier, a gather
// primitive, a broadcast primitive, and a one-way remote call. It ships one
// reference implementation (Local) built entirely from goroutines, mutexes
// and condition variables, for embedding in tests and single-process deployments; a real
// engine wires its own network-backed Transport against the same interface.
package transport

import "context"

// Handler is invoked on the receiving machine when a peer RemoteCalls it.
// from is the caller's process id; key and payload carry the aggregator key
// and serialized snapshot the call concerns.
type Handler func(ctx context.Context, from int, key string, payload []byte)

// Transport is the RPC substrate the aggregator's global combiner and
// asynchronous tick driver are built on top of.
type Transport interface {
	// ProcessID returns this machine's 0-based process id. Process 0 is the
	// coordinator.
	ProcessID() int
	// ProcessCount returns the total number of participating machines.
	ProcessCount() int
	// Barrier blocks until every machine has called Barrier for this round.
	Barrier(ctx context.Context) error
	// Gather blocks until every machine has called Gather for this round,
	// supplying data, and returns the full set of N snapshots indexed by
	// process id.
	Gather(ctx context.Context, data []byte) ([][]byte, error)
	// Broadcast blocks until every machine has called Broadcast for this
	// round. The coordinator's data argument is the value delivered to every
	// machine, including itself; non-coordinators should pass nil.
	Broadcast(ctx context.Context, data []byte) ([]byte, error)
	// RemoteCall invokes method on target with key and payload, one-way and
	// best-effort-reliable: the caller does not wait for the handler to run.
	RemoteCall(ctx context.Context, target int, method string, key string, payload []byte) error
	// RegisterHandler installs the handler this machine runs when a peer
	// RemoteCalls method against it.
	RegisterHandler(method string, handler Handler)
}
