// Package aggregator implements a coordinated map-reduce service embedded in a
// distributed, partitioned graph-processing engine. It lets a host engine register
// named reductions over the vertices or edges of its locally-owned graph shard and
// run those reductions either on demand (globally synchronous) or on a time-based
// schedule, delivering results to a user-supplied finalizer on every machine.
//
// The aggregator itself owns three things: a type-erased registry of heterogeneous
// reductions (see Reduction and Sum), a two-phase cross-machine combine built on top
// of a Transport collaborator, and a periodic scheduler with synchronous and
// asynchronous tick drivers. Everything else — graph partitioning, RPC, wall-clock
// time — is a collaborator the host engine supplies via the graph, transport, and
// clock packages.
package aggregator
