package aggregator

import (
	"context"
	"sync"

	"github.com/go-sif/graggr/clock"
	"github.com/go-sif/graggr/graph"
	"github.com/go-sif/graggr/internal/alog"
	"github.com/go-sif/graggr/internal/stats"
	"github.com/go-sif/graggr/transport"
	"github.com/gofrs/uuid"
)

// RPC method names the asynchronous tick driver registers against its
// Transport. These are the wire-level analogue of the spec's
// merge_from_peer / perform_finalize / schedule_key entry points, plus the
// finalize acknowledgement RemoteCall that drives the coordinator's second
// use of the distributed countdown.
const (
	methodMergeFromPeer   = "merge_from_peer"
	methodPerformFinalize = "perform_finalize"
	methodFinalizeAck     = "finalize_ack"
	methodScheduleKey     = "schedule_key"
)

// maxConcurrentFinalizeRPCs bounds how many perform_finalize calls the
// coordinator has in flight at once during the async finalize-dispatch
// fan-out.
const maxConcurrentFinalizeRPCs = 8

// Options configures an Aggregator.
type Options struct {
	// MachineID is this process's 0-based id. Machine 0 is the coordinator.
	MachineID int
	// MachineCount is the total number of participating machines.
	MachineCount int
	// Graph is the local graph-partitioning collaborator.
	Graph graph.Graph
	// Transport is the RPC collaborator.
	Transport transport.Transport
	// Clock is the wall-clock collaborator. If nil, a real clock is used.
	Clock clock.Clock
	// Logger receives diagnostic output. If nil, a default logger at
	// InfoLevel is used.
	Logger *alog.Logger
	// InstanceID tags this Aggregator's log lines, for distinguishing
	// machines sharing one process's stderr (as in tests built on
	// transport.NewLocalNetwork). If empty, a fresh UUID is generated.
	InstanceID string
}

// Aggregator is the coordinated map-reduce service: a type-erased registry
// of reductions (Registry), a two-phase cross-machine combiner built on
// Transport, and a periodic scheduler with synchronous and asynchronous
// tick drivers.
type Aggregator struct {
	machineID    int
	machineCount int
	instanceID   string
	graph        graph.Graph
	transport    transport.Transport
	clock        clock.Clock
	logger       *alog.Logger

	registry     *Registry
	periods      *periodTable
	schedule     *Schedule
	asyncStates  *asyncStateTable
	statsTracker *stats.Stats

	mu      sync.Mutex
	started bool
	ncpus   int
}

// New constructs an Aggregator. Registration may begin immediately; Start
// must be called before either tick driver is used.
func New(opts Options) *Aggregator {
	if opts.Clock == nil {
		opts.Clock = clock.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = alog.New(alog.InfoLevel)
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.Must(uuid.NewV4()).String()
	}
	a := &Aggregator{
		machineID:    opts.MachineID,
		machineCount: opts.MachineCount,
		instanceID:   opts.InstanceID,
		graph:        opts.Graph,
		transport:    opts.Transport,
		clock:        opts.Clock,
		logger:       opts.Logger,
		registry:     newRegistry(),
		periods:      newPeriodTable(),
		schedule:     newSchedule(),
		asyncStates:  newAsyncStateTable(),
		statsTracker: stats.New(),
	}
	a.logger.Logf(alog.InfoLevel, "aggregator %s initialized as machine %d/%d", a.instanceID, a.machineID, a.machineCount)
	a.wireHandlers()
	return a
}

// InstanceID returns this Aggregator's log-correlation identifier.
func (a *Aggregator) InstanceID() string {
	return a.instanceID
}

// AddVertexReduction registers a vertex-scan reduction under key.
func (a *Aggregator) AddVertexReduction(key string, factory SumFactory, mapFn VertexMapFunc, finalizeFn FinalizeFunc) error {
	return a.registry.AddVertexReduction(key, factory, mapFn, finalizeFn)
}

// AddEdgeReduction registers an edge-scan reduction under key.
func (a *Aggregator) AddEdgeReduction(key string, factory SumFactory, mapFn EdgeMapFunc, finalizeFn FinalizeFunc) error {
	return a.registry.AddEdgeReduction(key, factory, mapFn, finalizeFn)
}

// AggregatePeriodic attaches a period in seconds to key, making it a
// periodic key runnable by the tick drivers. Collective: must be called on
// every machine with identical arguments; embeds an entry barrier.
func (a *Aggregator) AggregatePeriodic(ctx context.Context, key string, seconds float64) error {
	if err := a.transport.Barrier(ctx); err != nil {
		return err
	}
	if a.registry.Get(key) == nil {
		return UnregisteredKeyError{Key: key}
	}
	return a.periods.Set(key, seconds)
}

// ListPeriodicKeys returns every key with an attached period.
func (a *Aggregator) ListPeriodicKeys() []string {
	return a.periods.Keys()
}

// Stats returns this Aggregator's introspection counters.
func (a *Aggregator) Stats() *stats.Stats {
	return a.statsTracker
}

// Start arms the schedule from the period table and, when ncpus > 0,
// materializes per-key async state for the asynchronous tick driver.
// Collective: embeds an entry barrier.
func (a *Aggregator) Start(ctx context.Context, ncpus int) error {
	if err := a.transport.Barrier(ctx); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ncpus = ncpus
	now := a.clock.ApproxTimeSeconds()
	for _, key := range a.periods.Keys() {
		period, _ := a.periods.Get(key)
		a.schedule.Push(key, now+period)
		if ncpus > 0 {
			a.asyncStates.materialize(key, a.registry.MustGet(key), ncpus, a.machineCount)
		}
	}
	a.statsTracker.SetScheduleDepth(a.schedule.Len())
	a.started = true
	return nil
}

// Stop clears the schedule, tears down async state, and clears every
// registered Reduction's accumulator. A subsequent Start reproduces the
// initial state, since the period table and the registry's keys themselves
// are untouched.
func (a *Aggregator) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.schedule.Clear()
	a.asyncStates.clear()
	a.registry.ClearAll()
	a.statsTracker.SetScheduleDepth(0)
	a.started = false
	return nil
}

// wireHandlers registers the asynchronous tick driver's RPC entry points
// against this Aggregator's Transport.
func (a *Aggregator) wireHandlers() {
	a.transport.RegisterHandler(methodMergeFromPeer, a.handleMergeFromPeer)
	a.transport.RegisterHandler(methodPerformFinalize, a.handlePerformFinalize)
	a.transport.RegisterHandler(methodFinalizeAck, a.handleFinalizeAck)
	a.transport.RegisterHandler(methodScheduleKey, a.handleScheduleKey)
}
