package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jzx17/parmap/pkg/observe"
	"github.com/jzx17/parmap/pkg/transport"
	"github.com/jzx17/parmap/pkg/types"
	"github.com/jzx17/parmap/pkg/worker"
)

// arrival carries one worker answer, or an infrastructure fault, from a
// result pump to the consuming stream.
type arrival[R any] struct {
	item types.ResultItem[R]
	err  error
}

// slotEvent tells the dispatcher that a worker drained a chunk or exited.
type slotEvent struct {
	worker int
	exited bool
}

// handle pairs a worker slot with its channel pair and counters.
type handle[T, R any] struct {
	id   int
	pair transport.Pair[T, R]

	// counters, updated atomically
	dispatched int64
	completed  int64
	failed     int64
}

// coordinator owns the state shared by worker goroutines, result pumps
// and streams. It is separate from Pool so an abandoned Pool can be
// finalized while its goroutines still hold the coordinator.
type coordinator[T, R any] struct {
	id        string
	config    *Config
	factory   worker.Factory[T, R]
	transport transport.Factory[T, R]

	handles []*handle[T, R]

	// collection plane
	arrivals chan arrival[R]
	slots    chan slotEvent

	// lifecycle
	state     int32 // atomic, holds a types.PoolState
	ctx       context.Context
	cancel    context.CancelFunc
	gctx      context.Context
	group     *errgroup.Group
	closing   chan struct{}
	closeOnce sync.Once
	closeErr  error

	liveChannels int32 // atomic

	// session management
	mu      sync.Mutex
	active  *Stream[T, R]
	nextSeq int64

	// dispatch bookkeeping, owned by the running dispatcher
	cursor   int
	alive    []bool
	inflight []int
}

// Pool coordinates a fixed fleet of worker units and hands out streams
// over their results. A Pool left to the garbage collector is closed by
// a finalizer, but calling Close is the reliable path.
type Pool[T, R any] struct {
	co *coordinator[T, R]
}

// New creates a pool of config.NumWorkers units built by factory. Every
// unit gets its own channel pair and goroutine; construction either
// completes fully or releases everything it opened.
func New[T, R any](factory worker.Factory[T, R], config *Config, opts ...types.Option[*coordinator[T, R]]) (*Pool[T, R], error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: nil worker factory", types.ErrInvalidInput)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.NumWorkers <= 0 {
		return nil, fmt.Errorf("%w: num workers must be positive, got %d", types.ErrInvalidInput, config.NumWorkers)
	}
	if config.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", types.ErrInvalidInput, config.ChunkSize)
	}
	if config.InFlightPerWorker <= 0 {
		return nil, fmt.Errorf("%w: in-flight bound must be positive, got %d", types.ErrInvalidInput, config.InFlightPerWorker)
	}
	if config.JoinTimeout <= 0 {
		return nil, fmt.Errorf("%w: join timeout must be positive, got %v", types.ErrInvalidInput, config.JoinTimeout)
	}

	// Ensure ambient components are set
	if config.Clock == nil {
		config.Clock = types.NewRealClock()
	}
	if config.Observer == nil {
		config.Observer = observe.NoOpObserver{}
	}
	if config.ErrorPrinter == nil {
		config.ErrorPrinter = PrintEnvelope
	}

	c := &coordinator[T, R]{
		id:       uuid.NewString(),
		config:   config,
		factory:  factory,
		arrivals: make(chan arrival[R], config.NumWorkers),
		slots:    make(chan slotEvent, config.NumWorkers*(config.InFlightPerWorker+1)),
		closing:  make(chan struct{}),
		cursor:   config.NumWorkers - 1,
		alive:    make([]bool, config.NumWorkers),
		inflight: make([]int, config.NumWorkers),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.group, c.gctx = errgroup.WithContext(c.ctx)

	// Apply configuration options
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = transport.Memory[T, R](config.InFlightPerWorker)
	}

	if err := c.construct(); err != nil {
		c.cancel()
		return nil, err
	}

	p := &Pool[T, R]{co: c}
	runtime.SetFinalizer(p, func(p *Pool[T, R]) {
		_ = p.co.Close()
	})
	return p, nil
}

// ForkIdentical creates a pool of numWorkers units built from the same
// factory, with default configuration.
func ForkIdentical[T, R any](factory worker.Factory[T, R], numWorkers int, opts ...types.Option[*coordinator[T, R]]) (*Pool[T, R], error) {
	config := DefaultConfig()
	config.NumWorkers = numWorkers
	return New(factory, config, opts...)
}

// ForkIdenticalChunked is ForkIdentical with inputs grouped into chunks
// of chunkSize before dispatch.
func ForkIdenticalChunked[T, R any](factory worker.Factory[T, R], numWorkers, chunkSize int, opts ...types.Option[*coordinator[T, R]]) (*Pool[T, R], error) {
	config := DefaultConfig()
	config.NumWorkers = numWorkers
	config.ChunkSize = chunkSize
	return New(factory, config, opts...)
}

// construct opens channel pairs, builds units and starts goroutines.
// Any failure rolls back whatever was already opened.
func (c *coordinator[T, R]) construct() error {
	numWorkers := c.config.NumWorkers

	pairs := make([]transport.Pair[T, R], 0, numWorkers)
	for i := 0; i < numWorkers; i++ {
		pair, err := c.transport(i)
		if err != nil {
			c.releasePairs(pairs)
			return &types.ChannelError{Worker: i, Op: "open", Cause: err}
		}
		pairs = append(pairs, pair)
		atomic.AddInt32(&c.liveChannels, 1)
		c.emit(EventChannelOpen, slog.LevelDebug, map[string]any{"worker": i})
	}

	units := make([]worker.Unit[T, R], numWorkers)
	for i := 0; i < numWorkers; i++ {
		unit, err := c.factory(i)
		if err != nil {
			c.releasePairs(pairs)
			return &types.ConstructionError{Worker: i, Cause: err}
		}
		units[i] = unit
	}

	for i := 0; i < numWorkers; i++ {
		h := &handle[T, R]{id: i, pair: pairs[i]}
		c.handles = append(c.handles, h)
		c.alive[i] = true

		unit := units[i]
		c.group.Go(func() error {
			return c.runUnit(h, unit)
		})
		c.group.Go(func() error {
			return c.pump(h)
		})
	}

	atomic.StoreInt32(&c.state, int32(types.StateConstructed))
	c.emit(EventPoolConstruct, slog.LevelInfo, map[string]any{"workers": numWorkers})
	if c.config.Logger != nil {
		c.config.Logger.Info("pool constructed", "pool", c.id, "workers", numWorkers)
	}
	return nil
}

func (c *coordinator[T, R]) releasePairs(pairs []transport.Pair[T, R]) {
	for i, pair := range pairs {
		_ = pair.Close()
		atomic.AddInt32(&c.liveChannels, -1)
		c.emit(EventChannelClose, slog.LevelDebug, map[string]any{"worker": i})
	}
}

// runUnit hosts one worker unit for the pool's lifetime. Unit-level
// failures travel as envelopes in the result stream, so only channel
// faults reach this wrapper. Those are surfaced to the consumer and the
// error is swallowed to keep sibling units running.
func (c *coordinator[T, R]) runUnit(h *handle[T, R], unit worker.Unit[T, R]) error {
	c.emit(EventWorkerStart, slog.LevelDebug, map[string]any{"worker": h.id})
	if err := worker.Run(c.gctx, h.id, h.pair, unit); err != nil {
		if c.config.Logger != nil {
			c.config.Logger.Warn("worker channel fault", "pool", c.id, "worker", h.id, "error", err)
		}
		c.forward(arrival[R]{err: err})
	}
	return nil
}

// pump drains one worker's result channel for the pool's lifetime,
// forwarding answers as they arrive and reporting drained chunks back
// to the dispatcher.
func (c *coordinator[T, R]) pump(h *handle[T, R]) error {
	for {
		chunk, err := h.pair.RecvResults(c.gctx)
		if err != nil {
			if !orderlyChannelError(err) {
				c.forward(arrival[R]{err: &types.ChannelError{Worker: h.id, Op: "recv", Cause: err}})
			}
			c.notify(slotEvent{worker: h.id, exited: true})
			c.emit(EventWorkerExit, slog.LevelDebug, map[string]any{"worker": h.id})
			return nil
		}
		for _, item := range chunk.Items {
			if item.Err != nil {
				atomic.AddInt64(&h.failed, 1)
				c.config.ErrorPrinter(item.Err)
				c.emit(EventWorkerFailure, slog.LevelError, map[string]any{
					"worker": item.Err.Worker,
					"kind":   item.Err.Kind,
				})
			} else {
				atomic.AddInt64(&h.completed, 1)
			}
			if !c.forward(arrival[R]{item: item}) {
				return nil
			}
		}
		c.notify(slotEvent{worker: h.id})
	}
}

func (c *coordinator[T, R]) forward(a arrival[R]) bool {
	select {
	case c.arrivals <- a:
		return true
	case <-c.closing:
		return false
	}
}

func (c *coordinator[T, R]) notify(ev slotEvent) {
	select {
	case c.slots <- ev:
	case <-c.closing:
	}
}

// Close drains outstanding work signals, waits up to JoinTimeout for
// workers to exit and releases every channel pair. It is idempotent and
// safe to call from any goroutine; only the first call does the work.
func (c *coordinator[T, R]) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.doClose()
	})
	return c.closeErr
}

func (c *coordinator[T, R]) doClose() error {
	if c.State() != types.StateDraining {
		c.setState(types.StateDraining)
	}
	close(c.closing)

	c.mu.Lock()
	if c.active != nil {
		c.active.cancel()
	}
	c.mu.Unlock()

	// half-close the work direction so units drain and exit
	for _, h := range c.handles {
		_ = h.pair.CloseSend()
	}

	done := make(chan struct{})
	go func() {
		_ = c.group.Wait()
		close(done)
	}()

	timer := c.config.Clock.NewTimer(c.config.JoinTimeout)
	defer timer.Stop()

	var joinErr error
wait:
	for {
		select {
		case <-c.arrivals:
			// discard tail results so pumps can finish
		case <-c.slots:
		case <-done:
			break wait
		case <-timer.C():
			joinErr = types.ErrJoinTimeout
			c.cancel()
			break wait
		}
	}

	for _, h := range c.handles {
		if err := h.pair.Close(); err != nil && c.config.Logger != nil {
			c.config.Logger.Warn("closing worker channel", "pool", c.id, "worker", h.id, "error", err)
		}
		atomic.AddInt32(&c.liveChannels, -1)
		c.emit(EventChannelClose, slog.LevelDebug, map[string]any{"worker": h.id})
	}

	c.cancel()
	c.setState(types.StateClosed)
	c.emit(EventPoolClose, slog.LevelInfo, map[string]any{"timed_out": joinErr != nil})
	if c.config.Logger != nil {
		c.config.Logger.Info("pool closed", "pool", c.id, "timed_out", joinErr != nil)
	}
	return joinErr
}

func orderlyChannelError(err error) bool {
	return errors.Is(err, types.ErrChannelClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// PrintEnvelope writes a failure envelope to stderr in a readable form.
// It is the default ErrorPrinter.
func PrintEnvelope(env *types.ErrorEnvelope) {
	fmt.Fprintf(os.Stderr, "worker %d failed: %s: %s\n%s\n", env.Worker, env.Kind, env.Message, env.Trace)
}

// IMap starts a mapping session over the input channel. See
// coordinator.imap for the session rules.
func (p *Pool[T, R]) IMap(ctx context.Context, in <-chan T) (*Stream[T, R], error) {
	return p.co.imap(ctx, in)
}

// IMapSlice starts a mapping session over a slice. The inputs are fed
// from an internal goroutine so dispatch stays lazy.
func (p *Pool[T, R]) IMapSlice(ctx context.Context, inputs []T) (*Stream[T, R], error) {
	return p.co.imapSlice(ctx, inputs)
}

// BlockIgnoreOutput consumes the active stream, discarding results.
func (p *Pool[T, R]) BlockIgnoreOutput(ctx context.Context) error {
	return p.co.blockIgnoreOutput(ctx)
}

// Close tears the pool down. See coordinator.Close.
func (p *Pool[T, R]) Close() error {
	runtime.SetFinalizer(p, nil)
	return p.co.Close()
}

// ID returns the pool's unique identifier, as used in events and logs.
func (p *Pool[T, R]) ID() string {
	return p.co.id
}

// State returns the current lifecycle state.
func (p *Pool[T, R]) State() types.PoolState {
	return p.co.State()
}

// NumWorkers returns the configured number of worker units.
func (p *Pool[T, R]) NumWorkers() int {
	return p.co.config.NumWorkers
}

// LiveChannels returns how many channel pairs are currently open.
func (p *Pool[T, R]) LiveChannels() int {
	return int(atomic.LoadInt32(&p.co.liveChannels))
}

// Stats returns a point-in-time snapshot of pool activity.
func (p *Pool[T, R]) Stats() Stats {
	return p.co.stats()
}

// WorkerStats reports per-worker dispatch accounting.
type WorkerStats struct {
	// Worker is the worker slot index
	Worker int

	// Dispatched is the number of inputs handed to the worker
	Dispatched int64

	// Completed is the number of inputs answered without failure
	Completed int64

	// Failed is the number of failure envelopes received
	Failed int64
}

// Stats reports a point-in-time snapshot of pool activity.
type Stats struct {
	// State is the lifecycle state at snapshot time
	State types.PoolState

	// NumWorkers is the configured number of worker units
	NumWorkers int

	// LiveChannels is the number of open channel pairs
	LiveChannels int

	// Dispatched, Completed and Failed aggregate the per-worker counters
	Dispatched int64
	Completed  int64
	Failed     int64

	// Workers holds the per-worker breakdown
	Workers []WorkerStats
}

func (c *coordinator[T, R]) stats() Stats {
	st := Stats{
		State:        c.State(),
		NumWorkers:   c.config.NumWorkers,
		LiveChannels: int(atomic.LoadInt32(&c.liveChannels)),
	}
	for _, h := range c.handles {
		ws := WorkerStats{
			Worker:     h.id,
			Dispatched: atomic.LoadInt64(&h.dispatched),
			Completed:  atomic.LoadInt64(&h.completed),
			Failed:     atomic.LoadInt64(&h.failed),
		}
		st.Dispatched += ws.Dispatched
		st.Completed += ws.Completed
		st.Failed += ws.Failed
		st.Workers = append(st.Workers, ws)
	}
	return st
}
