package pool

import (
	"log/slog"
	"sync/atomic"

	"github.com/jzx17/parmap/pkg/observe"
	"github.com/jzx17/parmap/pkg/types"
)

// Event types emitted through the configured Observer.
const (
	// EventPoolConstruct is emitted once all workers and channels exist
	EventPoolConstruct observe.EventType = "pool.construct"
	// EventPoolState is emitted on every lifecycle state change
	EventPoolState observe.EventType = "pool.state"
	// EventPoolClose is emitted when teardown completes
	EventPoolClose observe.EventType = "pool.close"
	// EventChannelOpen is emitted when a worker channel pair opens
	EventChannelOpen observe.EventType = "channel.open"
	// EventChannelClose is emitted when a worker channel pair is released
	EventChannelClose observe.EventType = "channel.close"
	// EventWorkerStart is emitted when a worker unit goroutine starts
	EventWorkerStart observe.EventType = "worker.start"
	// EventWorkerExit is emitted when a worker result channel drains out
	EventWorkerExit observe.EventType = "worker.exit"
	// EventWorkerFailure is emitted once per failure envelope
	EventWorkerFailure observe.EventType = "worker.failure"
)

func (c *coordinator[T, R]) emit(typ observe.EventType, level slog.Level, data map[string]any) {
	c.config.Observer.OnEvent(c.ctx, observe.Event{
		Type:   typ,
		Level:  level,
		Time:   c.config.Clock.Now(),
		Source: "pool/" + c.id,
		Data:   data,
	})
}

// State returns the current lifecycle state.
func (c *coordinator[T, R]) State() types.PoolState {
	return types.PoolState(atomic.LoadInt32(&c.state))
}

func (c *coordinator[T, R]) setState(next types.PoolState) {
	atomic.StoreInt32(&c.state, int32(next))
	c.emit(EventPoolState, slog.LevelDebug, map[string]any{"state": next.String()})
}

func (c *coordinator[T, R]) casState(from, to types.PoolState) bool {
	if !atomic.CompareAndSwapInt32(&c.state, int32(from), int32(to)) {
		return false
	}
	c.emit(EventPoolState, slog.LevelDebug, map[string]any{"state": to.String()})
	return true
}
