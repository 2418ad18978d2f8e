// Package observe provides event-based observability for pool lifecycles.
//
// A pool emits an Event at every lifecycle edge: construction, channel
// open/close, worker start/exit, state transitions, failures and teardown.
// Observers are injected at construction time, which is also how tests hook
// resource accounting without patching internals.
package observe

import (
	"context"
	"log/slog"
	"time"
)

// EventType identifies the kind of event. The pool package defines its
// constants using this type (e.g. "pool.construct", "channel.open").
type EventType string

// Event is a lifecycle event emitted by a pool. Source carries the pool id,
// Data carries event-specific attributes such as the worker slot.
type Event struct {
	Type   EventType
	Level  slog.Level
	Time   time.Time
	Source string
	Data   map[string]any
}

// Observer receives events for logging, tracing or verification.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}
