package observe

import (
	"context"
	"sync"
)

// Recorder is a thread-safe observer that retains every event it sees. It is
// the hook tests use to verify lifecycle sequences and to run checks, such as
// descriptor snapshots, at exact lifecycle edges.
type Recorder struct {
	mu     sync.Mutex
	events []Event

	// OnRecord, if set, runs synchronously for each event after it is
	// retained. It must not call back into the Recorder's observed pool.
	OnRecord func(Event)
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnEvent(ctx context.Context, event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	hook := r.OnRecord
	r.mu.Unlock()

	if hook != nil {
		hook(event)
	}
}

// Events returns a copy of the retained events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of the given type were retained.
func (r *Recorder) Count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
