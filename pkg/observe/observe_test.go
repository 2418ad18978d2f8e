package observe_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jzx17/parmap/pkg/observe"
)

func TestSlogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := observe.NewSlogObserver(logger)

	obs.OnEvent(context.Background(), observe.Event{
		Type:   "channel.open",
		Level:  slog.LevelDebug,
		Time:   time.Now(),
		Source: "pool-1234",
		Data:   map[string]any{"worker": 3},
	})

	out := buf.String()
	if !strings.Contains(out, "channel.open") {
		t.Errorf("expected event type in log output, got %q", out)
	}
	if !strings.Contains(out, "source=pool-1234") {
		t.Errorf("expected source attribute in log output, got %q", out)
	}
	if !strings.Contains(out, "worker=3") {
		t.Errorf("expected data attribute in log output, got %q", out)
	}
}

func TestMultiObserver(t *testing.T) {
	a := observe.NewRecorder()
	b := observe.NewRecorder()
	multi := observe.NewMultiObserver(a, nil, b)

	multi.OnEvent(context.Background(), observe.Event{Type: "pool.close"})

	if a.Count("pool.close") != 1 {
		t.Errorf("expected first observer to see the event")
	}
	if b.Count("pool.close") != 1 {
		t.Errorf("expected second observer to see the event")
	}
}

func TestRecorder(t *testing.T) {
	rec := observe.NewRecorder()

	var hooked []observe.EventType
	rec.OnRecord = func(e observe.Event) {
		hooked = append(hooked, e.Type)
	}

	rec.OnEvent(context.Background(), observe.Event{Type: "channel.open"})
	rec.OnEvent(context.Background(), observe.Event{Type: "channel.open"})
	rec.OnEvent(context.Background(), observe.Event{Type: "channel.close"})

	if rec.Count("channel.open") != 2 {
		t.Errorf("expected 2 channel.open events, got %d", rec.Count("channel.open"))
	}

	events := rec.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[2].Type != "channel.close" {
		t.Errorf("expected arrival order preserved")
	}

	if len(hooked) != 3 {
		t.Errorf("expected hook to run per event, got %d", len(hooked))
	}
}

func TestNoOpObserver(t *testing.T) {
	var obs observe.Observer = observe.NoOpObserver{}
	obs.OnEvent(context.Background(), observe.Event{Type: "worker.start"})
}
