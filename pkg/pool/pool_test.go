package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/parmap/internal/testutils"
	"github.com/jzx17/parmap/pkg/observe"
	"github.com/jzx17/parmap/pkg/transport"
	"github.com/jzx17/parmap/pkg/types"
	"github.com/jzx17/parmap/pkg/worker"
)

func doubler() worker.Factory[int, int] {
	return worker.FromFunc(func(ctx context.Context, v int) (int, error) {
		return v * 2, nil
	})
}

// silentConfig keeps failure envelopes out of the test log.
func silentConfig() *Config {
	cfg := DefaultConfig()
	cfg.ErrorPrinter = func(*types.ErrorEnvelope) {}
	return cfg
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		factory worker.Factory[int, int]
		mutate  func(*Config)
	}{
		{
			name:    "nil factory",
			factory: nil,
			mutate:  func(cfg *Config) {},
		},
		{
			name:    "zero workers",
			factory: doubler(),
			mutate:  func(cfg *Config) { cfg.NumWorkers = 0 },
		},
		{
			name:    "negative workers",
			factory: doubler(),
			mutate:  func(cfg *Config) { cfg.NumWorkers = -1 },
		},
		{
			name:    "zero chunk size",
			factory: doubler(),
			mutate:  func(cfg *Config) { cfg.ChunkSize = 0 },
		},
		{
			name:    "zero in-flight bound",
			factory: doubler(),
			mutate:  func(cfg *Config) { cfg.InFlightPerWorker = 0 },
		},
		{
			name:    "zero join timeout",
			factory: doubler(),
			mutate:  func(cfg *Config) { cfg.JoinTimeout = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			p, err := New(tt.factory, cfg)
			assert.ErrorIs(t, err, types.ErrInvalidInput)
			assert.Nil(t, p)
		})
	}
}

func TestNewDefaults(t *testing.T) {
	p, err := New(doubler(), nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, runtime.GOMAXPROCS(0), p.NumWorkers())
	assert.Equal(t, types.StateConstructed, p.State())
	assert.Equal(t, p.NumWorkers(), p.LiveChannels())
	assert.NotEmpty(t, p.ID())
}

func TestConstructionRollbackOnFactoryError(t *testing.T) {
	boom := errors.New("no database handle")
	factory := func(w int) (worker.Unit[int, int], error) {
		if w == 3 {
			return nil, boom
		}
		return worker.FromFunc(func(ctx context.Context, v int) (int, error) {
			return v, nil
		})(w)
	}

	rec := observe.NewRecorder()
	cfg := DefaultConfig()
	cfg.NumWorkers = 5
	cfg.Observer = rec

	p, err := New[int, int](factory, cfg)
	require.Error(t, err)
	assert.Nil(t, p)

	var cerr *types.ConstructionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 3, cerr.Worker)
	assert.ErrorIs(t, err, boom)

	// every pair opened during construction must have been released
	assert.Equal(t, 5, rec.Count(EventChannelOpen))
	assert.Equal(t, 5, rec.Count(EventChannelClose))
}

func TestConstructionRollbackOnTransportError(t *testing.T) {
	rec := observe.NewRecorder()
	cfg := DefaultConfig()
	cfg.NumWorkers = 4
	cfg.Observer = rec

	memory := transport.Memory[int, int](1)
	failing := func(w int) (transport.Pair[int, int], error) {
		if w == 2 {
			return nil, errors.New("pipe table full")
		}
		return memory(w)
	}

	p, err := New(doubler(), cfg, WithTransport(failing))
	require.Error(t, err)
	assert.Nil(t, p)

	var cherr *types.ChannelError
	require.ErrorAs(t, err, &cherr)
	assert.Equal(t, 2, cherr.Worker)
	assert.Equal(t, "open", cherr.Op)

	assert.Equal(t, 2, rec.Count(EventChannelOpen))
	assert.Equal(t, 2, rec.Count(EventChannelClose))
}

func TestCloseIsIdempotent(t *testing.T) {
	p, err := ForkIdentical(doubler(), 3)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, types.StateClosed, p.State())
	assert.Equal(t, 0, p.LiveChannels())

	_, err = p.IMapSlice(context.Background(), []int{1})
	assert.ErrorIs(t, err, types.ErrPoolClosed)
}

func TestCloseBeforeAnyDispatch(t *testing.T) {
	rec := observe.NewRecorder()
	cfg := DefaultConfig()
	cfg.NumWorkers = 2
	cfg.Observer = rec

	p, err := New(doubler(), cfg)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.Equal(t, 0, p.LiveChannels())
	assert.Equal(t, 1, rec.Count(EventPoolClose))
	assert.Equal(t, 2, rec.Count(EventWorkerStart))
	assert.Equal(t, 2, rec.Count(EventWorkerExit))
}

func TestCloseJoinTimeout(t *testing.T) {
	mock := testutils.NewMockClock(t)
	trap := mock.Trap().NewTimer()
	defer trap.Close()

	cfg := silentConfig()
	cfg.NumWorkers = 1
	cfg.JoinTimeout = 5 * time.Second
	cfg.Clock = testutils.NewClockWrapper(mock)

	// a unit that ignores cancellation entirely
	entered := make(chan struct{})
	stuck := worker.FromFunc(func(ctx context.Context, v int) (int, error) {
		close(entered)
		select {}
	})
	p, err := New(stuck, cfg)
	require.NoError(t, err)

	_, err = p.IMapSlice(context.Background(), []int{1})
	require.NoError(t, err)
	<-entered

	closed := make(chan error, 1)
	go func() {
		closed <- p.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	call := trap.MustWait(ctx)
	call.Release()
	mock.Advance(cfg.JoinTimeout).MustWait(ctx)

	select {
	case err := <-closed:
		assert.ErrorIs(t, err, types.ErrJoinTimeout)
	case <-ctx.Done():
		t.Fatal("Close did not return after the join timeout elapsed")
	}
	assert.Equal(t, types.StateClosed, p.State())
	assert.Equal(t, 0, p.LiveChannels())
}

func TestStatsAccounting(t *testing.T) {
	p, err := ForkIdentical(doubler(), 3)
	require.NoError(t, err)

	s, err := p.IMapSlice(context.Background(), []int{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	results, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 6)

	st := p.Stats()
	assert.Equal(t, types.StateClosed, st.State)
	assert.Equal(t, 3, st.NumWorkers)
	assert.Equal(t, 0, st.LiveChannels)
	assert.Equal(t, int64(6), st.Dispatched)
	assert.Equal(t, int64(6), st.Completed)
	assert.Equal(t, int64(0), st.Failed)

	var perWorker int64
	for _, ws := range st.Workers {
		perWorker += ws.Dispatched
	}
	assert.Equal(t, int64(6), perWorker)
}

func TestStatsCountFailures(t *testing.T) {
	cfg := silentConfig()
	cfg.NumWorkers = 2

	factory := worker.FromFunc(func(ctx context.Context, v int) (int, error) {
		if v == 3 {
			return 0, fmt.Errorf("bad value: %d", v)
		}
		return v, nil
	})
	p, err := New(factory, cfg)
	require.NoError(t, err)

	s, err := p.IMapSlice(context.Background(), []int{0, 3, 0})
	require.NoError(t, err)
	_, err = s.Collect(context.Background())
	require.Error(t, err)

	st := p.Stats()
	assert.Equal(t, int64(1), st.Failed)
}

func TestLifecycleEventSequence(t *testing.T) {
	rec := observe.NewRecorder()
	cfg := DefaultConfig()
	cfg.NumWorkers = 2
	cfg.Observer = rec

	p, err := New(doubler(), cfg)
	require.NoError(t, err)

	s, err := p.IMapSlice(context.Background(), []int{1, 2, 3})
	require.NoError(t, err)
	_, err = s.Collect(context.Background())
	require.NoError(t, err)

	// CloseOnDrain tears the pool down once the stream is consumed
	assert.Equal(t, types.StateClosed, p.State())

	var states []string
	for _, e := range rec.Events() {
		if e.Type == EventPoolState {
			states = append(states, e.Data["state"].(string))
		}
	}
	assert.Equal(t, []string{"Running", "Draining", "Closed"}, states)
	assert.Equal(t, 1, rec.Count(EventPoolConstruct))
	assert.Equal(t, 1, rec.Count(EventPoolClose))
}

func TestAbandonedPoolIsFinalized(t *testing.T) {
	rec := observe.NewRecorder()

	func() {
		cfg := DefaultConfig()
		cfg.NumWorkers = 2
		cfg.Observer = rec
		p, err := New(doubler(), cfg)
		require.NoError(t, err)
		_ = p.NumWorkers()
	}()

	assert.Eventually(t, func() bool {
		runtime.GC()
		return rec.Count(EventPoolClose) == 1
	}, 5*time.Second, 20*time.Millisecond, "finalizer should close an abandoned pool")
}

func TestBlockIgnoreOutputWithoutStream(t *testing.T) {
	p, err := ForkIdentical(doubler(), 2)
	require.NoError(t, err)
	defer p.Close()

	err = p.BlockIgnoreOutput(context.Background())
	assert.ErrorIs(t, err, types.ErrNoActiveStream)
}

func TestBlockIgnoreOutputDrainsActiveStream(t *testing.T) {
	var processed int32
	factory := worker.FromFunc(func(ctx context.Context, v int) (int, error) {
		atomic.AddInt32(&processed, 1)
		return v, nil
	})

	p, err := ForkIdentical(factory, 2)
	require.NoError(t, err)

	_, err = p.IMapSlice(context.Background(), []int{1, 2, 3, 4})
	require.NoError(t, err)

	require.NoError(t, p.BlockIgnoreOutput(context.Background()))
	assert.Equal(t, int32(4), atomic.LoadInt32(&processed))
	assert.Equal(t, types.StateClosed, p.State())
}
