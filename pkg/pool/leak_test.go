//go:build linux

package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/parmap/internal/testutils"
	"github.com/jzx17/parmap/pkg/fdinfo"
	"github.com/jzx17/parmap/pkg/transport"
	"github.com/jzx17/parmap/pkg/worker"
)

// Descriptor accounting over a full run must net out to zero.
func TestPipeTransportNetZero(t *testing.T) {
	testutils.Retry(t, 3, func() error {
		before, err := fdinfo.Snapshot()
		if err != nil {
			return err
		}

		cfg := DefaultConfig()
		cfg.NumWorkers = 3
		p, err := New(doubler(), cfg, WithTransport(transport.Pipes[int, int]()))
		if err != nil {
			return err
		}
		s, err := p.IMapSlice(context.Background(), makeRange(100))
		if err != nil {
			return err
		}
		results, err := s.Collect(context.Background())
		if err != nil {
			return err
		}
		if len(results) != 100 {
			return fmt.Errorf("expected 100 results, got %d", len(results))
		}

		after, err := fdinfo.Snapshot()
		if err != nil {
			return err
		}
		if diff := fdinfo.Compare(before, after); !diff.Empty() {
			return fmt.Errorf("descriptors did not return to baseline: %+v", diff)
		}
		return nil
	})
}

func TestPipeTransportOpensOnlyFIFOs(t *testing.T) {
	before, err := fdinfo.Snapshot()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.NumWorkers = 3
	p, err := New(doubler(), cfg, WithTransport(transport.Pipes[int, int]()))
	require.NoError(t, err)

	mid, err := fdinfo.Snapshot()
	require.NoError(t, err)

	// each worker pair holds two pipes, four descriptors per worker
	diff := fdinfo.Compare(before, mid)
	assert.Len(t, diff.Opened, 12)
	assert.Empty(t, diff.Closed)
	for _, info := range diff.Opened {
		assert.Equal(t, fdinfo.FIFO, info.Kind, "fd %d: %s", info.FD, info.Target)
	}

	require.NoError(t, p.Close())

	after, err := fdinfo.Snapshot()
	require.NoError(t, err)
	assert.True(t, fdinfo.Compare(before, after).Empty())
}

func TestFailedConstructionReleasesDescriptors(t *testing.T) {
	testutils.Retry(t, 3, func() error {
		before, err := fdinfo.Snapshot()
		if err != nil {
			return err
		}

		boom := errors.New("resource acquisition failed")
		factory := func(w int) (worker.Unit[int, int], error) {
			if w == 2 {
				return nil, boom
			}
			return worker.FromFunc(func(ctx context.Context, v int) (int, error) {
				return v, nil
			})(w)
		}

		cfg := DefaultConfig()
		cfg.NumWorkers = 5
		_, err = New[int, int](factory, cfg, WithTransport(transport.Pipes[int, int]()))
		if !errors.Is(err, boom) {
			return fmt.Errorf("expected construction failure, got %v", err)
		}

		after, err := fdinfo.Snapshot()
		if err != nil {
			return err
		}
		if diff := fdinfo.Compare(before, after); !diff.Empty() {
			return fmt.Errorf("rollback left descriptors behind: %+v", diff)
		}
		return nil
	})
}

func TestAbandonedPoolReleasesDescriptors(t *testing.T) {
	before, err := fdinfo.Snapshot()
	require.NoError(t, err)

	func() {
		cfg := DefaultConfig()
		cfg.NumWorkers = 2
		p, err := New(doubler(), cfg, WithTransport(transport.Pipes[int, int]()))
		require.NoError(t, err)
		_ = p.NumWorkers()
	}()

	assert.Eventually(t, func() bool {
		runtime.GC()
		after, err := fdinfo.Snapshot()
		if err != nil {
			return false
		}
		return fdinfo.Compare(before, after).Empty()
	}, 5*time.Second, 20*time.Millisecond, "finalizer should release pipe descriptors")
}
