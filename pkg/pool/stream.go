package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jzx17/parmap/pkg/types"
)

// Stream delivers the results of one mapping session. A Stream has a
// single consumer; its methods must not be called concurrently.
type Stream[T, R any] struct {
	co *coordinator[T, R]

	ctx    context.Context
	cancel context.CancelFunc
	base   int64

	// in-flight input payloads by sequence, shared with the dispatcher
	mu     sync.Mutex
	inputs map[int64]T

	// dispatcher handoff; total and err are valid once done is closed
	dispatchDone  chan struct{}
	dispatchTotal int64
	dispatchErr   error

	// consumer state
	doneCh       <-chan struct{}
	dispatchOver bool
	total        int64
	yielded      int64
	nextYield    int64
	reorder      map[int64]types.ResultItem[R]
	terminal     error
	finished     atomic.Bool
}

// imap starts a mapping session over in. The context bounds dispatch:
// cancelling it stops intake, after which the stream drains whatever
// was already handed to workers and then reports done. Only one
// unfinished stream may exist per pool.
func (c *coordinator[T, R]) imap(ctx context.Context, in <-chan T) (*Stream[T, R], error) {
	if in == nil {
		return nil, fmt.Errorf("%w: nil input channel", types.ErrInvalidInput)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closing:
		return nil, types.ErrPoolClosed
	default:
	}
	if c.State() == types.StateClosed {
		return nil, types.ErrPoolClosed
	}
	if c.active != nil && !c.active.finished.Load() {
		return nil, types.ErrStreamActive
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Stream[T, R]{
		co:           c,
		ctx:          sctx,
		cancel:       cancel,
		base:         c.nextSeq,
		inputs:       make(map[int64]T),
		dispatchDone: make(chan struct{}),
		nextYield:    c.nextSeq,
		reorder:      make(map[int64]types.ResultItem[R]),
	}
	s.doneCh = s.dispatchDone
	c.active = s
	c.setState(types.StateRunning)

	go c.dispatch(s, in)
	return s, nil
}

// imapSlice feeds a slice through an internal channel so dispatch
// stays as lazy as the channel form.
func (c *coordinator[T, R]) imapSlice(ctx context.Context, inputs []T) (*Stream[T, R], error) {
	in := make(chan T)
	s, err := c.imap(ctx, in)
	if err != nil {
		return nil, err
	}
	go func() {
		defer close(in)
		for _, v := range inputs {
			select {
			case in <- v:
			case <-s.ctx.Done():
				return
			}
		}
	}()
	return s, nil
}

func (c *coordinator[T, R]) blockIgnoreOutput(ctx context.Context) error {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil || s.finished.Load() {
		return types.ErrNoActiveStream
	}
	return s.BlockIgnoreOutput(ctx)
}

// Next returns the next result. In ordered mode results come back in
// input order; otherwise in arrival order. Worker failures surface as a
// *types.WorkerError at the failed input's position (ordered) or on
// arrival (unordered), and end the stream. A fully consumed stream
// returns ErrStreamDone, closing the pool when CloseOnDrain is set.
// A ctx error is returned as-is and does not end the stream.
func (s *Stream[T, R]) Next(ctx context.Context) (types.Result[T, R], error) {
	var zero types.Result[T, R]
	if ctx == nil {
		ctx = context.Background()
	}
	if s.terminal != nil {
		return zero, s.terminal
	}

	for {
		if s.co.config.Ordered {
			if item, ok := s.reorder[s.nextYield]; ok {
				delete(s.reorder, s.nextYield)
				return s.deliver(item)
			}
		}

		if s.dispatchOver && s.yielded >= s.total {
			return zero, s.finish(types.ErrStreamDone)
		}

		select {
		case a := <-s.co.arrivals:
			if a.err != nil {
				return zero, s.finish(a.err)
			}
			item := a.item
			if !s.co.config.Ordered {
				return s.deliver(item)
			}
			if item.Err != nil && item.Seq < 0 {
				// failure before any input was pulled has no position
				return s.deliver(item)
			}
			if item.Seq == s.nextYield {
				return s.deliver(item)
			}
			s.reorder[item.Seq] = item
		case <-s.doneCh:
			s.doneCh = nil
			s.dispatchOver = true
			s.total = s.dispatchTotal
			if s.dispatchErr != nil {
				return zero, s.finish(s.dispatchErr)
			}
		case <-s.co.closing:
			return zero, s.finish(types.ErrPoolClosed)
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// deliver yields one arrived item, turning failure envelopes into a
// terminal WorkerError.
func (s *Stream[T, R]) deliver(item types.ResultItem[R]) (types.Result[T, R], error) {
	var zero types.Result[T, R]
	if item.Err != nil {
		return zero, s.finish(&types.WorkerError{Envelope: item.Err})
	}
	s.yielded++
	if s.co.config.Ordered {
		s.nextYield++
	}
	return types.Result[T, R]{
		Index:  item.Seq,
		Worker: item.Worker,
		Input:  s.takeInput(item.Seq),
		Value:  item.Value,
	}, nil
}

// finish latches the stream's terminal error. Failures and channel
// faults always close the pool; clean exhaustion closes it only when
// CloseOnDrain is set, leaving a drained pool reusable otherwise.
func (s *Stream[T, R]) finish(err error) error {
	s.terminal = err
	s.finished.Store(true)
	s.cancel()
	switch {
	case errors.Is(err, types.ErrStreamDone):
		if s.co.config.CloseOnDrain {
			_ = s.co.Close()
		}
	case errors.Is(err, types.ErrPoolClosed):
		// pool teardown is already in progress
	default:
		_ = s.co.Close()
	}
	return err
}

// Collect consumes the stream to completion and returns all results.
func (s *Stream[T, R]) Collect(ctx context.Context) ([]types.Result[T, R], error) {
	var results []types.Result[T, R]
	for {
		res, err := s.Next(ctx)
		if err != nil {
			if errors.Is(err, types.ErrStreamDone) {
				return results, nil
			}
			return results, err
		}
		results = append(results, res)
	}
}

// BlockIgnoreOutput consumes the stream to completion, discarding
// results. It returns nil once the stream is drained.
func (s *Stream[T, R]) BlockIgnoreOutput(ctx context.Context) error {
	for {
		if _, err := s.Next(ctx); err != nil {
			if errors.Is(err, types.ErrStreamDone) {
				return nil
			}
			return err
		}
	}
}

// Close abandons the stream and tears the pool down.
func (s *Stream[T, R]) Close() error {
	if s.terminal == nil {
		s.terminal = types.ErrPoolClosed
		s.finished.Store(true)
		s.cancel()
	}
	return s.co.Close()
}

func (s *Stream[T, R]) storeInput(seq int64, v T) {
	s.mu.Lock()
	s.inputs[seq] = v
	s.mu.Unlock()
}

func (s *Stream[T, R]) takeInput(seq int64) T {
	s.mu.Lock()
	v := s.inputs[seq]
	delete(s.inputs, seq)
	s.mu.Unlock()
	return v
}
