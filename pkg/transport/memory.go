package transport

import (
	"context"
	"sync"

	"github.com/jzx17/parmap/pkg/types"
)

// Memory returns a factory for in-process pairs backed by bounded channels.
// capacity is the number of chunks each direction buffers; values below one
// are raised to one.
func Memory[T, R any](capacity int) Factory[T, R] {
	if capacity < 1 {
		capacity = 1
	}
	return func(worker int) (Pair[T, R], error) {
		return &memoryPair[T, R]{
			work:        make(chan types.Chunk[T], capacity),
			results:     make(chan types.ResultChunk[R], capacity),
			sendClosed:  make(chan struct{}),
			resultsDone: make(chan struct{}),
			closed:      make(chan struct{}),
		}, nil
	}
}

// memoryPair connects both ends through buffered channels. The data channels
// are never closed; half-closes are signalled through dedicated channels so a
// send can never panic, and receivers drain buffered chunks before reporting
// closure.
type memoryPair[T, R any] struct {
	work    chan types.Chunk[T]
	results chan types.ResultChunk[R]

	sendClosed  chan struct{}
	resultsDone chan struct{}
	closed      chan struct{}

	sendOnce    sync.Once
	resultsOnce sync.Once
	closeOnce   sync.Once
}

func (p *memoryPair[T, R]) SendWork(ctx context.Context, chunk types.Chunk[T]) error {
	select {
	case <-p.sendClosed:
		return types.ErrChannelClosed
	case <-p.closed:
		return types.ErrChannelClosed
	default:
	}

	select {
	case p.work <- chunk:
		return nil
	case <-p.sendClosed:
		return types.ErrChannelClosed
	case <-p.closed:
		return types.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *memoryPair[T, R]) RecvWork(ctx context.Context) (types.Chunk[T], error) {
	var zero types.Chunk[T]
	select {
	case chunk := <-p.work:
		return chunk, nil
	case <-p.sendClosed:
		// drain chunks that were buffered before the half-close
		select {
		case chunk := <-p.work:
			return chunk, nil
		default:
			return zero, types.ErrChannelClosed
		}
	case <-p.closed:
		return zero, types.ErrChannelClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (p *memoryPair[T, R]) SendResults(ctx context.Context, chunk types.ResultChunk[R]) error {
	select {
	case <-p.resultsDone:
		return types.ErrChannelClosed
	case <-p.closed:
		return types.ErrChannelClosed
	default:
	}

	select {
	case p.results <- chunk:
		return nil
	case <-p.resultsDone:
		return types.ErrChannelClosed
	case <-p.closed:
		return types.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *memoryPair[T, R]) RecvResults(ctx context.Context) (types.ResultChunk[R], error) {
	var zero types.ResultChunk[R]
	select {
	case chunk := <-p.results:
		return chunk, nil
	case <-p.resultsDone:
		select {
		case chunk := <-p.results:
			return chunk, nil
		default:
			return zero, types.ErrChannelClosed
		}
	case <-p.closed:
		return zero, types.ErrChannelClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (p *memoryPair[T, R]) CloseSend() error {
	p.sendOnce.Do(func() { close(p.sendClosed) })
	return nil
}

func (p *memoryPair[T, R]) CloseResults() error {
	p.resultsOnce.Do(func() { close(p.resultsDone) })
	return nil
}

func (p *memoryPair[T, R]) Close() error {
	p.closeOnce.Do(func() {
		p.CloseSend()
		p.CloseResults()
		close(p.closed)
	})
	return nil
}
