package worker

import (
	"context"
	"errors"

	"github.com/jzx17/parmap/pkg/types"
)

// Unit is a worker unit: the isolated execution site for the user
// transformation. Run pulls from in until it reports false and emits exactly
// one output per pulled input. A returned error or panic fails the unit.
type Unit[T, R any] interface {
	Run(ctx context.Context, in *Source[T], out *Sink[R]) error
}

// StreamFunc adapts a function with the full pull/emit shape to the Unit
// interface.
type StreamFunc[T, R any] func(ctx context.Context, in *Source[T], out *Sink[R]) error

// Run implements Unit.
func (f StreamFunc[T, R]) Run(ctx context.Context, in *Source[T], out *Sink[R]) error {
	return f(ctx, in, out)
}

// Factory builds the unit for one worker slot. The pool calls it once per
// slot during construction; an error aborts construction and rolls back.
type Factory[T, R any] func(worker int) (Unit[T, R], error)

// FromFunc adapts a per-item transformation into a unit factory. Every slot
// gets the same loop: pull an input, apply fn, emit the output.
func FromFunc[T, R any](fn func(ctx context.Context, input T) (R, error)) Factory[T, R] {
	return func(worker int) (Unit[T, R], error) {
		if fn == nil {
			return nil, errors.New("nil transformation")
		}
		return StreamFunc[T, R](func(ctx context.Context, in *Source[T], out *Sink[R]) error {
			for {
				input, ok := in.Next(ctx)
				if !ok {
					return nil
				}
				output, err := fn(ctx, input)
				if err != nil {
					return err
				}
				if err := out.Emit(ctx, output); err != nil {
					return err
				}
			}
		}), nil
	}
}

// FromStream adapts a StreamFunc into a unit factory, for units that keep
// per-unit state or batch their work.
func FromStream[T, R any](fn StreamFunc[T, R]) Factory[T, R] {
	return func(worker int) (Unit[T, R], error) {
		if fn == nil {
			return nil, errors.New("nil unit function")
		}
		return fn, nil
	}
}

// pendingInput tracks one pulled-but-unanswered input. last marks the final
// item of its input chunk, which is where the sink flushes.
type pendingInput struct {
	seq  int64
	last bool
}

// pairing is the pull/emit bookkeeping shared by a unit's Source and Sink.
// It is owned by the single unit goroutine.
type pairing struct {
	pending []pendingInput
}

// Source delivers inputs to a unit, unpacking chunks into single items.
type Source[T any] struct {
	worker  int
	recv    func(context.Context) (types.Chunk[T], error)
	buf     []types.WorkItem[T]
	pairing *pairing

	// err records a receive failure other than orderly closure
	err error
}

// Next returns the next input. It reports false when the input side is
// exhausted or the unit is being torn down; the unit should then return.
func (s *Source[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	if s.err != nil {
		return zero, false
	}
	for len(s.buf) == 0 {
		chunk, err := s.recv(ctx)
		if err != nil {
			if !errors.Is(err, types.ErrChannelClosed) {
				s.err = err
			}
			return zero, false
		}
		s.buf = chunk.Items
	}

	item := s.buf[0]
	s.buf = s.buf[1:]
	s.pairing.pending = append(s.pairing.pending, pendingInput{
		seq:  item.Seq,
		last: len(s.buf) == 0,
	})
	return item.Payload, true
}

// Sink carries outputs from a unit back to the coordinator.
type Sink[R any] struct {
	worker  int
	send    func(context.Context, types.ResultChunk[R]) error
	pairing *pairing
	items   []types.ResultItem[R]

	// sendErr records the first flush failure; the sink is dead after it
	sendErr error
}

// Emit answers the oldest pulled-but-unanswered input with value. At an
// input chunk boundary the accumulated results are flushed as one chunk.
func (k *Sink[R]) Emit(ctx context.Context, value R) error {
	if k.sendErr != nil {
		return k.sendErr
	}
	if len(k.pairing.pending) == 0 {
		return types.ErrEmitWithoutInput
	}

	p := k.pairing.pending[0]
	k.pairing.pending = k.pairing.pending[1:]
	k.items = append(k.items, types.ResultItem[R]{Seq: p.seq, Worker: k.worker, Value: value})

	if p.last {
		return k.flush(ctx)
	}
	return nil
}

func (k *Sink[R]) flush(ctx context.Context) error {
	if len(k.items) == 0 {
		return nil
	}
	chunk := types.ResultChunk[R]{Items: k.items}
	k.items = nil
	if err := k.send(ctx, chunk); err != nil {
		k.sendErr = err
		return err
	}
	return nil
}
