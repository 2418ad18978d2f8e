package worker

import (
	"context"
	"errors"

	"github.com/jzx17/parmap/pkg/transport"
	"github.com/jzx17/parmap/pkg/types"
)

// Run is the harness executed in each unit goroutine. It wires the pair into
// a Source and Sink, invokes the unit with panic recovery, converts failures
// into envelopes for the in-flight input, flushes the trailing chunk and
// half-closes the result direction.
//
// The returned error reports channel infrastructure faults only. User
// transformation failures travel inside envelopes and leave the unit exit
// clean, so one failing transformation never tears down its siblings.
func Run[T, R any](ctx context.Context, worker int, pair transport.Pair[T, R], unit Unit[T, R]) error {
	shared := &pairing{}
	src := &Source[T]{worker: worker, recv: pair.RecvWork, pairing: shared}
	sink := &Sink[R]{worker: worker, send: pair.SendResults, pairing: shared}

	env := invoke(ctx, worker, unit, src, sink)

	if sink.sendErr != nil {
		pair.CloseResults()
		if isOrderlyShutdown(sink.sendErr) {
			return nil
		}
		return &types.ChannelError{Worker: worker, Op: "send", Cause: sink.sendErr}
	}

	if src.err != nil {
		pair.CloseResults()
		if isOrderlyShutdown(src.err) {
			return nil
		}
		return &types.ChannelError{Worker: worker, Op: "recv", Cause: src.err}
	}

	if env == nil && len(shared.pending) > 0 {
		env = types.NewErrorEnvelope(worker, types.ErrShortOutput)
	}

	if env != nil {
		seq := int64(-1)
		if len(shared.pending) > 0 {
			seq = shared.pending[0].seq
		}
		sink.items = append(sink.items, types.ResultItem[R]{Seq: seq, Worker: worker, Err: env})
		// best effort: the pair may already be tearing down under us
		_ = sink.flush(ctx)
	}

	pair.CloseResults()
	return nil
}

// invoke runs the unit body, capturing a returned error or panic into an
// envelope at this boundary so the trace still names the failing frames.
func invoke[T, R any](ctx context.Context, worker int, unit Unit[T, R], src *Source[T], sink *Sink[R]) (env *types.ErrorEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			env = types.NewPanicEnvelope(worker, r)
		}
	}()

	if err := unit.Run(ctx, src, sink); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// the unit is reporting the teardown back at us
			return nil
		}
		return types.NewErrorEnvelope(worker, err)
	}
	return nil
}

func isOrderlyShutdown(err error) bool {
	return errors.Is(err, types.ErrChannelClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
