// Package transport implements the channel pairs connecting a pool
// coordinator to its worker units.
//
// A Pair is one worker's bidirectional link: a work direction carrying input
// chunks from the coordinator and a result direction carrying result chunks
// back. Each direction can be half-closed independently, and closing a pair
// wakes any receiver blocked on it. Two transports are provided:
//
//   - Memory: bounded in-process channels, the default.
//   - Pipes: OS pipes with gob framing, giving each pair real file
//     descriptors so resource accounting can be verified externally.
package transport

import (
	"context"

	"github.com/jzx17/parmap/pkg/types"
)

// Pair is one worker unit's bidirectional channel pair. The coordinator uses
// SendWork/RecvResults and CloseSend; the unit uses RecvWork/SendResults and
// CloseResults; Close releases both directions.
type Pair[T, R any] interface {
	// SendWork delivers an input chunk to the unit, blocking while the work
	// direction is full
	SendWork(ctx context.Context, chunk types.Chunk[T]) error

	// RecvWork blocks for the next input chunk. It drains chunks already in
	// flight after CloseSend, then reports ErrChannelClosed
	RecvWork(ctx context.Context) (types.Chunk[T], error)

	// SendResults delivers a result chunk to the coordinator
	SendResults(ctx context.Context, chunk types.ResultChunk[R]) error

	// RecvResults blocks for the next result chunk. It drains chunks already
	// in flight after CloseResults, then reports ErrChannelClosed
	RecvResults(ctx context.Context) (types.ResultChunk[R], error)

	// CloseSend half-closes the work direction, signalling input exhaustion
	// to the unit. Idempotent
	CloseSend() error

	// CloseResults half-closes the result direction, signalling that the
	// unit will produce nothing more. Idempotent
	CloseResults() error

	// Close releases every resource held by the pair and wakes all blocked
	// receivers. Idempotent
	Close() error
}

// Factory builds the pair for one worker slot. The pool calls it once per
// slot during construction and rolls back already-built pairs if any call
// fails.
type Factory[T, R any] func(worker int) (Pair[T, R], error)
