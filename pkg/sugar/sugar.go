// Package sugar provides one-call parallel mapping helpers for the
// common case of a plain transformation function. Each call builds a
// pool, runs one session over it and tears the pool down when the
// results are consumed; callers needing session reuse, custom
// transports or observers should use the pool package directly.
package sugar

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/jzx17/parmap/pkg/pool"
	"github.com/jzx17/parmap/pkg/types"
	"github.com/jzx17/parmap/pkg/worker"
)

// Option adjusts the pool configuration backing a helper call.
type Option func(*pool.Config)

// WithNumWorkers sets the number of worker units.
func WithNumWorkers(n int) Option {
	return func(cfg *pool.Config) {
		cfg.NumWorkers = n
	}
}

// WithInFlight sets the per-worker in-flight chunk bound.
func WithInFlight(n int) Option {
	return func(cfg *pool.Config) {
		cfg.InFlightPerWorker = n
	}
}

// WithRateLimit throttles input intake to one item per interval with
// the given burst.
func WithRateLimit(interval time.Duration, burst int) Option {
	return func(cfg *pool.Config) {
		cfg.Limiter = rate.NewLimiter(rate.Every(interval), burst)
	}
}

// WithErrorPrinter overrides where failure envelopes are printed.
func WithErrorPrinter(printer func(*types.ErrorEnvelope)) Option {
	return func(cfg *pool.Config) {
		cfg.ErrorPrinter = printer
	}
}

func build[T, R any](fn func(context.Context, T) (R, error), chunkSize int, ordered bool, opts []Option) (*pool.Pool[T, R], error) {
	cfg := pool.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.ChunkSize = chunkSize
	cfg.Ordered = ordered
	return pool.New(worker.FromFunc(fn), cfg)
}

// IMapOrdered maps fn over the channel with a fresh pool, streaming
// results in input order. The pool closes itself once the stream is
// consumed or fails.
func IMapOrdered[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), in <-chan T, opts ...Option) (*pool.Stream[T, R], error) {
	return imap(ctx, fn, in, 1, true, opts)
}

// IMapUnordered is IMapOrdered with results in arrival order.
func IMapUnordered[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), in <-chan T, opts ...Option) (*pool.Stream[T, R], error) {
	return imap(ctx, fn, in, 1, false, opts)
}

// IMapOrderedChunked is IMapOrdered with inputs dispatched in chunks
// of chunkSize.
func IMapOrderedChunked[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), in <-chan T, chunkSize int, opts ...Option) (*pool.Stream[T, R], error) {
	return imap(ctx, fn, in, chunkSize, true, opts)
}

func imap[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), in <-chan T, chunkSize int, ordered bool, opts []Option) (*pool.Stream[T, R], error) {
	p, err := build(fn, chunkSize, ordered, opts)
	if err != nil {
		return nil, err
	}
	s, err := p.IMap(ctx, in)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return s, nil
}

// MapOrdered maps fn over the slice with a fresh pool and returns the
// outputs in input order.
func MapOrdered[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), inputs []T, opts ...Option) ([]R, error) {
	return mapSlice(ctx, fn, inputs, 1, true, opts)
}

// MapUnordered is MapOrdered with outputs in arrival order.
func MapUnordered[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), inputs []T, opts ...Option) ([]R, error) {
	return mapSlice(ctx, fn, inputs, 1, false, opts)
}

// MapOrderedChunked is MapOrdered with inputs dispatched in chunks of
// chunkSize.
func MapOrderedChunked[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), inputs []T, chunkSize int, opts ...Option) ([]R, error) {
	return mapSlice(ctx, fn, inputs, chunkSize, true, opts)
}

func mapSlice[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), inputs []T, chunkSize int, ordered bool, opts []Option) ([]R, error) {
	p, err := build(fn, chunkSize, ordered, opts)
	if err != nil {
		return nil, err
	}
	s, err := p.IMapSlice(ctx, inputs)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	results, err := s.Collect(ctx)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	out := make([]R, len(results))
	for i, res := range results {
		out[i] = res.Value
	}
	return out, nil
}
