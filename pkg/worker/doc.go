/*
Package worker defines the worker unit contract and the harness that runs a
unit against its channel pair.

# Overview

A worker unit is the isolated execution site for the user transformation. It
owns no shared state: inputs arrive through a Source, outputs leave through a
Sink, and everything else stays inside the unit. The pool package starts one
unit per slot; this package defines what a unit is and how its lifecycle runs.

# Core Components

## Unit

The contract a unit implements:

	type Unit[T, R any] interface {
		Run(ctx context.Context, in *Source[T], out *Sink[R]) error
	}

Run pulls inputs with in.Next until it reports false, emits exactly one
output per pulled input with out.Emit, and returns. Returning an error, or
panicking, fails the unit: the failure is captured into an error envelope for
the in-flight input and the unit terminates. Units are not restarted.

## Source and Sink

Source.Next unpacks input chunks into single items and records the pairing
state the Sink uses: the k-th Emit answers the k-th pulled input. Sink.Emit
accumulates result items and flushes a result chunk at every input chunk
boundary, so chunked dispatch round-trips one result envelope per input
envelope. Both are owned by a single unit goroutine and are not safe for
concurrent use.

## Factories and adapters

A Factory builds the unit for one slot. FromFunc adapts a plain per-item
transformation, which is the common case:

	factory := worker.FromFunc(func(ctx context.Context, n int) (int, error) {
		return n * n, nil
	})

FromStream adapts a function with the full pull/emit shape for units that
hold per-unit state or batch their work.

## Run

Run is the harness the pool executes in each unit goroutine. It wires the
pair to a Source and Sink, invokes the unit with panic recovery, converts
failures into envelopes, flushes the trailing partial chunk, half-closes the
result direction and returns. Run returns a non-nil error only for channel
infrastructure faults; user transformation failures travel inside envelopes
and leave the unit's own exit clean.

# Failure Semantics

A failing unit answers its in-flight input with a ResultItem carrying the
envelope instead of a value, preceded by any results it had already produced
for the same chunk. Inputs after the failing one in that chunk are lost,
which the coordinator accounts for when it surfaces the failure. A unit that
exits without answering every pulled input produces a short-output envelope
for the first unanswered one.
*/
package worker
