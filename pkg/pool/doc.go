/*
Package pool provides the coordinator for parallel mapping over a fixed
fleet of isolated worker units, with lazy dispatch and streamed results.

# Overview

A Pool owns N worker units, each with a private channel pair and its own
goroutine. Inputs are read lazily from the caller's channel or slice,
grouped into chunks and dispatched round-robin to units with spare
in-flight capacity. Results stream back through a per-session Stream:
- Ordered or arrival-order delivery
- Bounded intake: one accumulating chunk plus the workers' in-flight bound
- Optional rate limiting of input intake
- Failure envelopes surfaced as typed errors, printed exactly once
- Session reuse over one fleet for repeated mapping runs

# Core Components

## Pool

The caller-facing handle. Construction opens every channel pair and
starts every unit, rolling back completely on any failure. An abandoned
Pool is closed by a finalizer; deterministic cleanup goes through Close.

## Stream

One mapping session. Next yields results until the stream reports done
or a failure ends it. Collect and BlockIgnoreOutput wrap Next for the
common consumption patterns.

## coordinator

Internal shared state: the dispatcher goroutine feeding units, one pump
goroutine per unit draining its results, and the lifecycle machinery
(state transitions, join-with-timeout shutdown, channel release).

# Failure Semantics

Worker failures do not tear down sibling units. Each failure travels as
an envelope in the result stream, is handed to the configured
ErrorPrinter exactly once, and ends its stream with a WorkerError at the
failed input's position (ordered mode) or on arrival. Channel faults
surface as ChannelError. A surfaced failure closes the pool; only a
cleanly drained pool may be reused.

# Shutdown

Close half-closes the work direction of every pair, waits up to
JoinTimeout for units and pumps to exit while discarding tail results,
then releases every channel pair. Close is idempotent; whatever the
outcome, the pool holds no channels afterwards.
*/
package pool
