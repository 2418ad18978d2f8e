// Package types defines the core data model, lifecycle states and error
// taxonomy shared by the pool, transport and worker packages.
package types

// WorkItem carries a single input value through a channel pair.
type WorkItem[T any] struct {
	// Seq is the dispatch sequence index, unique for the life of a pool
	Seq int64

	// Payload is the input value
	Payload T
}

// Chunk is the only message a coordinator sends to a worker unit. Single-item
// dispatch uses one-element chunks; item order inside a chunk is preserved
// end to end.
type Chunk[T any] struct {
	// Items holds the chunk inputs in dispatch order
	Items []WorkItem[T]
}

// Len returns the number of items in the chunk.
func (c Chunk[T]) Len() int { return len(c.Items) }

// ResultItem is one slot of a result chunk. Exactly one of Value or Err is
// meaningful: a non-nil Err marks a failure at this position.
type ResultItem[R any] struct {
	// Seq echoes the sequence index of the originating input
	Seq int64

	// Worker is the id of the unit that produced this item
	Worker int

	// Value is the transformation output
	Value R

	// Err is the failure envelope, nil on success
	Err *ErrorEnvelope
}

// ResultChunk is the message a worker unit sends back for each input chunk.
// Item order matches the input chunk; a failing unit appends the envelope for
// the in-flight input and flushes whatever preceded it.
type ResultChunk[R any] struct {
	// Items holds the chunk results in input order
	Items []ResultItem[R]
}

// Len returns the number of items in the chunk.
func (c ResultChunk[R]) Len() int { return len(c.Items) }

// Result is the caller-facing output of a stream. Every result carries its
// originating input, so consumption is already zipped input-to-output.
type Result[T, R any] struct {
	// Index is the dispatch sequence index of the input
	Index int64

	// Worker is the id of the unit that produced the value
	Worker int

	// Input is the originating input value
	Input T

	// Value is the transformation output
	Value R
}
