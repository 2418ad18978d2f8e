// Package types defines the failure taxonomy for pool operations
package types

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
)

// Predefined errors
var (
	// ErrPoolClosed indicates the pool is closed
	ErrPoolClosed = errors.New("pool is closed")

	// ErrStreamDone indicates an input session has been fully consumed
	ErrStreamDone = errors.New("stream is done")

	// ErrStreamActive indicates an input session is already in progress
	ErrStreamActive = errors.New("input stream already active")

	// ErrNoActiveStream indicates no input session is in progress
	ErrNoActiveStream = errors.New("no active input stream")

	// ErrInvalidInput indicates invalid input
	ErrInvalidInput = errors.New("invalid input")

	// ErrJoinTimeout indicates workers did not exit within the join timeout
	ErrJoinTimeout = errors.New("timed out waiting for workers to exit")

	// ErrChannelClosed indicates the channel pair direction is closed
	ErrChannelClosed = errors.New("channel pair is closed")

	// ErrEmitWithoutInput indicates a unit emitted an output with no pending input
	ErrEmitWithoutInput = errors.New("emit without a pending input")

	// ErrShortOutput indicates a unit exited before answering every pulled input
	ErrShortOutput = errors.New("unit exited before answering every pulled input")
)

// ErrorEnvelope is the immutable, transport-safe snapshot of a failure inside
// a worker unit. Only the envelope crosses the channel boundary; the original
// error value does not survive the crossing.
type ErrorEnvelope struct {
	// Worker is the id of the originating unit
	Worker int

	// Kind names the failure: the Go type of the error with pointer stars
	// stripped, or "panic" for recovered panics
	Kind string

	// Message is the error text or formatted panic value
	Message string

	// Trace is the goroutine stack formatted at the capture boundary
	Trace string
}

// NewErrorEnvelope captures a returned error into an envelope. The stack is
// formatted at the call site, so call it at the failure boundary.
func NewErrorEnvelope(worker int, err error) *ErrorEnvelope {
	return &ErrorEnvelope{
		Worker:  worker,
		Kind:    errorKind(err),
		Message: err.Error(),
		Trace:   captureStack(),
	}
}

// NewPanicEnvelope captures a recovered panic value into an envelope. Call it
// inside the deferred recover so the trace still includes the panicking frames.
func NewPanicEnvelope(worker int, v interface{}) *ErrorEnvelope {
	return &ErrorEnvelope{
		Worker:  worker,
		Kind:    "panic",
		Message: fmt.Sprintf("%v", v),
		Trace:   captureStack(),
	}
}

// String formats the envelope the way the default diagnostic printer shows it.
func (e *ErrorEnvelope) String() string {
	return fmt.Sprintf("worker %d: %s: %s", e.Worker, e.Kind, e.Message)
}

// errorKind names the dynamic type of err, stripping pointer indirections so
// *pkg.SomeError and pkg.SomeError read the same.
func errorKind(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "error"
	}
	return t.String()
}

func captureStack() string {
	var buf [4096]byte
	n := runtime.Stack(buf[:], false)
	return string(buf[:n])
}

// WorkerError reports that the user transformation failed inside a worker
// unit. It wraps the envelope that crossed the channel boundary and is the
// error a stream surfaces at the failing position.
type WorkerError struct {
	// Envelope is the failure snapshot received from the unit
	Envelope *ErrorEnvelope
}

// Error implements the error interface
func (e *WorkerError) Error() string {
	return e.Envelope.String()
}

// ConstructionError reports that a pool could not be built. Partially opened
// resources are rolled back before it is returned.
type ConstructionError struct {
	// Worker is the slot whose setup failed
	Worker int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ConstructionError) Error() string {
	return fmt.Sprintf("constructing worker %d: %v", e.Worker, e.Cause)
}

// Unwrap returns the underlying error
func (e *ConstructionError) Unwrap() error {
	return e.Cause
}

// ChannelError reports an infrastructure failure on a channel pair, distinct
// from a failure of the user transformation. It is fatal to the unit it names.
type ChannelError struct {
	// Worker is the unit whose channel failed
	Worker int

	// Op is the channel operation that failed
	Op string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s on worker %d: %v", e.Op, e.Worker, e.Cause)
}

// Unwrap returns the underlying error
func (e *ChannelError) Unwrap() error {
	return e.Cause
}

// IsWorkerFailure reports whether err carries a worker failure envelope, as
// opposed to an infrastructure or lifecycle error.
func IsWorkerFailure(err error) bool {
	var we *WorkerError
	return errors.As(err, &we)
}
