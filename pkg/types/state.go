// Package types defines pool lifecycle states
package types

// PoolState defines the lifecycle state of a pool.
//
// States move strictly forward: Constructed -> Running -> Draining -> Closed.
// The one sanctioned re-entry is Draining -> Running when a drained pool that
// keeps its workers alive accepts a new input session. Closed is terminal.
type PoolState int32

const (
	// StateConstructed pool has been built, workers idle, nothing dispatched
	StateConstructed PoolState = iota
	// StateRunning an input session is dispatching or results are pending
	StateRunning
	// StateDraining input exhausted, tail results still being collected
	StateDraining
	// StateClosed all workers joined and every channel released
	StateClosed
)

// String returns the string representation of PoolState.
func (ps PoolState) String() string {
	switch ps {
	case StateConstructed:
		return "Constructed"
	case StateRunning:
		return "Running"
	case StateDraining:
		return "Draining"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
