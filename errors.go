package qmdd

import (
	"fmt"

	"github.com/kegliz/qmdd/internal/qmdd/measure"
)

// Error kinds of spec §7, each a distinct type so callers can use
// errors.As, matching the teacher's qc/dag/errors.go sentinel-error
// convention. ErrNotUnitary and ErrShutdown are the types Context methods
// return. ErrTableFull, ErrInvalidHandle and ErrUnknownGate are declared
// here but no Context method returns them: table-full, invalid-handle and
// unknown-gate failures arrive as the weight, nodetable and gatelib
// packages' own error types, unconverted.

// ErrTableFull reports that a WeightStore or NodeTable ran out of
// room within its bounded probe sequence.
type ErrTableFull struct {
	Table    string
	Capacity uint64
}

func (e *ErrTableFull) Error() string {
	return fmt.Sprintf("qmdd: %s table full (capacity %d)", e.Table, e.Capacity)
}

// ErrInvalidHandle reports a stale or out-of-range weight/node handle.
type ErrInvalidHandle struct {
	Table  string
	Handle uint64
}

func (e *ErrInvalidHandle) Error() string {
	return fmt.Sprintf("qmdd: invalid %s handle %d", e.Table, e.Handle)
}

// ErrUnknownGate reports a gate id that is neither predefined nor a
// currently-live dynamic slot.
type ErrUnknownGate struct {
	GateID GateID
}

func (e *ErrUnknownGate) Error() string {
	return fmt.Sprintf("qmdd: unknown gate id %d", e.GateID)
}

// ErrNotUnitary reports that a measurement encountered a probability
// sum that was not within tolerance of 1; the state is left unchanged.
type ErrNotUnitary = measure.ErrNotUnitary

// ErrShutdown is returned by the Context methods that check for shutdown
// (see Context.Shutdown) when called after Shutdown.
type ErrShutdown struct{}

func (e *ErrShutdown) Error() string { return "qmdd: context has been shut down" }
