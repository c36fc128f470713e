package qmdd

import "github.com/kegliz/qmdd/internal/qmdd/gatelib"

// GateID identifies a 2x2 unitary registered in a Context's GateLibrary:
// a predefined static gate, a precomputed Rk/Rk-dagger phase gate, or a
// dynamically-registered Rx/Ry/Rz instance (spec §4.7).
type GateID = gatelib.ID

// Predefined static gate ids (spec §4.7).
const (
	I       = gatelib.I
	X       = gatelib.X
	Y       = gatelib.Y
	Z       = gatelib.Z
	H       = gatelib.H
	S       = gatelib.S
	Sdg     = gatelib.Sdg
	T       = gatelib.T
	Tdg     = gatelib.Tdg
	SqrtX   = gatelib.SqrtX
	SqrtXdg = gatelib.SqrtXdg
	SqrtY   = gatelib.SqrtY
	SqrtYdg = gatelib.SqrtYdg
)

// Rk returns the id of the Rk(k) phase gate, diag(1, exp(2*pi*i/2^k)).
// Rk(0) is the identity, Rk(1) is Z, Rk(2) is S, Rk(3) is T (spec §8).
func Rk(k int) (GateID, error) { return gatelib.Rk(k) }

// RkDagger returns the id of Rk†(k), diag(1, exp(-2*pi*i/2^k)).
func RkDagger(k int) (GateID, error) { return gatelib.RkDagger(k) }
