package types

import "fmt"

// PackageState is the runtime state of one package within a run.
//
//	pending -> staged -> building -> succeeded | failed
//
// Any non-terminal state may also move to failed.
type PackageState string

const (
	StatePending   PackageState = "pending"
	StateStaged    PackageState = "staged"
	StateBuilding  PackageState = "building"
	StateSucceeded PackageState = "succeeded"
	StateFailed    PackageState = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s PackageState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Transition returns to if moving from s to to is allowed.
func (s PackageState) Transition(to PackageState) (PackageState, error) {
	if !allowedTransition(s, to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, to)
	}
	return to, nil
}

func allowedTransition(from, to PackageState) bool {
	switch from {
	case StatePending:
		return to == StateStaged || to == StateFailed
	case StateStaged:
		return to == StateBuilding || to == StateFailed
	case StateBuilding:
		return to == StateSucceeded || to == StateFailed
	default:
		return false
	}
}
