package motion

import "linaxis/core"

// State is the derived readiness of the axis.
type State uint8

const (
	StateNotPowered State = iota
	StateNotReferenced
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateNotPowered:
		return "not-powered"
	case StateNotReferenced:
		return "not-referenced"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the axis.
type Status struct {
	State      State
	Faults     core.DriverStatus // Raw holds the status register bits
	Running    bool
	Powered    bool
	Referenced bool
	Homing     HomingState
	// LastErr is the failure of the last motion that ended on its own,
	// which is how asynchronous moves report execution errors.
	LastErr error
}

// deriveState maps flags to a state. Driver faults win over everything,
// then power, then reference.
func deriveState(faults core.DriverStatus, powered, referenced bool) State {
	switch {
	case faults.Faulted():
		return StateError
	case faults.HighZ || !powered:
		return StateNotPowered
	case !referenced:
		return StateNotReferenced
	default:
		return StateReady
	}
}
