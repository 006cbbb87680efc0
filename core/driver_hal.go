package core

// DriverStatus is the decoded status register of a stepper driver chip.
type DriverStatus struct {
	HighZ           bool // Power bridges disabled
	Direction       bool // Last direction, true = forward
	NotPerformed    bool // Last command could not be executed
	WrongCommand    bool // Last command was not recognised
	UnderVoltage    bool
	ThermalWarning  bool
	ThermalShutdown bool
	OverCurrent     bool
	Raw             uint16
}

// Faulted reports a condition that stops the driver from moving.
func (s DriverStatus) Faulted() bool {
	return s.UnderVoltage || s.ThermalShutdown || s.OverCurrent
}

// ElectricalParam names a tunable driver parameter.
type ElectricalParam uint8

const (
	ParamTorque      ElectricalParam = iota // Phase current, mA
	ParamOverCurrent                        // Overcurrent detection threshold, mA
	ParamTimeOff                            // Minimum off time, us
	ParamTimeOn                             // Minimum on time, us
	ParamTimeFast                           // Fast decay / fall step time, us
)

func (p ElectricalParam) String() string {
	switch p {
	case ParamTorque:
		return "torque"
	case ParamOverCurrent:
		return "throvercurr"
	case ParamTimeOff:
		return "timeoff"
	case ParamTimeOn:
		return "timeon"
	case ParamTimeFast:
		return "timefast"
	default:
		return "unknown"
	}
}

// StepDriver is the register-level interface of the stepper driver chip.
// All methods are called from task context, never from an interrupt.
type StepDriver interface {
	// AbsolutePosition reads the driver's step counter. The driver counts
	// every pulse on its step input in the current direction.
	AbsolutePosition() (int32, error)

	// SetAbsolutePosition overwrites the step counter.
	SetAbsolutePosition(pos int32) error

	// Status reads and decodes the status register.
	Status() (DriverStatus, error)

	// SetPowerOutputs enables or disables the power bridges.
	SetPowerOutputs(enabled bool) error

	// SetStepMode selects the microstep resolution (1, 2, 4, 8 or 16).
	SetStepMode(resolution int) error

	// SetElectrical writes an electrical parameter in its natural unit.
	SetElectrical(p ElectricalParam, value float64) error

	// Electrical reads back an electrical parameter.
	Electrical(p ElectricalParam) (float64, error)

	// Reset pulses the driver's reset and restores its base parameters.
	Reset() error
}
