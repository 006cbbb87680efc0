package motion

import "math"

// MechanicalConfig describes the drive train of the axis.
type MechanicalConfig struct {
	StepsPerTurn int     // Full steps per motor revolution
	Resolution   int     // Microsteps per full step: 1, 2, 4, 8 or 16
	MMPerTurn    float64 // Carriage travel per revolution
}

// DefaultMechanics is a 1.8 degree motor at 1/16 microstepping on a 4 mm
// lead screw.
func DefaultMechanics() MechanicalConfig {
	return MechanicalConfig{StepsPerTurn: 200, Resolution: 16, MMPerTurn: 4.0}
}

// ValidResolution reports whether r is a supported microstep resolution.
func ValidResolution(r int) bool {
	switch r {
	case 1, 2, 4, 8, 16:
		return true
	}
	return false
}

// Validate checks the configuration.
func (m MechanicalConfig) Validate() error {
	if err := m.checkGeometry(); err != nil {
		return err
	}
	if !ValidResolution(m.Resolution) {
		return configError("mechanics", "invalid step mode %d", m.Resolution)
	}
	return nil
}

func (m MechanicalConfig) checkGeometry() error {
	if m.StepsPerTurn <= 0 {
		return configError("mechanics", "steps per turn must be positive, got %d", m.StepsPerTurn)
	}
	if !(m.MMPerTurn > 0) || math.IsInf(m.MMPerTurn, 0) {
		return configError("mechanics", "mm per turn must be positive, got %g", m.MMPerTurn)
	}
	if m.Resolution <= 0 {
		return configError("mechanics", "resolution must be positive, got %d", m.Resolution)
	}
	return nil
}

// microstepsPerTurn is steps_per_turn * resolution
func (m MechanicalConfig) microstepsPerTurn() float64 {
	return float64(m.StepsPerTurn) * float64(m.Resolution)
}

// MMToSteps converts a distance to steps, rounding to the nearest step.
// Results outside the driver's signed 32-bit counter are a range error.
func (m MechanicalConfig) MMToSteps(mm float64) (int64, error) {
	if err := m.checkGeometry(); err != nil {
		return 0, err
	}
	if math.IsNaN(mm) || math.IsInf(mm, 0) {
		return 0, preconditionError("convert", ReasonBadArgs, "distance %g is not a number", mm)
	}
	steps := math.Round(mm * m.microstepsPerTurn() / m.MMPerTurn)
	if steps > math.MaxInt32 || steps < math.MinInt32 {
		return 0, rangeError("convert", ReasonSoftLimit, "%g mm is outside the position counter", mm)
	}
	return int64(steps), nil
}

// StepsToMM converts steps to a distance. The conversion is exact.
func (m MechanicalConfig) StepsToMM(steps int64) (float64, error) {
	if err := m.checkGeometry(); err != nil {
		return 0, err
	}
	return float64(steps) * m.MMPerTurn / m.microstepsPerTurn(), nil
}

// SpeedToStepRate converts a feed rate in mm/min to steps per second.
func (m MechanicalConfig) SpeedToStepRate(mmPerMin float64) (float64, error) {
	if err := m.checkGeometry(); err != nil {
		return 0, err
	}
	return mmPerMin * m.microstepsPerTurn() / (60 * m.MMPerTurn), nil
}

// StepResolutionMM is the travel of a single step.
func (m MechanicalConfig) StepResolutionMM() float64 {
	return m.MMPerTurn / m.microstepsPerTurn()
}
