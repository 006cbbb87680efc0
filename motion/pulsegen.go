package motion

import (
	"math"

	"periph.io/x/conn/v3/physic"
)

const (
	maxRegister = 0xFFFF
	// Prescaler candidates are 2^k - 1 for k in [0, prescalerSteps).
	prescalerSteps = 17
)

// TimerSetting is a prescaler/reload register pair.
type TimerSetting struct {
	Prescaler uint16
	Reload    uint16
}

// divisor is the number of input clocks per output pulse.
func (s TimerSetting) divisor() uint64 {
	return 2 * (uint64(s.Prescaler) + 1) * (uint64(s.Reload) + 1)
}

// Rate is the pulse rate the setting produces from clock.
func (s TimerSetting) Rate(clock physic.Frequency) physic.Frequency {
	return clock / physic.Frequency(s.divisor())
}

// RateHz is Rate as a float, for comparisons at sub-hertz rates.
func (s TimerSetting) RateHz(clock physic.Frequency) float64 {
	return float64(clock) / float64(physic.Hertz) / float64(s.divisor())
}

// TimerSettings picks the register pair whose rate is closest to rate
// (pulses per second) using the smallest workable prescaler. Rates too slow
// to represent clamp both registers to their maximum.
func TimerSettings(rate float64, clock physic.Frequency) (TimerSetting, error) {
	if math.IsNaN(rate) || rate <= 0 {
		return TimerSetting{}, preconditionError("pulsegen", ReasonBadArgs, "step rate %g must be positive", rate)
	}
	if clock <= 0 {
		return TimerSetting{}, configError("pulsegen", "timer clock %s must be positive", clock)
	}
	clockHz := float64(clock) / float64(physic.Hertz)
	q := clockHz / (2 * rate)
	if q < 1 {
		return TimerSetting{}, preconditionError("pulsegen", ReasonBadArgs, "step rate %g above timer limit %g", rate, clockHz/2)
	}
	if q > math.MaxUint64/2 {
		return TimerSetting{Prescaler: maxRegister, Reload: maxRegister}, nil
	}
	quotient := uint64(q)
	for k := 0; k < prescalerSteps; k++ {
		div := uint64(1) << k
		if quotient/div <= maxRegister {
			return TimerSetting{
				Prescaler: uint16(div - 1),
				Reload:    uint16(quotient/div - 1),
			}, nil
		}
	}
	return TimerSetting{Prescaler: maxRegister, Reload: maxRegister}, nil
}
