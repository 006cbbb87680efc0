package core

import (
	"errors"

	"periph.io/x/conn/v3/physic"
)

// MaxPulseCount is the largest pulse count a single Arm can request. The
// counter register is 16 bits wide.
const MaxPulseCount = 0xFFFF

// ErrRateUnsupported is returned, possibly wrapped, by Configure when the
// timer cannot produce the programmed rate.
var ErrRateUnsupported = errors.New("pulse rate outside the timer's range")

// PulseTimer is a hardware timer that emits a bounded number of step
// pulses at a programmed rate, then raises a completion interrupt.
//
// The output rate is ClockFrequency / (2 * (prescaler+1) * (reload+1)):
// the timer toggles the step line on every reload, so one pulse takes two
// reload periods.
type PulseTimer interface {
	// Configure loads the prescaler and reload registers. The new values
	// apply from the next Arm. A setting the timer cannot produce fails
	// with ErrRateUnsupported.
	Configure(prescaler, reload uint16) error

	// Arm starts emitting count pulses. When the last pulse has been
	// emitted the completion handler runs in interrupt context.
	// Called with interrupts disabled.
	Arm(count uint16) error

	// Disable stops pulse output immediately. No completion interrupt is
	// raised for the pulses that were pending. Called with interrupts
	// disabled.
	Disable()

	// SetCompletionHandler registers the completion interrupt handler.
	SetCompletionHandler(fn func())

	// ClockFrequency is the timer input clock.
	ClockFrequency() physic.Frequency
}

// PulseTimerInfo describes a pulse timer implementation
type PulseTimerInfo struct {
	Name         string
	MaxStepRate  uint32 // Maximum pulses/second
	MinPulseNs   uint32 // Minimum step pulse width (ns)
	HardwareStop bool   // Disable takes effect without CPU involvement
}
