// Package pio emits step pulses from an RP2040 PIO state machine. One arm
// pushes a command word into the TX FIFO: the pulse count minus one in the
// low half and a delay count in the high half. After the last pulse the
// program pushes a token into the RX FIFO, whose not-empty interrupt is the
// completion interrupt.
package pio

import (
	"fmt"

	"periph.io/x/conn/v3/physic"

	"linaxis/core"
)

// cyclesPerUnit is one pass through the pulse loop with no delay (16 cycles
// high, 16 low), and also one pass through the delay loop.
const cyclesPerUnit = 32

const (
	maxDivider = 0xFFFF  // largest integer clock divider of a state machine
	maxUnits   = 0x10000 // base pass plus the largest delay count
)

var errSlowRate = fmt.Errorf("pio: below the slowest program rate: %w", core.ErrRateUnsupported)

// timing is what the program needs for one rate: the state machine clock
// divider and the delay passes added to each pulse. One pulse lasts
// divider*(delay+1) units.
type timing struct {
	divider uint16
	delay   uint16
}

// splitDivisor spreads the divisor (prescaler+1)(reload+1) of a toggling
// timer over the clock divider and the delay count. Divisors up to 65536 are
// exact; above that the delay rounds to the nearest unit.
func splitDivisor(prescaler, reload uint16) (timing, error) {
	d := (uint64(prescaler) + 1) * (uint64(reload) + 1)
	div := (d + maxUnits - 1) / maxUnits
	if div > maxDivider {
		return timing{}, errSlowRate
	}
	units := (d + div/2) / div
	if units > maxUnits {
		units = maxUnits
	}
	return timing{divider: uint16(div), delay: uint16(units - 1)}, nil
}

func (t timing) divisor() uint64 {
	return uint64(t.divider) * (uint64(t.delay) + 1)
}

// word is the command word for count pulses.
func (t timing) word(count uint16) uint32 {
	return uint32(t.delay)<<16 | uint32(count-1)
}

// timerClock is the clock a toggling timer would need to produce the same
// rates: one pulse is two reload periods, so the equivalent clock is the
// system clock over half a unit.
func timerClock(sysHz uint32) physic.Frequency {
	return physic.Frequency(sysHz) * physic.Hertz / (cyclesPerUnit / 2)
}

// pulseRate is the rate the program produces with t.
func pulseRate(sysHz uint32, t timing) physic.Frequency {
	return physic.Frequency(sysHz) * physic.Hertz / physic.Frequency(cyclesPerUnit*t.divisor())
}
