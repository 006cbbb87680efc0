package sim

import (
	"fmt"

	"linaxis/core"
)

type pinMode uint8

const (
	pinUnused pinMode = iota
	pinOutput
	pinPullUp
	pinPullDown
)

// GPIO emulates the controller's GPIO bank. The reference pin reads the
// simulated sensor; every other pin reads back what was written.
type GPIO struct {
	m *Machine

	// Guarded by interrupt masking.
	modes  map[core.GPIOPin]pinMode
	levels map[core.GPIOPin]bool
}

func newGPIO(m *Machine) *GPIO {
	return &GPIO{
		m:      m,
		modes:  make(map[core.GPIOPin]pinMode),
		levels: make(map[core.GPIOPin]bool),
	}
}

func (g *GPIO) configure(pin core.GPIOPin, mode pinMode, level bool) error {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	g.modes[pin] = mode
	g.levels[pin] = level
	return nil
}

// ConfigureOutput implements core.GPIODriver.
func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	return g.configure(pin, pinOutput, false)
}

// ConfigureInputPullUp implements core.GPIODriver.
func (g *GPIO) ConfigureInputPullUp(pin core.GPIOPin) error {
	return g.configure(pin, pinPullUp, true)
}

// ConfigureInputPullDown implements core.GPIODriver.
func (g *GPIO) ConfigureInputPullDown(pin core.GPIOPin) error {
	return g.configure(pin, pinPullDown, false)
}

// SetPin implements core.GPIODriver.
func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	if g.modes[pin] != pinOutput {
		return fmt.Errorf("sim: pin %d is not an output", pin)
	}
	g.levels[pin] = value
	return nil
}

// ReadPin implements core.GPIODriver.
func (g *GPIO) ReadPin(pin core.GPIOPin) (bool, error) {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	if g.modes[pin] == pinUnused {
		return false, fmt.Errorf("sim: pin %d is not configured", pin)
	}
	if pin == g.m.cfg.ReferencePin {
		return g.sensorLevel(), nil
	}
	return g.levels[pin], nil
}

// sensorLevel is the electrical level of the reference line. Interrupts
// are disabled.
func (g *GPIO) sensorLevel() bool {
	triggered := g.m.driver.liveCarriage() <= 0
	return triggered != g.m.cfg.ReferenceActiveLow
}

// direction reports whether the direction line selects forward motion.
// Interrupts are disabled.
func (g *GPIO) direction() bool {
	return g.levels[g.m.cfg.DirectionPin] != g.m.cfg.InvertDirection
}
