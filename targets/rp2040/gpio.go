//go:build rp2040

package main

import (
	"machine"

	"linaxis/core"
)

// bank0Pins is the number of user GPIOs on the RP2040.
const bank0Pins = 30

// gpioDriver implements core.GPIODriver on the RP2040's bank 0 pins. Pins
// map one to one to GPIO numbers.
type gpioDriver struct {
	pins map[core.GPIOPin]machine.Pin
}

func newGPIODriver() *gpioDriver {
	return &gpioDriver{pins: make(map[core.GPIOPin]machine.Pin)}
}

func (d *gpioDriver) configure(pin core.GPIOPin, mode machine.PinMode) error {
	if pin >= bank0Pins {
		return errPinRange
	}
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: mode})
	d.pins[pin] = p
	return nil
}

func (d *gpioDriver) ConfigureOutput(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinOutput)
}

func (d *gpioDriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInputPullup)
}

func (d *gpioDriver) ConfigureInputPullDown(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInputPulldown)
}

// SetPin drives an output, configuring the pin on first use.
func (d *gpioDriver) SetPin(pin core.GPIOPin, value bool) error {
	p, ok := d.pins[pin]
	if !ok {
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
		p = d.pins[pin]
	}
	p.Set(value)
	return nil
}

func (d *gpioDriver) ReadPin(pin core.GPIOPin) (bool, error) {
	p, ok := d.pins[pin]
	if !ok {
		return false, errPinNotConfigured
	}
	return p.Get(), nil
}
