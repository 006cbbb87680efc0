// Package periph drives the axis GPIO lines of a Linux single board computer
// through periph.io. Pin n is the line named "GPIOn" in the periph registry.
package periph

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"linaxis/core"
)

// Init loads the periph host drivers. Call it once before NewGPIODriver.
func Init() error {
	if _, err := host.Init(); err != nil {
		return errors.Wrap(err, "periph host init")
	}
	return nil
}

// GPIODriver implements core.GPIODriver on periph.io pins.
type GPIODriver struct {
	mu     sync.Mutex
	lookup func(name string) gpio.PinIO
	// Track configured pins
	pins map[core.GPIOPin]gpio.PinIO
}

// NewGPIODriver resolves pins through the periph registry.
func NewGPIODriver() *GPIODriver {
	return &GPIODriver{
		lookup: gpioreg.ByName,
		pins:   make(map[core.GPIOPin]gpio.PinIO),
	}
}

func (d *GPIODriver) resolve(pin core.GPIOPin) (gpio.PinIO, error) {
	name := fmt.Sprintf("GPIO%d", pin)
	p := d.lookup(name)
	if p == nil {
		return nil, errors.Errorf("no such pin %s", name)
	}
	return p, nil
}

func (d *GPIODriver) configure(pin core.GPIOPin, setup func(gpio.PinIO) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.resolve(pin)
	if err != nil {
		return err
	}
	if err := setup(p); err != nil {
		return errors.Wrapf(err, "configure %s", p.Name())
	}
	d.pins[pin] = p
	return nil
}

// ConfigureOutput configures a pin as a digital output, initially low
func (d *GPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	return d.configure(pin, func(p gpio.PinIO) error { return p.Out(gpio.Low) })
}

func (d *GPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	return d.configure(pin, func(p gpio.PinIO) error { return p.In(gpio.PullUp, gpio.NoEdge) })
}

func (d *GPIODriver) ConfigureInputPullDown(pin core.GPIOPin) error {
	return d.configure(pin, func(p gpio.PinIO) error { return p.In(gpio.PullDown, gpio.NoEdge) })
}

// SetPin drives an output. Unconfigured pins are made outputs first.
func (d *GPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	d.mu.Lock()
	p, ok := d.pins[pin]
	d.mu.Unlock()
	if !ok {
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
		d.mu.Lock()
		p = d.pins[pin]
		d.mu.Unlock()
	}
	return errors.Wrapf(p.Out(gpio.Level(value)), "set %s", p.Name())
}

// ReadPin samples a configured pin.
func (d *GPIODriver) ReadPin(pin core.GPIOPin) (bool, error) {
	d.mu.Lock()
	p, ok := d.pins[pin]
	d.mu.Unlock()
	if !ok {
		return false, errors.Errorf("pin GPIO%d not configured", pin)
	}
	return p.Read() == gpio.High, nil
}
