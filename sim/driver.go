package sim

import (
	"fmt"

	"linaxis/core"
)

// Driver emulates the stepper driver chip. The step counter counts every
// pulse taken while the bridges are on; the carriage follows it until it
// reaches a hard stop, where steps are lost.
type Driver struct {
	m *Machine

	// Guarded by interrupt masking.
	pos        int32
	carriage   int32
	powered    bool
	resolution int
	faults     core.DriverStatus
	params     map[core.ElectricalParam]float64
	lastDir    bool
}

func newDriver(m *Machine, carriage int32) *Driver {
	d := &Driver{m: m, carriage: carriage}
	d.defaults()
	return d
}

func (d *Driver) defaults() {
	d.pos = 0
	d.powered = false
	d.resolution = 16
	d.params = map[core.ElectricalParam]float64{
		core.ParamTorque:      600,
		core.ParamOverCurrent: 3000,
		core.ParamTimeOff:     21,
		core.ParamTimeOn:      21,
		core.ParamTimeFast:    10,
	}
}

// step applies n pulses. Interrupts are disabled.
func (d *Driver) step(n int64, forward bool) {
	if !d.powered || n == 0 {
		return
	}
	d.lastDir = forward
	if !forward {
		n = -n
	}
	d.pos = int32(int64(d.pos) + n)
	d.carriage = d.m.clamp(int64(d.carriage) + n)
}

// fold settles the pulses the timer has emitted so far, so that a power
// change only affects the pulses that follow. Interrupts are disabled.
func (d *Driver) fold() {
	t := d.m.timer
	if !t.armed {
		return
	}
	now := core.GetTime()
	n := t.emitted(now)
	d.step(n, t.forward)
	t.count -= uint16(n)
	t.armTick = now
}

func (d *Driver) inflight() int64 {
	if !d.powered {
		return 0
	}
	return d.m.timer.inflight()
}

func (d *Driver) liveCarriage() int32 {
	return d.m.clamp(int64(d.carriage) + d.inflight())
}

// AbsolutePosition implements core.StepDriver.
func (d *Driver) AbsolutePosition() (int32, error) {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	return int32(int64(d.pos) + d.inflight()), nil
}

// SetAbsolutePosition implements core.StepDriver.
func (d *Driver) SetAbsolutePosition(pos int32) error {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	d.pos = int32(int64(pos) - d.inflight())
	return nil
}

// Status implements core.StepDriver.
func (d *Driver) Status() (core.DriverStatus, error) {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	st := d.faults
	st.HighZ = !d.powered
	st.Direction = d.lastDir
	return st, nil
}

// SetPowerOutputs implements core.StepDriver.
func (d *Driver) SetPowerOutputs(enabled bool) error {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	if d.powered != enabled {
		d.fold()
	}
	d.powered = enabled
	return nil
}

// SetStepMode implements core.StepDriver.
func (d *Driver) SetStepMode(resolution int) error {
	switch resolution {
	case 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("sim: invalid step mode %d", resolution)
	}
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	if d.powered {
		return fmt.Errorf("sim: step mode change with bridges enabled")
	}
	d.resolution = resolution
	d.pos = 0
	return nil
}

// SetElectrical implements core.StepDriver.
func (d *Driver) SetElectrical(p core.ElectricalParam, value float64) error {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	d.params[p] = value
	return nil
}

// Electrical implements core.StepDriver.
func (d *Driver) Electrical(p core.ElectricalParam) (float64, error) {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	v, ok := d.params[p]
	if !ok {
		return 0, fmt.Errorf("sim: unknown parameter %d", p)
	}
	return v, nil
}

// Reset implements core.StepDriver.
func (d *Driver) Reset() error {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	d.carriage = d.liveCarriage()
	d.defaults()
	d.faults = core.DriverStatus{}
	return nil
}

// InjectFaults sets status flags the next Status read reports.
func (d *Driver) InjectFaults(st core.DriverStatus) {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	d.faults = st
}

// Resolution returns the configured step mode.
func (d *Driver) Resolution() int {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	return d.resolution
}
