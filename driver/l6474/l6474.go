// Package l6474 drives an ST L6474 stepper driver over SPI.
//
// The chip shifts one byte per chip-select frame, so every byte of a
// command is its own transfer with CS toggled around it.
package l6474

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"

	"linaxis/core"
)

// Config holds the pins and base parameters applied on every reset.
type Config struct {
	CS    core.GPIOPin
	Reset core.GPIOPin // STBY/RESET, active low

	Resolution  int
	Torque      physic.ElectricCurrent
	OverCurrent physic.ElectricCurrent
	TimeOn      time.Duration
	TimeOff     time.Duration
	TimeFast    time.Duration
}

// DefaultConfig is 1/16 microstepping at 600 mA with a 3 A overcurrent
// threshold.
func DefaultConfig() Config {
	return Config{
		Resolution:  16,
		Torque:      600 * physic.MilliAmpere,
		OverCurrent: 3000 * physic.MilliAmpere,
		TimeOn:      21 * time.Microsecond,
		TimeOff:     21 * time.Microsecond,
		TimeFast:    10 * time.Microsecond,
	}
}

// Device is an L6474 on an SPI bus. It implements core.StepDriver.
type Device struct {
	bus   drivers.SPI
	gpio  core.GPIODriver
	cfg   Config
	sleep func(time.Duration)
}

// New returns a device. Call Configure before use.
func New(bus drivers.SPI, gpio core.GPIODriver, cfg Config) *Device {
	return &Device{bus: bus, gpio: gpio, cfg: cfg, sleep: time.Sleep}
}

// Configure sets up the control pins and resets the chip.
func (d *Device) Configure() error {
	if err := d.gpio.ConfigureOutput(d.cfg.CS); err != nil {
		return errors.Wrap(err, "l6474: configure CS pin")
	}
	if err := d.gpio.SetPin(d.cfg.CS, true); err != nil {
		return errors.Wrap(err, "l6474: release CS")
	}
	if err := d.gpio.ConfigureOutput(d.cfg.Reset); err != nil {
		return errors.Wrap(err, "l6474: configure reset pin")
	}
	return d.Reset()
}

// Reset pulses STBY/RESET and writes the base parameters.
func (d *Device) Reset() error {
	if err := d.gpio.SetPin(d.cfg.Reset, false); err != nil {
		return errors.Wrap(err, "l6474: assert reset")
	}
	d.sleep(time.Millisecond)
	if err := d.gpio.SetPin(d.cfg.Reset, true); err != nil {
		return errors.Wrap(err, "l6474: release reset")
	}
	d.sleep(time.Millisecond)

	// Reading the status clears latched flags from power-up.
	if _, err := d.Status(); err != nil {
		return err
	}
	if err := d.SetStepMode(d.cfg.Resolution); err != nil {
		return err
	}
	params := []struct {
		p core.ElectricalParam
		v float64
	}{
		{core.ParamTorque, milliamps(d.cfg.Torque)},
		{core.ParamOverCurrent, milliamps(d.cfg.OverCurrent)},
		{core.ParamTimeOn, micros(d.cfg.TimeOn)},
		{core.ParamTimeOff, micros(d.cfg.TimeOff)},
		{core.ParamTimeFast, micros(d.cfg.TimeFast)},
	}
	for _, p := range params {
		if err := d.SetElectrical(p.p, p.v); err != nil {
			return err
		}
	}
	return nil
}

// AbsolutePosition reads ABS_POS.
func (d *Device) AbsolutePosition() (int32, error) {
	v, err := d.getParam(regAbsPos)
	if err != nil {
		return 0, err
	}
	return decodeAbsPos(v), nil
}

// SetAbsolutePosition writes ABS_POS. The register holds 22 bits.
func (d *Device) SetAbsolutePosition(pos int32) error {
	v, ok := encodeAbsPos(pos)
	if !ok {
		return errors.Errorf("l6474: position %d outside the 22-bit counter", pos)
	}
	return d.setParam(regAbsPos, v)
}

// Status reads and clears the status register.
func (d *Device) Status() (core.DriverStatus, error) {
	v, err := d.command(cmdGetStatus, 2)
	if err != nil {
		return core.DriverStatus{}, errors.Wrap(err, "l6474: get status")
	}
	return decodeStatus(uint16(v)), nil
}

func decodeStatus(v uint16) core.DriverStatus {
	return core.DriverStatus{
		HighZ:           v&statusHiZ != 0,
		Direction:       v&statusDir != 0,
		NotPerformed:    v&statusNotPerfCmd != 0,
		WrongCommand:    v&statusWrongCmd != 0,
		UnderVoltage:    v&statusUVLO == 0,
		ThermalWarning:  v&statusThWrn == 0,
		ThermalShutdown: v&statusThSD == 0,
		OverCurrent:     v&statusOCD == 0,
		Raw:             v,
	}
}

// SetPowerOutputs enables or disables the power bridges.
func (d *Device) SetPowerOutputs(enabled bool) error {
	cmd := byte(cmdDisable)
	if enabled {
		cmd = cmdEnable
	}
	if _, err := d.command(cmd, 0); err != nil {
		return errors.Wrapf(err, "l6474: power outputs %v", enabled)
	}
	return nil
}

// SetStepMode writes STEP_SEL. The chip only accepts it with the bridges
// disabled.
func (d *Device) SetStepMode(resolution int) error {
	sel, ok := stepSel(resolution)
	if !ok {
		return errors.Errorf("l6474: invalid step mode %d", resolution)
	}
	return d.setParam(regStepMode, uint32(stepModeFixed|sel))
}

// SetElectrical writes a parameter given in mA or us.
func (d *Device) SetElectrical(p core.ElectricalParam, value float64) error {
	switch p {
	case core.ParamTorque:
		return d.setParam(regTVal, encodeCurrent(current(value), tvalStep, tvalMax))
	case core.ParamOverCurrent:
		return d.setParam(regOcdTh, encodeCurrent(current(value), ocdStep, ocdMax))
	case core.ParamTimeOn:
		return d.setParam(regTOnMin, encodeTime(nanos(value), tonStepNs, tonMax))
	case core.ParamTimeOff:
		return d.setParam(regTOffMin, encodeTime(nanos(value), tonStepNs, tonMax))
	case core.ParamTimeFast:
		old, err := d.getParam(regTFast)
		if err != nil {
			return err
		}
		v := old&0xF0 | encodeTime(nanos(value), fastStep, fastMax)
		return d.setParam(regTFast, v)
	}
	return errors.Errorf("l6474: unknown parameter %d", p)
}

// Electrical reads a parameter back in mA or us.
func (d *Device) Electrical(p core.ElectricalParam) (float64, error) {
	var reg byte
	switch p {
	case core.ParamTorque:
		reg = regTVal
	case core.ParamOverCurrent:
		reg = regOcdTh
	case core.ParamTimeOn:
		reg = regTOnMin
	case core.ParamTimeOff:
		reg = regTOffMin
	case core.ParamTimeFast:
		reg = regTFast
	default:
		return 0, errors.Errorf("l6474: unknown parameter %d", p)
	}
	v, err := d.getParam(reg)
	if err != nil {
		return 0, err
	}
	switch p {
	case core.ParamTorque:
		return milliamps(decodeCurrent(v&tvalMax, tvalStep)), nil
	case core.ParamOverCurrent:
		return milliamps(decodeCurrent(v&ocdMax, ocdStep)), nil
	case core.ParamTimeFast:
		return float64(decodeTime(v&fastMax, fastStep)) / 1000, nil
	default:
		return float64(decodeTime(v&tonMax, tonStepNs)) / 1000, nil
	}
}

func (d *Device) setParam(reg byte, v uint32) error {
	n := paramLen(reg)
	if err := d.xfer(cmdSetParam | reg); err != nil {
		return errors.Wrapf(err, "l6474: set param %#02x", reg)
	}
	for i := n - 1; i >= 0; i-- {
		if _, err := d.transfer(byte(v >> (8 * i))); err != nil {
			return errors.Wrapf(err, "l6474: set param %#02x", reg)
		}
	}
	return nil
}

func (d *Device) getParam(reg byte) (uint32, error) {
	v, err := d.command(cmdGetParam|reg, paramLen(reg))
	if err != nil {
		return 0, errors.Wrapf(err, "l6474: get param %#02x", reg)
	}
	return v, nil
}

// command sends cmd and clocks in n response bytes, MSB first.
func (d *Device) command(cmd byte, n int) (uint32, error) {
	if err := d.xfer(cmd); err != nil {
		return 0, err
	}
	var v uint32
	for i := 0; i < n; i++ {
		b, err := d.transfer(cmdNop)
		if err != nil {
			return 0, err
		}
		v = v<<8 | uint32(b)
	}
	return v, nil
}

func (d *Device) xfer(b byte) error {
	_, err := d.transfer(b)
	return err
}

// transfer shifts one byte in its own chip-select frame.
func (d *Device) transfer(b byte) (byte, error) {
	if err := d.gpio.SetPin(d.cfg.CS, false); err != nil {
		return 0, err
	}
	r, err := d.bus.Transfer(b)
	if cerr := d.gpio.SetPin(d.cfg.CS, true); err == nil {
		err = cerr
	}
	return r, err
}

func current(mA float64) physic.ElectricCurrent {
	return physic.ElectricCurrent(mA * float64(physic.MilliAmpere))
}

func milliamps(c physic.ElectricCurrent) float64 {
	return float64(c) / float64(physic.MilliAmpere)
}

func nanos(us float64) int64 {
	return int64(us * 1000)
}

func micros(d time.Duration) float64 {
	return float64(d) / float64(time.Microsecond)
}
