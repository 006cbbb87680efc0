// Package motion is the single-axis motion engine: unit conversion, pulse
// rate programming, chunked pulse counting, soft limits, homing and move
// orchestration on top of the core hardware interfaces.
package motion

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"linaxis/core"
)

// DefaultSpeed is the feed rate used when a move does not give one, mm/min.
const DefaultSpeed = 500.0

// Pins are the GPIO lines the engine drives directly.
type Pins struct {
	Direction          core.GPIOPin
	Reference          core.GPIOPin
	InvertDirection    bool // Drive the direction line low for positive moves
	ReferenceActiveLow bool // Sensor pulls the line low when triggered
}

// Config is the complete engine configuration.
type Config struct {
	Mechanics     MechanicalConfig
	Limits        Limits
	DefaultSpeed  float64       // mm/min
	HomingTimeout time.Duration // Zero means unbounded
	HomingPoll    time.Duration
	Pins          Pins
}

// DefaultConfig returns a 125 mm axis referenced at its lower end.
func DefaultConfig() Config {
	return Config{
		Mechanics:    DefaultMechanics(),
		Limits:       Limits{MinSteps: 0, MaxSteps: 100000, RefSteps: 0},
		DefaultSpeed: DefaultSpeed,
		HomingPoll:   10 * time.Millisecond,
		Pins: Pins{
			ReferenceActiveLow: true,
		},
	}
}

// Validate checks every field. It never mutates c.
func (c Config) Validate() error {
	if err := c.Mechanics.Validate(); err != nil {
		return err
	}
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if !(c.DefaultSpeed > 0) {
		return configError("config", "default speed must be positive, got %g", c.DefaultSpeed)
	}
	if c.HomingTimeout < 0 {
		return configError("config", "homing timeout must not be negative")
	}
	if c.HomingPoll <= 0 {
		return configError("config", "homing poll interval must be positive")
	}
	return nil
}

// Hardware bundles the collaborators the engine drives.
type Hardware struct {
	Driver core.StepDriver
	Timer  core.PulseTimer
	GPIO   core.GPIODriver
	Clock  core.Clock // Defaults to a system clock
}

// Engine owns all motion state of one axis. Requests are serialized: a move
// or reference arriving while another is in flight fails with ErrBusy.
// Cancel, Position and Status never block on a running request.
type Engine struct {
	driver  core.StepDriver
	timer   core.PulseTimer
	gpio    core.GPIODriver
	clock   core.Clock
	counter *PulseCounter
	log     logrus.FieldLogger

	// reqMu is held for the submission of a move and for a whole reference
	// run, never while a synchronous move waits.
	reqMu sync.Mutex

	cfgMu sync.RWMutex
	cfg   Config

	powered    atomic.Bool
	referenced atomic.Bool
	homing     atomic.Uint32
	abort      atomic.Bool
}

// NewEngine configures the GPIO lines and the driver's step mode and
// returns an unpowered, unreferenced engine.
func NewEngine(cfg Config, hw Hardware, log logrus.FieldLogger) (*Engine, error) {
	if hw.Driver == nil || hw.Timer == nil || hw.GPIO == nil {
		return nil, configError("init", "driver, timer and gpio are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hw.Clock == nil {
		hw.Clock = core.NewSystemClock()
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	e := &Engine{
		driver:  hw.Driver,
		timer:   hw.Timer,
		gpio:    hw.GPIO,
		clock:   hw.Clock,
		counter: NewPulseCounter(hw.Timer),
		log:     log,
		cfg:     cfg,
	}

	if err := hw.GPIO.ConfigureOutput(cfg.Pins.Direction); err != nil {
		return nil, hardwareError("init", err, "configure direction pin")
	}
	var err error
	if cfg.Pins.ReferenceActiveLow {
		err = hw.GPIO.ConfigureInputPullUp(cfg.Pins.Reference)
	} else {
		err = hw.GPIO.ConfigureInputPullDown(cfg.Pins.Reference)
	}
	if err != nil {
		return nil, hardwareError("init", err, "configure reference pin")
	}
	if err := hw.Driver.SetPowerOutputs(false); err != nil {
		return nil, hardwareError("init", err, "disable power outputs")
	}
	if err := hw.Driver.SetStepMode(cfg.Mechanics.Resolution); err != nil {
		return nil, hardwareError("init", err, "set step mode")
	}
	return e, nil
}

// Config returns a snapshot of the live configuration.
func (e *Engine) Config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// Counter exposes the pulse counter, for diagnostics.
func (e *Engine) Counter() *PulseCounter {
	return e.counter
}

// Cancel stops any motion in flight, including a reference run. It reports
// whether anything was stopped.
func (e *Engine) Cancel() bool {
	homing := HomingState(e.homing.Load()).active()
	if homing {
		e.abort.Store(true)
	}
	stopped := e.counter.Cancel()
	if stopped || homing {
		e.log.WithField("op", "cancel").Info("motion cancelled")
	}
	return stopped || homing
}

// Position returns the axis position in mm, read fresh from the driver.
func (e *Engine) Position() (float64, error) {
	steps, err := e.PositionSteps()
	if err != nil {
		return 0, err
	}
	return e.Config().Mechanics.StepsToMM(int64(steps))
}

// PositionSteps returns the driver's absolute step counter.
func (e *Engine) PositionSteps() (int32, error) {
	pos, err := e.driver.AbsolutePosition()
	if err != nil {
		return 0, hardwareError("position", err, "read absolute position")
	}
	return pos, nil
}

// Status reads the driver status register and derives the axis state.
func (e *Engine) Status() (Status, error) {
	st := Status{
		Running:    e.counter.Running(),
		Powered:    e.powered.Load(),
		Referenced: e.referenced.Load(),
		Homing:     HomingState(e.homing.Load()),
	}
	if out := e.counter.Outcome(); out != nil && !errors.Is(out, ErrCancelled) {
		st.LastErr = out
	}
	faults, err := e.driver.Status()
	if err != nil {
		st.State = StateError
		return st, hardwareError("status", err, "read driver status")
	}
	st.Faults = faults
	st.State = deriveState(faults, st.Powered, st.Referenced)
	return st, nil
}

// SetPower enables or disables the driver's power bridges. Switching off
// stops any motion first.
func (e *Engine) SetPower(on bool) error {
	if !on {
		e.Cancel()
	}
	return e.setPower(on)
}

func (e *Engine) setPower(on bool) error {
	if err := e.driver.SetPowerOutputs(on); err != nil {
		return hardwareError("power", err, "toggle power outputs")
	}
	e.powered.Store(on)
	e.log.WithFields(logrus.Fields{"op": "power", "on": on}).Debug("power outputs set")
	return nil
}

// SetStepMode changes the microstep resolution. The power outputs must be
// off. Limits keep their distance in mm; the axis must be referenced again.
func (e *Engine) SetStepMode(resolution int) error {
	if !ValidResolution(resolution) {
		return configError("stepmode", "invalid step mode %d", resolution)
	}
	if !e.reqMu.TryLock() {
		return preconditionError("stepmode", ReasonBusy, "request in progress")
	}
	defer e.reqMu.Unlock()
	if e.counter.Running() {
		return preconditionError("stepmode", ReasonBusy, "motion in progress")
	}
	if e.powered.Load() {
		return preconditionError("stepmode", ReasonPowered, "power outputs must be off")
	}

	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	mech := e.cfg.Mechanics
	mech.Resolution = resolution
	limits, err := rescaleLimits(e.cfg.Limits, e.cfg.Mechanics, mech)
	if err != nil {
		return err
	}
	if err := e.driver.SetStepMode(resolution); err != nil {
		return hardwareError("stepmode", err, "set step mode")
	}
	e.cfg.Mechanics = mech
	e.cfg.Limits = limits
	e.referenced.Store(false)
	e.log.WithFields(logrus.Fields{"op": "config", "resolution": resolution}).Info("step mode changed")
	return nil
}

// SetMechanics changes the drive train geometry. Limits keep their distance
// in mm; the axis must be referenced again.
func (e *Engine) SetMechanics(stepsPerTurn int, mmPerTurn float64) error {
	if !e.reqMu.TryLock() {
		return preconditionError("mechanics", ReasonBusy, "request in progress")
	}
	defer e.reqMu.Unlock()
	if e.counter.Running() {
		return preconditionError("mechanics", ReasonBusy, "motion in progress")
	}

	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	mech := e.cfg.Mechanics
	mech.StepsPerTurn = stepsPerTurn
	mech.MMPerTurn = mmPerTurn
	if err := mech.Validate(); err != nil {
		return err
	}
	limits, err := rescaleLimits(e.cfg.Limits, e.cfg.Mechanics, mech)
	if err != nil {
		return err
	}
	e.cfg.Mechanics = mech
	e.cfg.Limits = limits
	e.referenced.Store(false)
	e.log.WithFields(logrus.Fields{
		"op":             "config",
		"steps_per_turn": stepsPerTurn,
		"mm_per_turn":    mmPerTurn,
	}).Info("mechanics changed")
	return nil
}

// SetLimits replaces the soft limits after validating them.
func (e *Engine) SetLimits(l Limits) error {
	if err := l.Validate(); err != nil {
		return err
	}
	e.cfgMu.Lock()
	e.cfg.Limits = l
	e.cfgMu.Unlock()
	e.log.WithFields(logrus.Fields{
		"op":  "config",
		"min": l.MinSteps,
		"max": l.MaxSteps,
		"ref": l.RefSteps,
	}).Info("limits changed")
	return nil
}

// SetElectrical writes an electrical driver parameter.
func (e *Engine) SetElectrical(p core.ElectricalParam, value float64) error {
	if !(value > 0) {
		return preconditionError("config", ReasonBadArgs, "%s must be positive, got %g", p, value)
	}
	if err := e.driver.SetElectrical(p, value); err != nil {
		return hardwareError("config", err, "set "+p.String())
	}
	return nil
}

// Electrical reads an electrical driver parameter.
func (e *Engine) Electrical(p core.ElectricalParam) (float64, error) {
	v, err := e.driver.Electrical(p)
	if err != nil {
		return 0, hardwareError("config", err, "read "+p.String())
	}
	return v, nil
}

// Reset stops motion, resets the driver and forgets power and reference.
// The live step mode is written back after the reset.
func (e *Engine) Reset() error {
	e.Cancel()
	e.powered.Store(false)
	e.referenced.Store(false)
	e.homing.Store(uint32(HomingIdle))
	if err := e.driver.Reset(); err != nil {
		return hardwareError("reset", err, "reset driver")
	}
	// The chip comes back at its boot resolution.
	if err := e.driver.SetStepMode(e.Config().Mechanics.Resolution); err != nil {
		return hardwareError("reset", err, "restore step mode")
	}
	e.log.WithField("op", "reset").Info("driver reset")
	return nil
}

// rescaleLimits converts limits from one geometry to another, keeping their
// distances in mm.
func rescaleLimits(l Limits, from, to MechanicalConfig) (Limits, error) {
	if from == to {
		return l, nil
	}
	conv := func(steps int32) (int32, error) {
		mm, err := from.StepsToMM(int64(steps))
		if err != nil {
			return 0, err
		}
		n, err := to.MMToSteps(mm)
		return int32(n), err
	}
	var out Limits
	var err error
	if out.MinSteps, err = conv(l.MinSteps); err != nil {
		return l, err
	}
	if out.MaxSteps, err = conv(l.MaxSteps); err != nil {
		return l, err
	}
	if out.RefSteps, err = conv(l.RefSteps); err != nil {
		return l, err
	}
	return out, out.Validate()
}

// setDirection drives the direction line for the next motion.
func (e *Engine) setDirection(pins Pins, positive bool) error {
	if err := e.gpio.SetPin(pins.Direction, positive != pins.InvertDirection); err != nil {
		return hardwareError("direction", err, "set direction pin")
	}
	return nil
}

// programRate loads the pulse timer for rate steps per second.
func (e *Engine) programRate(rate float64) (TimerSetting, error) {
	setting, err := TimerSettings(rate, e.timer.ClockFrequency())
	if err != nil {
		return setting, err
	}
	if err := e.timer.Configure(setting.Prescaler, setting.Reload); err != nil {
		if errors.Is(err, core.ErrRateUnsupported) {
			return setting, preconditionError("pulsegen", ReasonBadArgs, "step rate %g: %v", rate, err)
		}
		return setting, hardwareError("pulsegen", err, "configure pulse timer")
	}
	return setting, nil
}
