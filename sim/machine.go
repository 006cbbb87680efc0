// Package sim is a simulated axis: a pulse timer, a driver chip and the
// GPIO lines, driven by the core tick scheduler. Time is either virtual,
// advancing only through Advance and Sleep, or follows the wall clock.
//
// The scheduler and tick counter in core are process wide, so only one
// Machine may exist at a time.
package sim

import (
	"context"
	"time"

	"periph.io/x/conn/v3/physic"

	"linaxis/core"
)

// Config describes the simulated mechanics. Carriage positions are in steps
// with the reference sensor at 0; the sensor reads triggered at and below 0.
type Config struct {
	SensorSteps        int32 // Carriage start position
	TravelSteps        int32 // Upper hard stop
	Overtravel         int32 // Lower hard stop below the sensor
	Clock              physic.Frequency
	DirectionPin       core.GPIOPin
	ReferencePin       core.GPIOPin
	InvertDirection    bool
	ReferenceActiveLow bool
	Realtime           bool
}

// DefaultConfig starts the carriage 10 mm above the sensor on a 125 mm axis
// at 800 steps/mm.
func DefaultConfig() Config {
	return Config{
		SensorSteps:        8000,
		TravelSteps:        100000,
		Overtravel:         1600,
		Clock:              90 * physic.MegaHertz,
		DirectionPin:       2,
		ReferencePin:       3,
		ReferenceActiveLow: true,
	}
}

// Machine wires the simulated parts together.
type Machine struct {
	cfg    Config
	timer  *PulseTimer
	driver *Driver
	gpio   *GPIO
	start  time.Time
}

// New resets the core scheduler and builds a machine at tick zero.
func New(cfg Config) *Machine {
	core.ResetTimers()
	core.SetTime(0)

	m := &Machine{cfg: cfg, start: time.Now()}
	m.gpio = newGPIO(m)
	m.driver = newDriver(m, cfg.SensorSteps)
	m.timer = newPulseTimer(m, cfg.Clock)
	return m
}

// Timer returns the simulated pulse timer.
func (m *Machine) Timer() *PulseTimer { return m.timer }

// Driver returns the simulated driver chip.
func (m *Machine) Driver() *Driver { return m.driver }

// GPIO returns the simulated GPIO bank.
func (m *Machine) GPIO() *GPIO { return m.gpio }

// Now is the simulated time since New.
func (m *Machine) Now() time.Duration {
	return core.DurationFromTicks(core.GetTime())
}

// Sleep waits d of simulated time. In virtual mode it advances the clock
// itself.
func (m *Machine) Sleep(d time.Duration) {
	if m.cfg.Realtime {
		time.Sleep(d)
		return
	}
	m.Advance(d)
}

// Advance moves virtual time forward by d, dispatching every timer that
// falls due on the way at its own wake time.
func (m *Machine) Advance(d time.Duration) {
	target := core.GetTime() + core.TicksFromDuration(d)
	for {
		next, ok := core.NextWakeTime()
		if !ok || next > target {
			break
		}
		if next > core.GetTime() {
			core.SetTime(next)
		}
		core.TimerDispatch(core.GetTime())
	}
	core.SetTime(target)
}

// Run follows the wall clock until ctx ends. Only meaningful in realtime
// mode.
func (m *Machine) Run(ctx context.Context, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := core.TicksFromDuration(time.Since(m.start))
			core.SetTime(now)
			core.TimerDispatch(now)
		}
	}
}

// Carriage returns the physical carriage position, steps above the sensor.
func (m *Machine) Carriage() int32 {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	return m.driver.liveCarriage()
}

// clamp keeps a carriage position between the hard stops.
func (m *Machine) clamp(pos int64) int32 {
	if lo := -int64(m.cfg.Overtravel); pos < lo {
		return int32(lo)
	}
	if hi := int64(m.cfg.TravelSteps); pos > hi {
		return int32(hi)
	}
	return int32(pos)
}
