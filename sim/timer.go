package sim

import (
	"errors"
	"math"

	"periph.io/x/conn/v3/physic"

	"linaxis/core"
)

var errNotConfigured = errors.New("sim: pulse timer armed before configure")

// PulseTimer emulates a 16-bit one-shot pulse counter feeding the step
// input of the simulated driver.
type PulseTimer struct {
	m       *Machine
	clock   physic.Frequency
	handler func()

	prescaler  uint16
	reload     uint16
	configured bool

	// In-flight arm, guarded by interrupt masking.
	armed         bool
	armTick       uint64
	count         uint16
	ticksPerPulse float64
	forward       bool
	event         core.Timer

	arms uint32
}

func newPulseTimer(m *Machine, clock physic.Frequency) *PulseTimer {
	t := &PulseTimer{m: m, clock: clock}
	t.event.Handler = t.fire
	return t
}

// Configure implements core.PulseTimer.
func (t *PulseTimer) Configure(prescaler, reload uint16) error {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	t.prescaler, t.reload = prescaler, reload
	t.configured = true
	return nil
}

// Arm implements core.PulseTimer. Interrupts are disabled.
func (t *PulseTimer) Arm(count uint16) error {
	if !t.configured {
		return errNotConfigured
	}
	divisor := 2 * (float64(t.prescaler) + 1) * (float64(t.reload) + 1)
	clockHz := float64(t.clock) / float64(physic.Hertz)

	t.ticksPerPulse = core.TimerFreq * divisor / clockHz
	t.armTick = core.GetTime()
	t.count = count
	t.forward = t.m.gpio.direction()
	t.armed = true
	t.arms++
	t.event.WakeTime = t.armTick + uint64(math.Ceil(float64(count)*t.ticksPerPulse))
	core.InsertTimer(&t.event)
	return nil
}

// Disable implements core.PulseTimer. Pulses already emitted are kept.
// Interrupts are disabled.
func (t *PulseTimer) Disable() {
	if !t.armed {
		return
	}
	core.RemoveTimer(&t.event)
	t.m.driver.step(t.emitted(core.GetTime()), t.forward)
	t.armed = false
}

// SetCompletionHandler implements core.PulseTimer.
func (t *PulseTimer) SetCompletionHandler(fn func()) {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	t.handler = fn
}

// ClockFrequency implements core.PulseTimer.
func (t *PulseTimer) ClockFrequency() physic.Frequency {
	return t.clock
}

// Info describes the simulated timer.
func (t *PulseTimer) Info() core.PulseTimerInfo {
	return core.PulseTimerInfo{
		Name:         "sim",
		MaxStepRate:  uint32(t.clock / physic.Hertz / 2),
		HardwareStop: true,
	}
}

// Arms returns how many times the timer has been armed.
func (t *PulseTimer) Arms() uint32 {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	return t.arms
}

// fire is the completion interrupt.
func (t *PulseTimer) fire(*core.Timer) uint8 {
	if !t.armed {
		return core.SF_DONE
	}
	t.m.driver.step(int64(t.count), t.forward)
	t.armed = false
	if t.handler != nil {
		t.handler()
	}
	return core.SF_DONE
}

// emitted counts the pulses of the current arm that are out by now.
func (t *PulseTimer) emitted(now uint64) int64 {
	if !t.armed || now <= t.armTick {
		return 0
	}
	n := int64(float64(now-t.armTick) / t.ticksPerPulse)
	if n > int64(t.count) {
		n = int64(t.count)
	}
	return n
}

// inflight is the signed step offset of pulses emitted by the current arm.
func (t *PulseTimer) inflight() int64 {
	n := t.emitted(core.GetTime())
	if !t.forward {
		n = -n
	}
	return n
}
