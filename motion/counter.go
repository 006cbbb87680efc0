package motion

import (
	"context"
	"sync/atomic"

	"linaxis/core"
)

// PulseCounter counts pulse trains of any length on a 16-bit hardware
// counter by re-arming it from the completion interrupt until the whole
// count has been emitted.
//
// remaining, arms and outcome are shared with the completion interrupt and
// are only touched with interrupts disabled. running is read lock-free.
type PulseCounter struct {
	timer core.PulseTimer

	remaining uint32
	arms      uint32
	outcome   error
	running   atomic.Bool

	// done carries the outcome of the current arm cycle. Capacity one, and
	// sends never block, so the completion interrupt cannot stall on it.
	done   chan error
	onDone func(error)
}

// NewPulseCounter takes over the completion interrupt of timer.
func NewPulseCounter(timer core.PulseTimer) *PulseCounter {
	c := &PulseCounter{
		timer: timer,
		done:  make(chan error, 1),
	}
	timer.SetCompletionHandler(c.handleComplete)
	return c
}

// SetDoneCallback registers fn to run once per arm cycle when it ends. fn
// may run in interrupt context and must not block.
func (c *PulseCounter) SetDoneCallback(fn func(error)) {
	state := core.DisableInterrupts()
	c.onDone = fn
	core.RestoreInterrupts(state)
}

// Start emits total pulses. Counts of 0 and 1 finish immediately without
// touching the hardware.
func (c *PulseCounter) Start(total uint32) error {
	if c.running.Load() {
		return preconditionError("count", ReasonBusy, "pulse counter already running")
	}
	c.drain()

	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)

	c.arms = 0
	c.outcome = nil
	c.running.Store(true)

	if total <= 1 {
		core.RecordTrace(core.EvtInstant, total, 0)
		c.finish(nil)
		return nil
	}

	chunk := nextChunk(total)
	c.remaining = total - chunk
	if err := c.arm(chunk); err != nil {
		c.remaining = 0
		c.running.Store(false)
		return hardwareError("count", err, "arm pulse timer")
	}
	return nil
}

// Cancel stops an in-flight count. The hardware is disabled first, then the
// cycle is finished with ErrCancelled. It reports whether a count was running.
func (c *PulseCounter) Cancel() bool {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)

	if !c.running.Load() {
		return false
	}
	c.timer.Disable()
	core.RecordTrace(core.EvtCancel, c.remaining, 0)
	c.remaining = 0
	c.finish(ErrCancelled)
	return true
}

// Running reports whether a count is in flight.
func (c *PulseCounter) Running() bool {
	return c.running.Load()
}

// Wait blocks until the current cycle ends and returns its outcome. If ctx
// ends first the count is cancelled and ctx's error returned.
func (c *PulseCounter) Wait(ctx context.Context) error {
	select {
	case err := <-c.done:
		return err
	case <-ctx.Done():
		c.Cancel()
		c.drain()
		return ctx.Err()
	}
}

// Done returns the channel signalled at the end of each cycle.
func (c *PulseCounter) Done() <-chan error {
	return c.done
}

// Arms returns the number of hardware arms in the current or last cycle.
func (c *PulseCounter) Arms() uint32 {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	return c.arms
}

// Outcome returns the result of the last finished cycle.
func (c *PulseCounter) Outcome() error {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	return c.outcome
}

// handleComplete is the completion interrupt handler. Interrupts are
// disabled.
func (c *PulseCounter) handleComplete() {
	if !c.running.Load() {
		return
	}
	core.RecordTrace(core.EvtComplete, c.arms, c.remaining)
	if c.remaining == 0 {
		c.finish(nil)
		return
	}
	chunk := nextChunk(c.remaining)
	c.remaining -= chunk
	if err := c.arm(chunk); err != nil {
		c.remaining = 0
		c.finish(hardwareError("count", err, "re-arm pulse timer"))
	}
}

func (c *PulseCounter) arm(chunk uint32) error {
	c.arms++
	core.RecordTrace(core.EvtArm, chunk, c.remaining)
	return c.timer.Arm(uint16(chunk))
}

// finish ends the cycle at most once. Interrupts are disabled.
func (c *PulseCounter) finish(err error) {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	c.outcome = err
	var failed uint32
	if err != nil {
		failed = 1
	}
	core.RecordTrace(core.EvtDone, c.arms, failed)
	if c.onDone != nil {
		c.onDone(err)
	}
	select {
	case c.done <- err:
	default:
	}
}

func (c *PulseCounter) drain() {
	select {
	case <-c.done:
	default:
	}
}

func nextChunk(n uint32) uint32 {
	if n > core.MaxPulseCount {
		return core.MaxPulseCount
	}
	return n
}
