//go:build rp2040

package pio

import (
	"device/rp"
	"errors"
	"machine"
	"runtime/interrupt"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
	"periph.io/x/conn/v3/physic"

	"linaxis/core"
)

// buildPulseProgram assembles the pulse loop. Each pulse takes
// 32*(delay+1) state machine cycles: 16 high, the rest low.
func buildPulseProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),        // 0: pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(), // 1: out x, 16 (count - 1); osr keeps delay
		// pulse:
		asm.Set(rp2pio.SetDestPins, 1).Delay(15).Encode(),   // 2: set pins, 1 [15]
		asm.Set(rp2pio.SetDestPins, 0).Delay(12).Encode(),   // 3: set pins, 0 [12]
		asm.Mov(rp2pio.MovDestY, rp2pio.MovSrcOSR).Encode(), // 4: mov y, osr
		// delay:
		asm.Jmp(7, rp2pio.JmpYZero).Encode(),               // 5: jmp !y, next
		asm.Jmp(5, rp2pio.JmpYNZeroDec).Delay(30).Encode(), // 6: jmp y--, delay [30]
		// next:
		asm.Jmp(2, rp2pio.JmpXNZeroDec).Encode(), // 7: jmp x--, pulse
		asm.Push(false, false).Encode(),          // 8: push noblock (done)
		// .wrap
	}
}

const pulsePIOOrigin = 0 // Load at offset 0 for correct jump addresses

var (
	errClaimed  = errors.New("pio: no free state machine on PIO0")
	errInUse    = errors.New("pio: pulse timer already created")
	errTxFull   = errors.New("pio: pulse FIFO full")
	errZeroArm  = errors.New("pio: zero pulse count")
	activeTimer *PulseTimer // target of the PIO0 IRQ 0 handler
)

// PulseTimer implements core.PulseTimer on a PIO0 state machine.
type PulseTimer struct {
	pio     *rp2pio.PIO
	sm      rp2pio.StateMachine
	smNum   uint8
	stepPin machine.Pin
	offset  uint8
	timing  timing
	armed   bool
	handler func()
}

// NewPulseTimer claims a PIO0 state machine driving stepPin and hooks the
// completion interrupt. Only one pulse timer can exist.
func NewPulseTimer(stepPin machine.Pin) (*PulseTimer, error) {
	if activeTimer != nil {
		return nil, errInUse
	}
	t := &PulseTimer{
		pio:     rp2pio.PIO0,
		stepPin: stepPin,
		timing:  timing{divider: maxDivider, delay: maxUnits - 1},
	}
	claimed := false
	for i := uint8(0); i < 4 && !claimed; i++ {
		sm := t.pio.StateMachine(i)
		if sm.IsClaimed() {
			continue
		}
		sm.TryClaim()
		t.sm, t.smNum, claimed = sm, i, true
	}
	if !claimed {
		return nil, errClaimed
	}

	program := buildPulseProgram()
	offset, err := t.pio.AddProgram(program, pulsePIOOrigin)
	if err != nil {
		return nil, err
	}
	t.offset = offset

	t.stepPin.Configure(machine.PinConfig{Mode: t.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(t.stepPin, 1)
	// Shift right, explicit PULL, 32-bit threshold
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(t.timing.divider, 0)

	// Init before pin directions
	t.sm.Init(offset, cfg)
	t.sm.SetPindirsConsecutive(t.stepPin, 1, true)
	t.sm.SetPinsConsecutive(t.stepPin, 1, false)

	activeTimer = t
	rp.PIO0.IRQ0_INTE.SetBits(1 << (t.smNum + rp.PIO0_IRQ0_INTE_SM0_RXNEMPTY_Pos))
	irq := interrupt.New(rp.IRQ_PIO0_IRQ_0, handlePIOIRQ)
	irq.Enable()

	t.sm.SetEnabled(true)
	return t, nil
}

// Configure implements core.PulseTimer. Divisors beyond the delay loop's
// reach are rejected rather than run faster.
func (t *PulseTimer) Configure(prescaler, reload uint16) error {
	tm, err := splitDivisor(prescaler, reload)
	if err != nil {
		return err
	}
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	t.timing = tm
	if !t.armed {
		t.sm.SetClkDiv(tm.divider, 0)
	}
	return nil
}

// Arm implements core.PulseTimer. Interrupts are disabled.
func (t *PulseTimer) Arm(count uint16) error {
	if count == 0 {
		return errZeroArm
	}
	if t.sm.IsTxFIFOFull() {
		return errTxFull
	}
	t.sm.SetClkDiv(t.timing.divider, 0)
	t.armed = true
	t.sm.TxPut(t.timing.word(count))
	return nil
}

// Disable implements core.PulseTimer. Interrupts are disabled.
func (t *PulseTimer) Disable() {
	t.armed = false
	// See StateMachine.Init for the order of operations.
	t.sm.SetEnabled(false)
	t.sm.ClearFIFOs()
	t.sm.Restart()
	t.sm.ClkDivRestart()
	t.sm.Jmp(t.offset, rp2pio.JmpAlways)
	t.sm.SetPinsConsecutive(t.stepPin, 1, false)
	t.sm.SetEnabled(true)
}

// SetCompletionHandler implements core.PulseTimer.
func (t *PulseTimer) SetCompletionHandler(fn func()) {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	t.handler = fn
}

// ClockFrequency implements core.PulseTimer.
func (t *PulseTimer) ClockFrequency() physic.Frequency {
	return timerClock(machine.CPUFrequency())
}

// Info returns backend performance information
func (t *PulseTimer) Info() core.PulseTimerInfo {
	cpu := machine.CPUFrequency()
	return core.PulseTimerInfo{
		Name:         "PIO",
		MaxStepRate:  cpu / cyclesPerUnit,
		MinPulseNs:   uint32(uint64(cyclesPerUnit/2) * 1000000000 / uint64(cpu)),
		HardwareStop: true,
	}
}

// handlePIOIRQ runs when the pulse program pushes its completion token.
func handlePIOIRQ(interrupt.Interrupt) {
	t := activeTimer
	if t == nil {
		return
	}
	for !t.sm.IsRxFIFOEmpty() {
		t.sm.RxGet()
	}
	if !t.armed {
		return
	}
	t.armed = false
	if t.handler != nil {
		t.handler()
	}
}
