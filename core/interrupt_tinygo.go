//go:build tinygo

package core

import "runtime/interrupt"

// InterruptState is the saved mask returned by DisableInterrupts.
type InterruptState = interrupt.State

// DisableInterrupts disables interrupts and returns the previous state
func DisableInterrupts() InterruptState {
	return interrupt.Disable()
}

// RestoreInterrupts restores the interrupt state
func RestoreInterrupts(state InterruptState) {
	interrupt.Restore(state)
}

// RunISR runs fn with interrupts masked. Real handlers are already masked
// by the NVIC; this is for code paths shared with hosted builds.
func RunISR(fn func()) {
	state := interrupt.Disable()
	fn()
	interrupt.Restore(state)
}
