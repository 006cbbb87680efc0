//go:build !tinygo

package core

import "sync"

// InterruptState is the saved mask returned by DisableInterrupts.
type InterruptState uintptr

// On a hosted build there are no interrupts to mask. A single process-wide
// lock stands in for the mask so that code running "from an interrupt"
// (see RunISR) is serialized against task code inside critical sections.
var isrLock sync.Mutex

// DisableInterrupts enters the critical section. Not reentrant.
func DisableInterrupts() InterruptState {
	isrLock.Lock()
	return 0
}

// RestoreInterrupts leaves the critical section.
func RestoreInterrupts(state InterruptState) {
	isrLock.Unlock()
}

// RunISR runs fn the way the hardware runs an interrupt handler: with
// interrupts masked for its whole duration.
func RunISR(fn func()) {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)
	fn()
}
