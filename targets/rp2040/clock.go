//go:build rp2040

package main

import (
	"runtime/volatile"
	"time"
	"unsafe"
)

// RP2040 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x24 // Raw timer high word
	timerTIMERAWL = timerBase + 0x28 // Raw timer low word
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// GetHardwareUptime reads the full 64-bit microsecond timer
func GetHardwareUptime() uint64 {
	// Must read high first, then low, then high again to detect rollover
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()

		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// hwClock is the engine clock: the 1 MHz hardware timer for Now, the
// scheduler for Sleep so the console keeps running during a reference run.
type hwClock struct{}

func (hwClock) Now() time.Duration {
	return time.Duration(GetHardwareUptime()) * time.Microsecond
}

func (hwClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
