package core

import (
	"sync/atomic"
	"time"
)

// Timer frequencies for common MCUs
const (
	TimerFreq = 12000000 // 12MHz default timer frequency
)

var systemTicks atomic.Uint64

// GetTime returns the current system time in timer ticks
func GetTime() uint64 {
	return systemTicks.Load()
}

// SetTime sets the current system time (for testing/hardware integration)
func SetTime(ticks uint64) {
	systemTicks.Store(ticks)
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint64) uint64 {
	return us * (TimerFreq / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint64) uint64 {
	return ticks / (TimerFreq / 1000000)
}

// TicksFromDuration converts a duration to timer ticks. Negative durations
// map to zero.
func TicksFromDuration(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return TimerFromUS(uint64(d / time.Microsecond))
}

// DurationFromTicks converts timer ticks to a duration.
func DurationFromTicks(ticks uint64) time.Duration {
	return time.Duration(TimerToUS(ticks)) * time.Microsecond
}

// Clock is the time source for cooperative polling loops. Now is
// monotonic; Sleep yields for at least d.
type Clock interface {
	Now() time.Duration
	Sleep(d time.Duration)
}

// SystemClock is a Clock backed by the runtime's monotonic clock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock whose zero is the moment of the call.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns the time elapsed since the clock was created.
func (c *SystemClock) Now() time.Duration {
	return time.Since(c.start)
}

// Sleep pauses the calling goroutine.
func (c *SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
