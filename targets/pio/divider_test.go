package pio

import (
	"errors"
	"math"
	"testing"

	"periph.io/x/conn/v3/physic"

	"linaxis/core"
	"linaxis/motion"
)

func TestSplitDivisor(t *testing.T) {
	tests := []struct {
		prescaler, reload uint16
		want              timing
	}{
		{0, 0, timing{1, 0}},
		{0, 99, timing{1, 99}},
		{3, 999, timing{1, 3999}},
		{255, 255, timing{1, 65535}},
		{256, 255, timing{2, 32895}},
		{65534, 65535, timing{65535, 65535}},
	}
	for _, tt := range tests {
		got, err := splitDivisor(tt.prescaler, tt.reload)
		if err != nil {
			t.Errorf("splitDivisor(%d, %d) failed: %v", tt.prescaler, tt.reload, err)
			continue
		}
		if got != tt.want {
			t.Errorf("splitDivisor(%d, %d) = %+v, want %+v", tt.prescaler, tt.reload, got, tt.want)
		}
	}

	if _, err := splitDivisor(65535, 65535); !errors.Is(err, core.ErrRateUnsupported) {
		t.Errorf("splitDivisor(65535, 65535) error = %v, want unsupported rate", err)
	}
}

func TestCommandWord(t *testing.T) {
	tm := timing{divider: 3, delay: 0x1234}
	if got := tm.word(1000); got != 0x123403E7 {
		t.Errorf("word(1000) = %#x", got)
	}
	if got := (timing{divider: 1}).word(65535); got != 0xFFFE {
		t.Errorf("word(65535) = %#x", got)
	}
}

// The engine programs the timer against timerClock; the program must then
// produce the rate the engine asked for.
func TestTimerClockMatchesProgram(t *testing.T) {
	const sysHz = 125000000
	clock := timerClock(sysHz)
	if clock != 7812500*physic.Hertz {
		t.Fatalf("timerClock = %v", clock)
	}

	// Divisors up to 65536: exact.
	for _, rate := range []float64{200, 1000, 6666.67, 20000, 100000} {
		setting, err := motion.TimerSettings(rate, clock)
		if err != nil {
			t.Fatalf("TimerSettings(%g): %v", rate, err)
		}
		tm, err := splitDivisor(setting.Prescaler, setting.Reload)
		if err != nil {
			t.Fatalf("rate %g: %v", rate, err)
		}
		if got, want := pulseRate(sysHz, tm), setting.Rate(clock); got != want {
			t.Errorf("rate %g: program gives %v, timer model %v", rate, got, want)
		}
	}

	// Slow rates need the delay loop and stay within rounding of a unit.
	for _, rate := range []float64{1, 2.5, 10, 59, 119.9} {
		setting, err := motion.TimerSettings(rate, clock)
		if err != nil {
			t.Fatalf("TimerSettings(%g): %v", rate, err)
		}
		tm, err := splitDivisor(setting.Prescaler, setting.Reload)
		if err != nil {
			t.Fatalf("rate %g: %v", rate, err)
		}
		got := float64(pulseRate(sysHz, tm)) / float64(physic.Hertz)
		want := setting.RateHz(clock)
		if math.Abs(got-want)/want > 1e-4 {
			t.Errorf("rate %g: program gives %g Hz, timer model %g Hz", rate, got, want)
		}
		if got > rate*1.01 {
			t.Errorf("rate %g: program runs at %g Hz", rate, got)
		}
	}
}
