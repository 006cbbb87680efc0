package motion

import (
	"errors"
	"math"
	"testing"
)

func TestMMToStepsRoundTrip(t *testing.T) {
	configs := []MechanicalConfig{
		DefaultMechanics(),
		{StepsPerTurn: 200, Resolution: 1, MMPerTurn: 8},
		{StepsPerTurn: 400, Resolution: 4, MMPerTurn: 2.5},
		{StepsPerTurn: 48, Resolution: 2, MMPerTurn: 1.27},
	}
	for _, m := range configs {
		step := m.StepResolutionMM()
		for mm := -200.0; mm <= 200.0; mm += 0.37 {
			steps, err := m.MMToSteps(mm)
			if err != nil {
				t.Fatalf("%+v: MMToSteps(%g) failed: %v", m, mm, err)
			}
			back, err := m.StepsToMM(steps)
			if err != nil {
				t.Fatalf("%+v: StepsToMM(%d) failed: %v", m, steps, err)
			}
			if math.Abs(back-mm) > step {
				t.Errorf("%+v: %g mm -> %d steps -> %g mm, off by more than %g", m, mm, steps, back, step)
			}
		}
	}
}

func TestMMToStepsRoundsToNearest(t *testing.T) {
	m := DefaultMechanics() // 800 steps/mm
	tests := []struct {
		mm    float64
		steps int64
	}{
		{10, 8000},
		{0.0006, 0},
		{0.0007, 1},
		{-0.0007, -1},
		{0.001875, 2}, // 1.5 steps rounds away from zero
	}
	for _, tt := range tests {
		got, err := m.MMToSteps(tt.mm)
		if err != nil {
			t.Fatalf("MMToSteps(%g) failed: %v", tt.mm, err)
		}
		if got != tt.steps {
			t.Errorf("MMToSteps(%g) = %d, want %d", tt.mm, got, tt.steps)
		}
	}
}

func TestSpeedToStepRate(t *testing.T) {
	m := DefaultMechanics()
	rate, err := m.SpeedToStepRate(600)
	if err != nil {
		t.Fatal(err)
	}
	// 600 mm/min = 10 mm/s = 8000 steps/s
	if math.Abs(rate-8000) > 1e-9 {
		t.Errorf("SpeedToStepRate(600) = %g, want 8000", rate)
	}
}

func TestConverterRejectsDegenerateMechanics(t *testing.T) {
	bad := []MechanicalConfig{
		{StepsPerTurn: 0, Resolution: 16, MMPerTurn: 4},
		{StepsPerTurn: -200, Resolution: 16, MMPerTurn: 4},
		{StepsPerTurn: 200, Resolution: 16, MMPerTurn: 0},
		{StepsPerTurn: 200, Resolution: 16, MMPerTurn: -1},
		{StepsPerTurn: 200, Resolution: 16, MMPerTurn: math.NaN()},
	}
	for _, m := range bad {
		if _, err := m.MMToSteps(1); !errors.Is(err, ErrConfiguration) {
			t.Errorf("%+v: MMToSteps error = %v, want configuration error", m, err)
		}
		if _, err := m.StepsToMM(1); !errors.Is(err, ErrConfiguration) {
			t.Errorf("%+v: StepsToMM error = %v, want configuration error", m, err)
		}
		if _, err := m.SpeedToStepRate(1); !errors.Is(err, ErrConfiguration) {
			t.Errorf("%+v: SpeedToStepRate error = %v, want configuration error", m, err)
		}
	}
}

func TestMechanicsValidateStepMode(t *testing.T) {
	for _, r := range []int{1, 2, 4, 8, 16} {
		m := MechanicalConfig{StepsPerTurn: 200, Resolution: r, MMPerTurn: 4}
		if err := m.Validate(); err != nil {
			t.Errorf("resolution %d rejected: %v", r, err)
		}
	}
	for _, r := range []int{3, 32, 0} {
		m := MechanicalConfig{StepsPerTurn: 200, Resolution: r, MMPerTurn: 4}
		if err := m.Validate(); !errors.Is(err, ErrConfiguration) {
			t.Errorf("resolution %d: got %v, want configuration error", r, err)
		}
	}
}

func TestMMToStepsOutOfCounterRange(t *testing.T) {
	m := DefaultMechanics()
	if _, err := m.MMToSteps(1e7); !errors.Is(err, ErrRange) {
		t.Errorf("expected range error, got %v", err)
	}
	if _, err := m.MMToSteps(math.Inf(1)); !errors.Is(err, ErrBadArgs) {
		t.Errorf("expected bad args for +Inf, got %v", err)
	}
}

func TestLimitsValidate(t *testing.T) {
	tests := []struct {
		name   string
		limits Limits
		ok     bool
	}{
		{"ordered", Limits{MinSteps: 0, MaxSteps: 100, RefSteps: 0}, true},
		{"ref in middle", Limits{MinSteps: -10, MaxSteps: 10, RefSteps: 3}, true},
		{"ref above max", Limits{MinSteps: 0, MaxSteps: 100, RefSteps: 101}, false},
		{"ref below min", Limits{MinSteps: 0, MaxSteps: 100, RefSteps: -1}, false},
		{"min above max", Limits{MinSteps: 10, MaxSteps: 0, RefSteps: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.limits.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrConfiguration) {
				t.Errorf("got %v, want configuration error", err)
			}
		})
	}
}
