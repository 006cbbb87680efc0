package motion

import (
	"errors"
	"testing"

	"linaxis/core"
)

func TestNewEngineValidates(t *testing.T) {
	hw := Hardware{Driver: newFakeDriver(), Timer: &fakeTimer{}, GPIO: newFakeGPIO()}

	cfg := DefaultConfig()
	cfg.Limits.RefSteps = cfg.Limits.MaxSteps + 1
	if _, err := NewEngine(cfg, hw, nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("bad limits: got %v, want configuration error", err)
	}

	cfg = DefaultConfig()
	cfg.Mechanics.Resolution = 3
	if _, err := NewEngine(cfg, hw, nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("bad step mode: got %v, want configuration error", err)
	}

	if _, err := NewEngine(DefaultConfig(), Hardware{}, nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("missing hardware: got %v, want configuration error", err)
	}
}

func TestStatusDerivation(t *testing.T) {
	r := newRig(t)

	st, err := r.engine.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.State != StateNotPowered {
		t.Errorf("fresh engine state = %v, want not-powered", st.State)
	}

	r.engine.SetPower(true)
	st, _ = r.engine.Status()
	if st.State != StateNotReferenced {
		t.Errorf("powered state = %v, want not-referenced", st.State)
	}

	r.engine.referenced.Store(true)
	st, _ = r.engine.Status()
	if st.State != StateReady {
		t.Errorf("referenced state = %v, want ready", st.State)
	}

	r.driver.status = core.DriverStatus{OverCurrent: true, Raw: 0x1000}
	st, _ = r.engine.Status()
	if st.State != StateError || st.Faults.Raw != 0x1000 {
		t.Errorf("fault state = %v raw %#x, want error with raw bits", st.State, st.Faults.Raw)
	}

	r.driver.statusErr = errors.New("spi timeout")
	if _, err := r.engine.Status(); !errors.Is(err, ErrHardware) {
		t.Errorf("status read failure = %v, want hardware error", err)
	}
}

func TestStatusReportsAsyncFailure(t *testing.T) {
	r := newRig(t)
	r.ready(0)

	if err := r.engine.counter.Start(100000); err != nil {
		t.Fatal(err)
	}
	r.timer.mu.Lock()
	r.timer.armErr = errors.New("timer fault")
	r.timer.mu.Unlock()
	r.timer.complete()

	st, err := r.engine.Status()
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(st.LastErr, ErrHardware) {
		t.Errorf("LastErr = %v, want hardware error", st.LastErr)
	}
}

func TestSetStepMode(t *testing.T) {
	r := newRig(t)

	if err := r.engine.SetStepMode(5); !errors.Is(err, ErrConfiguration) {
		t.Errorf("SetStepMode(5) = %v, want configuration error", err)
	}

	r.engine.SetPower(true)
	if err := r.engine.SetStepMode(8); !errors.Is(err, ErrPowered) {
		t.Errorf("SetStepMode while powered = %v, want powered", err)
	}

	r.engine.SetPower(false)
	r.engine.referenced.Store(true)
	if err := r.engine.SetStepMode(8); err != nil {
		t.Fatalf("SetStepMode(8) = %v", err)
	}
	if r.driver.resolution != 8 {
		t.Errorf("driver resolution = %d, want 8", r.driver.resolution)
	}
	cfg := r.engine.Config()
	if cfg.Mechanics.Resolution != 8 {
		t.Errorf("config resolution = %d, want 8", cfg.Mechanics.Resolution)
	}
	// 125 mm at 400 steps/mm
	if cfg.Limits.MaxSteps != 50000 {
		t.Errorf("MaxSteps = %d, want 50000", cfg.Limits.MaxSteps)
	}
	if r.engine.referenced.Load() {
		t.Error("still referenced after step mode change")
	}
}

func TestSetMechanics(t *testing.T) {
	r := newRig(t)
	if err := r.engine.SetMechanics(0, 4); !errors.Is(err, ErrConfiguration) {
		t.Errorf("zero steps per turn = %v, want configuration error", err)
	}
	if err := r.engine.SetMechanics(200, -2); !errors.Is(err, ErrConfiguration) {
		t.Errorf("negative mm per turn = %v, want configuration error", err)
	}
	if err := r.engine.SetMechanics(400, 8); err != nil {
		t.Fatal(err)
	}
	pos, _ := r.engine.Position()
	if pos != 0 {
		t.Errorf("Position = %g", pos)
	}
	r.driver.SetAbsolutePosition(800)
	if pos, _ := r.engine.Position(); pos != 1 {
		t.Errorf("800 steps at 6400 steps per 8 mm = %g mm, want 1", pos)
	}
}

func TestSetLimits(t *testing.T) {
	r := newRig(t)
	bad := Limits{MinSteps: 0, MaxSteps: 1000, RefSteps: 2000}
	if err := r.engine.SetLimits(bad); !errors.Is(err, ErrConfiguration) {
		t.Errorf("SetLimits(%+v) = %v, want configuration error", bad, err)
	}
	good := Limits{MinSteps: -500, MaxSteps: 1000, RefSteps: 0}
	if err := r.engine.SetLimits(good); err != nil {
		t.Fatal(err)
	}
	if r.engine.Config().Limits != good {
		t.Errorf("limits = %+v, want %+v", r.engine.Config().Limits, good)
	}
}

func TestElectricalPassThrough(t *testing.T) {
	r := newRig(t)
	if err := r.engine.SetElectrical(core.ParamTorque, 800); err != nil {
		t.Fatal(err)
	}
	v, err := r.engine.Electrical(core.ParamTorque)
	if err != nil || v != 800 {
		t.Errorf("Electrical(torque) = %g, %v; want 800", v, err)
	}
	if err := r.engine.SetElectrical(core.ParamTimeOff, 0); !errors.Is(err, ErrBadArgs) {
		t.Errorf("zero time = %v, want bad args", err)
	}
	if _, err := r.engine.Electrical(core.ParamTimeFast); !errors.Is(err, ErrHardware) {
		t.Errorf("unset parameter = %v, want hardware error", err)
	}
}

func TestReset(t *testing.T) {
	r := newRig(t)
	r.ready(5000)
	if err := r.engine.counter.Start(1000); err != nil {
		t.Fatal(err)
	}

	if err := r.engine.Reset(); err != nil {
		t.Fatal(err)
	}
	if r.driver.resets != 1 {
		t.Errorf("driver resets = %d, want 1", r.driver.resets)
	}
	if r.engine.counter.Running() {
		t.Error("motion survived reset")
	}
	st, _ := r.engine.Status()
	if st.Powered || st.Referenced {
		t.Errorf("Status after reset = %+v", st)
	}
}

func TestResetKeepsStepMode(t *testing.T) {
	r := newRig(t)
	if err := r.engine.SetStepMode(8); err != nil {
		t.Fatal(err)
	}
	if err := r.engine.Reset(); err != nil {
		t.Fatal(err)
	}

	r.driver.mu.Lock()
	got := r.driver.resolution
	r.driver.mu.Unlock()
	if got != 8 {
		t.Errorf("driver resolution after reset = %d, want 8", got)
	}
	if res := r.engine.Config().Mechanics.Resolution; res != 8 {
		t.Errorf("engine resolution after reset = %d, want 8", res)
	}
}

func TestPowerOffStopsMotion(t *testing.T) {
	r := newRig(t)
	r.ready(0)
	if err := r.engine.counter.Start(1000); err != nil {
		t.Fatal(err)
	}
	if err := r.engine.SetPower(false); err != nil {
		t.Fatal(err)
	}
	if r.engine.counter.Running() {
		t.Error("motion running with power off")
	}
}

func TestErrorMatching(t *testing.T) {
	err := preconditionError("move", ReasonNotPowered, "power outputs are off")
	if !errors.Is(err, ErrNotPowered) {
		t.Error("not matched by its own sentinel")
	}
	if !errors.Is(err, ErrPrecondition) {
		t.Error("not matched by its kind")
	}
	if errors.Is(err, ErrNotReferenced) {
		t.Error("matched another reason")
	}
	if errors.Is(err, ErrRange) {
		t.Error("matched another kind")
	}
	if got := err.Error(); got != "move: precondition (not powered): power outputs are off" {
		t.Errorf("Error() = %q", got)
	}

	cause := errors.New("nack")
	hw := hardwareError("status", cause, "read driver status")
	if !errors.Is(hw, cause) || !errors.Is(hw, ErrHardware) {
		t.Errorf("hardware error %v does not unwrap", hw)
	}
	if hardwareError("status", nil, "x") != nil {
		t.Error("nil cause produced an error")
	}
}
