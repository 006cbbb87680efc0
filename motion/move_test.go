package motion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"linaxis/core"
)

func TestMoveRequiresPower(t *testing.T) {
	r := newRig(t)
	r.engine.referenced.Store(true)

	err := r.engine.Move(context.Background(), MoveRequest{TargetMM: 10})
	if !errors.Is(err, ErrNotPowered) {
		t.Errorf("Move = %v, want not powered", err)
	}
	if r.timer.armCount() != 0 {
		t.Error("hardware armed for a rejected move")
	}
}

func TestMoveRequiresReference(t *testing.T) {
	r := newRig(t)
	if err := r.engine.SetPower(true); err != nil {
		t.Fatal(err)
	}
	err := r.engine.Move(context.Background(), MoveRequest{TargetMM: 10})
	if !errors.Is(err, ErrNotReferenced) {
		t.Errorf("Move = %v, want not referenced", err)
	}
}

func TestMoveBadArgs(t *testing.T) {
	r := newRig(t)
	r.ready(0)
	tests := []struct {
		name string
		req  MoveRequest
	}{
		{"negative speed", MoveRequest{TargetMM: 10, SpeedMMPerMin: -1}},
		{"speed below one step per second", MoveRequest{TargetMM: 10, SpeedMMPerMin: 0.01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.engine.Move(context.Background(), tt.req); !errors.Is(err, ErrBadArgs) {
				t.Errorf("Move = %v, want bad args", err)
			}
		})
	}
}

func TestMoveRateOutsideTimerRange(t *testing.T) {
	r := newRig(t)
	r.ready(0)
	r.timer.configErr = fmt.Errorf("too slow: %w", core.ErrRateUnsupported)

	err := r.engine.Move(context.Background(), MoveRequest{TargetMM: 10, SpeedMMPerMin: 1})
	if !errors.Is(err, ErrBadArgs) {
		t.Errorf("Move = %v, want bad args", err)
	}
	if len(r.timer.arms) != 0 {
		t.Errorf("timer armed %v", r.timer.arms)
	}

	r.timer.configErr = errors.New("bus fault")
	err = r.engine.Move(context.Background(), MoveRequest{TargetMM: 10, SpeedMMPerMin: 1})
	if !errors.Is(err, ErrHardware) {
		t.Errorf("Move = %v, want hardware error", err)
	}
}

func TestMoveSoftLimit(t *testing.T) {
	r := newRig(t)
	r.ready(99990)

	// +20 steps from 99990 lands beyond position_max_steps = 100000
	err := r.engine.Move(context.Background(), MoveRequest{TargetMM: 20.0 / 800, Relative: true, Async: true})
	if !errors.Is(err, ErrSoftLimit) {
		t.Errorf("Move = %v, want soft limit", err)
	}
	err = r.engine.Move(context.Background(), MoveRequest{TargetMM: -1, Async: true})
	if !errors.Is(err, ErrSoftLimit) {
		t.Errorf("Move below minimum = %v, want soft limit", err)
	}
	if r.timer.armCount() != 0 {
		t.Error("hardware armed for a rejected move")
	}
}

func TestMoveNoMovement(t *testing.T) {
	r := newRig(t)
	r.ready(8000)
	tests := []MoveRequest{
		{TargetMM: 10},                        // already there
		{TargetMM: 10.001},                    // one step away
		{TargetMM: 1.0 / 800, Relative: true}, // one step relative
		{TargetMM: 0, Relative: true},
	}
	for _, req := range tests {
		if err := r.engine.Move(context.Background(), req); !errors.Is(err, ErrNoMovement) {
			t.Errorf("Move(%+v) = %v, want no movement", req, err)
		}
	}
}

func TestMoveAbsoluteSync(t *testing.T) {
	r := newRig(t)
	r.ready(8000) // 10 mm

	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(5 * time.Second)
		for !r.engine.counter.Running() && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		r.drain()
	}()

	if err := r.engine.Move(context.Background(), MoveRequest{TargetMM: 100, SpeedMMPerMin: 1200}); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	<-done

	// 90 mm = 72000 steps: two arms
	if got := r.timer.armCount(); got != 2 {
		t.Errorf("arms = %d, want 2", got)
	}
	pos, err := r.engine.Position()
	if err != nil {
		t.Fatal(err)
	}
	if pos != 100 {
		t.Errorf("Position = %g, want 100", pos)
	}
	if forward, _ := r.gpio.ReadPin(dirPin); !forward {
		t.Error("direction line not set forward")
	}
	// 1200 mm/min = 16000 steps/s: 90 MHz / 32000 = 2812 fits reload
	if r.timer.prescaler != 0 || r.timer.reload != 2811 {
		t.Errorf("timer p=%d r=%d, want p=0 r=2811", r.timer.prescaler, r.timer.reload)
	}
}

func TestMoveRelativeAsync(t *testing.T) {
	r := newRig(t)
	r.ready(40000)

	if err := r.engine.Move(context.Background(), MoveRequest{TargetMM: -5, Relative: true, Async: true}); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if !r.engine.counter.Running() {
		t.Fatal("async move not running after submission")
	}
	if forward, _ := r.gpio.ReadPin(dirPin); forward {
		t.Error("direction line not set reverse")
	}

	// Requests while running are busy.
	err := r.engine.Move(context.Background(), MoveRequest{TargetMM: 1, Relative: true, Async: true})
	if !errors.Is(err, ErrBusy) {
		t.Errorf("overlapping Move = %v, want busy", err)
	}
	if err := r.engine.SetStepMode(8); !errors.Is(err, ErrBusy) {
		t.Errorf("SetStepMode while moving = %v, want busy", err)
	}

	st, err := r.engine.Status()
	if err != nil {
		t.Fatal(err)
	}
	if !st.Running || st.State != StateReady {
		t.Errorf("Status = %+v, want running and ready", st)
	}

	r.drain()
	if got, _ := r.engine.PositionSteps(); got != 36000 {
		t.Errorf("PositionSteps = %d, want 36000", got)
	}
}

func TestCancelInFlightMove(t *testing.T) {
	r := newRig(t)
	r.ready(0)

	callbacks := 0
	r.engine.counter.SetDoneCallback(func(error) { callbacks++ })

	errc := make(chan error, 1)
	go func() {
		errc <- r.engine.Move(context.Background(), MoveRequest{TargetMM: 100})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !r.engine.counter.Running() {
		if time.Now().After(deadline) {
			t.Fatal("move never started")
		}
		time.Sleep(time.Millisecond)
	}
	r.timer.complete()

	if !r.engine.Cancel() {
		t.Fatal("Cancel found nothing to stop")
	}
	if err := <-errc; !errors.Is(err, ErrCancelled) {
		t.Errorf("Move = %v, want ErrCancelled", err)
	}
	if callbacks != 1 {
		t.Errorf("done callback ran %d times, want 1", callbacks)
	}
	if r.engine.counter.Running() {
		t.Error("still running after cancel")
	}
	if r.timer.disables != 1 {
		t.Errorf("timer disabled %d times, want 1", r.timer.disables)
	}
	if r.engine.Cancel() {
		t.Error("Cancel with nothing running reported true")
	}

	st, err := r.engine.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.LastErr != nil {
		t.Errorf("cancelled move reported LastErr %v", st.LastErr)
	}
}

func TestMoveContextCancelled(t *testing.T) {
	r := newRig(t)
	r.ready(0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.engine.Move(ctx, MoveRequest{TargetMM: 50})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Move = %v, want deadline exceeded", err)
	}
	if r.engine.counter.Running() {
		t.Error("motion left running after context expired")
	}
}

func TestSubmitMoveDoesNotAllocate(t *testing.T) {
	r := newRig(t)
	r.ready(0)
	r.timer.arms = make([]uint16, 0, 1024)
	req := MoveRequest{TargetMM: 10, Relative: true, Async: true}

	var failed error
	allocs := testing.AllocsPerRun(100, func() {
		if _, err := r.engine.submitMove(req); err != nil {
			failed = err
		}
		r.engine.counter.Cancel()
	})
	if failed != nil {
		t.Fatalf("submitMove failed: %v", failed)
	}
	if allocs != 0 {
		t.Errorf("submitMove allocates %v times per move", allocs)
	}
}
