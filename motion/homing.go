package motion

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// HomingState is the state of the reference run.
type HomingState uint32

const (
	HomingIdle HomingState = iota
	HomingBacklashRelease
	HomingSeeking
	HomingFound
	HomingTimedOut
)

func (s HomingState) String() string {
	switch s {
	case HomingIdle:
		return "idle"
	case HomingBacklashRelease:
		return "backlash-release"
	case HomingSeeking:
		return "seeking"
	case HomingFound:
		return "found"
	case HomingTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

func (s HomingState) active() bool {
	return s == HomingBacklashRelease || s == HomingSeeking
}

const (
	// HomingSpeed is the fixed feed rate of reference runs, mm/min.
	HomingSpeed = 500.0
	// homingPulses bounds each homing motion. The sensor is expected long
	// before the count runs out.
	homingPulses = 10000000
)

// ReferenceRequest describes one reference run.
type ReferenceRequest struct {
	// Skip declares the current position to be the reference without moving.
	Skip bool
	// PowerAfter leaves the power outputs on once the run ends.
	PowerAfter bool
	// Timeout bounds the run. Zero selects the configured homing timeout.
	Timeout time.Duration
}

// Reference runs the homing state machine. The sensor sits at the negative
// end of travel. If it is already triggered the axis first backs off until it
// releases, then seeks toward it; the triggering position becomes the
// reference position. The power outputs are set from req.PowerAfter once,
// after the run, whatever its result.
func (e *Engine) Reference(ctx context.Context, req ReferenceRequest) error {
	const op = "reference"

	if req.Timeout < 0 {
		return preconditionError(op, ReasonBadArgs, "timeout must be positive")
	}
	if !e.reqMu.TryLock() {
		return preconditionError(op, ReasonBusy, "request in progress")
	}
	defer e.reqMu.Unlock()
	if e.counter.Running() {
		return preconditionError(op, ReasonBusy, "motion in progress")
	}

	cfg := e.Config()
	timeout := req.Timeout
	if timeout == 0 {
		timeout = cfg.HomingTimeout
	}
	log := e.log.WithFields(logrus.Fields{"op": op, "timeout": timeout, "skip": req.Skip})
	e.abort.Store(false)

	result, err := e.runHoming(ctx, cfg, req.Skip, timeout, log)
	log.WithField("state", result).Info("reference finished")

	err = multierr.Append(err, e.setPower(req.PowerAfter))
	return err
}

func (e *Engine) runHoming(ctx context.Context, cfg Config, skip bool, timeout time.Duration, log logrus.FieldLogger) (HomingState, error) {
	e.referenced.Store(false)
	e.setHoming(HomingIdle, log)

	if skip {
		pos, err := e.PositionSteps()
		if err != nil {
			return HomingIdle, err
		}
		limits := cfg.Limits
		limits.RefSteps = pos
		if err := limits.Validate(); err != nil {
			return HomingIdle, err
		}
		e.cfgMu.Lock()
		e.cfg.Limits.RefSteps = pos
		e.cfgMu.Unlock()
		e.referenced.Store(true)
		e.setHoming(HomingFound, log)
		return HomingFound, nil
	}

	if err := e.setPower(true); err != nil {
		return HomingIdle, err
	}
	rate, err := cfg.Mechanics.SpeedToStepRate(HomingSpeed)
	if err != nil {
		return HomingIdle, err
	}
	if _, err := e.programRate(rate); err != nil {
		return HomingIdle, err
	}

	var deadline time.Duration
	if timeout > 0 {
		deadline = e.clock.Now() + timeout
	}

	asserted, err := e.sensorAsserted(cfg.Pins)
	if err != nil {
		return HomingIdle, err
	}
	if asserted {
		e.setHoming(HomingBacklashRelease, log)
		err := e.homingPhase(ctx, cfg, deadline, true)
		if err != nil {
			return e.homingFailed(err, log), err
		}
	}

	e.setHoming(HomingSeeking, log)
	if err := e.homingPhase(ctx, cfg, deadline, false); err != nil {
		return e.homingFailed(err, log), err
	}

	if err := e.driver.SetAbsolutePosition(cfg.Limits.RefSteps); err != nil {
		err = hardwareError("reference", err, "set reference position")
		return e.homingFailed(err, log), err
	}
	e.referenced.Store(true)
	e.setHoming(HomingFound, log)
	return HomingFound, nil
}

// homingPhase moves away from (release) or toward the sensor until it
// reaches the wanted level, then stops.
func (e *Engine) homingPhase(ctx context.Context, cfg Config, deadline time.Duration, release bool) error {
	if err := e.setDirection(cfg.Pins, release); err != nil {
		return err
	}
	if err := e.counter.Start(homingPulses); err != nil {
		return err
	}
	err := e.awaitSensor(ctx, cfg, deadline, !release)
	e.counter.Cancel()
	return err
}

// awaitSensor polls the reference sensor until it reads want. Polling is
// cooperative against the engine clock.
func (e *Engine) awaitSensor(ctx context.Context, cfg Config, deadline time.Duration, want bool) error {
	for {
		asserted, err := e.sensorAsserted(cfg.Pins)
		if err != nil {
			return err
		}
		if asserted == want {
			return nil
		}
		if e.abort.Load() {
			return ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.counter.Running() {
			if out := e.counter.Outcome(); out != nil {
				return out
			}
			return timeoutError("reference", "sensor not reached within %d pulses", homingPulses)
		}
		if deadline > 0 && e.clock.Now() >= deadline {
			return timeoutError("reference", "sensor not reached in time")
		}
		e.clock.Sleep(cfg.HomingPoll)
	}
}

// homingFailed maps a failure to the terminal state. Only timeouts end in
// TimedOut; aborted runs go back to Idle.
func (e *Engine) homingFailed(err error, log logrus.FieldLogger) HomingState {
	state := HomingIdle
	if errors.Is(err, ErrTimeout) {
		state = HomingTimedOut
	}
	e.setHoming(state, log)
	return state
}

func (e *Engine) setHoming(s HomingState, log logrus.FieldLogger) {
	e.homing.Store(uint32(s))
	log.WithField("state", s).Debug("homing state")
}

// sensorAsserted reads the reference sensor.
func (e *Engine) sensorAsserted(pins Pins) (bool, error) {
	level, err := e.gpio.ReadPin(pins.Reference)
	if err != nil {
		return false, hardwareError("reference", err, "read reference sensor")
	}
	return level != pins.ReferenceActiveLow, nil
}

// HomingState returns the current or last homing state.
func (e *Engine) HomingState() HomingState {
	return HomingState(e.homing.Load())
}
