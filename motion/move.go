package motion

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"
)

// MoveRequest describes one move.
type MoveRequest struct {
	TargetMM      float64 // Absolute position, or distance if Relative
	SpeedMMPerMin float64 // Zero selects the configured default
	Relative      bool
	Async         bool // Return after submission instead of completion
}

// Move runs a constant-rate move. A synchronous move returns the outcome of
// the pulse train: nil, ErrCancelled, or the hardware failure that ended it.
// An asynchronous move returns once submitted; its outcome shows up in a
// later Status. If ctx ends during a synchronous move the motion is
// cancelled.
func (e *Engine) Move(ctx context.Context, req MoveRequest) error {
	sub, err := e.submitMove(req)
	if err != nil {
		return err
	}
	// Nothing up to Start allocates on success.
	log := e.log.WithFields(logrus.Fields{
		"op":        "move",
		"target_mm": req.TargetMM,
		"steps":     sub.steps,
		"rate":      sub.rate,
		"prescaler": sub.setting.Prescaler,
		"reload":    sub.setting.Reload,
	})
	log.Info("move started")
	if req.Async {
		return nil
	}

	if err := e.counter.Wait(ctx); err != nil {
		log.WithError(err).Warn("move ended early")
		return err
	}
	log.Debug("move complete")
	return nil
}

// submission is what a started move ran with.
type submission struct {
	steps   int64
	rate    float64
	setting TimerSetting
}

func (e *Engine) submitMove(req MoveRequest) (submission, error) {
	const op = "move"
	var sub submission

	if !e.powered.Load() {
		return sub, preconditionError(op, ReasonNotPowered, "power outputs are off")
	}
	if !e.referenced.Load() {
		return sub, preconditionError(op, ReasonNotReferenced, "axis is not referenced")
	}
	if math.IsNaN(req.TargetMM) || math.IsInf(req.TargetMM, 0) {
		return sub, preconditionError(op, ReasonBadArgs, "invalid target %g", req.TargetMM)
	}
	speed := req.SpeedMMPerMin
	if math.IsNaN(speed) || speed < 0 {
		return sub, preconditionError(op, ReasonBadArgs, "invalid speed %g", speed)
	}

	if !e.reqMu.TryLock() {
		return sub, preconditionError(op, ReasonBusy, "request in progress")
	}
	defer e.reqMu.Unlock()
	if e.counter.Running() {
		return sub, preconditionError(op, ReasonBusy, "motion in progress")
	}

	cfg := e.Config()
	if speed == 0 {
		speed = cfg.DefaultSpeed
	}
	rate, err := cfg.Mechanics.SpeedToStepRate(speed)
	if err != nil {
		return sub, err
	}
	if math.Round(rate) < 1 {
		return sub, preconditionError(op, ReasonBadArgs, "speed %g mm/min is below one step per second", speed)
	}
	setting, err := e.programRate(rate)
	if err != nil {
		return sub, err
	}

	target, err := cfg.Mechanics.MMToSteps(req.TargetMM)
	if err != nil {
		return sub, err
	}
	current, err := e.PositionSteps()
	if err != nil {
		return sub, err
	}
	delta := target
	if !req.Relative {
		delta = target - int64(current)
	}
	if delta >= -1 && delta <= 1 {
		return sub, rangeError(op, ReasonNoMovement, "move of %d steps", delta)
	}
	next := int64(current) + delta
	if !cfg.Limits.Contains(next) {
		return sub, rangeError(op, ReasonSoftLimit, "position %d outside [%d, %d]",
			next, cfg.Limits.MinSteps, cfg.Limits.MaxSteps)
	}

	if err := e.setDirection(cfg.Pins, delta > 0); err != nil {
		return sub, err
	}
	count := delta
	if count < 0 {
		count = -count
	}
	if err := e.counter.Start(uint32(count)); err != nil {
		return sub, err
	}
	return submission{steps: delta, rate: rate, setting: setting}, nil
}
