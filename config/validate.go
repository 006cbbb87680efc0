package config

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Validate checks configuration correctness.
// It MUST NOT mutate configuration and expects a normalized one.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Limits.MinMM == nil || cfg.Limits.MaxMM == nil || cfg.Limits.RefMM == nil ||
		cfg.Pins.ReferenceActiveLow == nil || cfg.Sim.SensorSteps == nil {
		return fmt.Errorf("config is not normalized")
	}
	if _, err := cfg.EngineConfig(); err != nil {
		return fmt.Errorf("motion: %w", err)
	}
	if cfg.Motion.HomingTimeoutMs < 0 {
		return fmt.Errorf("motion: homing_timeout_ms must not be negative")
	}
	if cfg.Motion.ClockHz <= 0 {
		return fmt.Errorf("motion: clock_hz must be positive")
	}

	d := cfg.Driver
	for name, v := range map[string]float64{
		"torque_ma":      d.TorqueMA,
		"overcurrent_ma": d.OverCurrentMA,
		"time_on_us":     d.TimeOnUs,
		"time_off_us":    d.TimeOffUs,
		"time_fast_us":   d.TimeFastUs,
	} {
		if v < 0 {
			return fmt.Errorf("driver: %s must be positive", name)
		}
	}

	p := cfg.Pins
	pins := map[uint32]string{}
	for name, pin := range map[string]uint32{
		"step":        p.Step,
		"direction":   p.Direction,
		"reference":   p.Reference,
		"chip_select": p.ChipSelect,
		"reset":       p.Reset,
	} {
		if other, dup := pins[pin]; dup {
			return fmt.Errorf("pins: %s and %s share pin %d", name, other, pin)
		}
		pins[pin] = name
	}

	if cfg.Serial.Baud <= 0 {
		return fmt.Errorf("serial: baud must be positive")
	}
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if cfg.Sim.TravelSteps <= 0 {
		return fmt.Errorf("sim: travel_steps must be positive")
	}
	if *cfg.Sim.SensorSteps > cfg.Sim.TravelSteps {
		return fmt.Errorf("sim: sensor_steps beyond travel_steps")
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
