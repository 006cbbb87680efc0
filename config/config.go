// Package config loads the YAML configuration of the host-side tools.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"linaxis/core"
	"linaxis/driver/l6474"
	"linaxis/motion"
	"linaxis/sim"
)

type Config struct {
	Mechanics MechanicsConfig `yaml:"mechanics"`
	Limits    LimitsConfig    `yaml:"limits"`
	Motion    MotionConfig    `yaml:"motion"`
	Driver    DriverConfig    `yaml:"driver"`
	Pins      PinsConfig      `yaml:"pins"`
	Serial    SerialConfig    `yaml:"serial"`
	Log       LogConfig       `yaml:"log"`
	Sim       SimConfig       `yaml:"sim"`
}

// ---- MECHANICS ----

type MechanicsConfig struct {
	StepsPerTurn int     `yaml:"steps_per_turn"`
	Resolution   int     `yaml:"resolution"`
	MMPerTurn    float64 `yaml:"mm_per_turn"`
}

// ---- LIMITS ----

// Zero is a meaningful limit, so unset limits are nil.
type LimitsConfig struct {
	MinMM *float64 `yaml:"min_mm"`
	MaxMM *float64 `yaml:"max_mm"`
	RefMM *float64 `yaml:"ref_mm"`
}

// ---- MOTION ----

type MotionConfig struct {
	DefaultSpeed    float64 `yaml:"default_speed_mm_min"`
	HomingTimeoutMs int     `yaml:"homing_timeout_ms"` // 0 = unbounded
	HomingPollMs    int     `yaml:"homing_poll_ms"`
	ClockHz         int64   `yaml:"clock_hz"`
}

// ---- DRIVER ----

type DriverConfig struct {
	TorqueMA      float64 `yaml:"torque_ma"`
	OverCurrentMA float64 `yaml:"overcurrent_ma"`
	TimeOnUs      float64 `yaml:"time_on_us"`
	TimeOffUs     float64 `yaml:"time_off_us"`
	TimeFastUs    float64 `yaml:"time_fast_us"`
}

// ---- PINS ----

type PinsConfig struct {
	Step               uint32 `yaml:"step"`
	Direction          uint32 `yaml:"direction"`
	Reference          uint32 `yaml:"reference"`
	ChipSelect         uint32 `yaml:"chip_select"`
	Reset              uint32 `yaml:"reset"`
	InvertDirection    bool   `yaml:"invert_direction"`
	ReferenceActiveLow *bool  `yaml:"reference_active_low"`
}

// ---- SERIAL ----

type SerialConfig struct {
	Device        string `yaml:"device"`
	Baud          int    `yaml:"baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"`
}

// ---- SIM ----

type SimConfig struct {
	SensorSteps *int32 `yaml:"sensor_steps"`
	TravelSteps int32  `yaml:"travel_steps"`
	Realtime    bool   `yaml:"realtime"`
}

// Load reads, parses and normalizes a configuration file, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse is Load for an in-memory document. An empty document yields the
// defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	Normalize(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the normalized zero configuration.
func Default() *Config {
	var cfg Config
	Normalize(&cfg)
	return &cfg
}

// EngineConfig maps the configuration to the engine's. Limits are converted to
// steps with the configured mechanics.
func (c *Config) EngineConfig() (motion.Config, error) {
	mech := motion.MechanicalConfig{
		StepsPerTurn: c.Mechanics.StepsPerTurn,
		Resolution:   c.Mechanics.Resolution,
		MMPerTurn:    c.Mechanics.MMPerTurn,
	}
	conv := func(mm *float64) (int32, error) {
		steps, err := mech.MMToSteps(*mm)
		return int32(steps), err
	}
	var limits motion.Limits
	var err error
	if limits.MinSteps, err = conv(c.Limits.MinMM); err != nil {
		return motion.Config{}, err
	}
	if limits.MaxSteps, err = conv(c.Limits.MaxMM); err != nil {
		return motion.Config{}, err
	}
	if limits.RefSteps, err = conv(c.Limits.RefMM); err != nil {
		return motion.Config{}, err
	}
	mc := motion.Config{
		Mechanics:     mech,
		Limits:        limits,
		DefaultSpeed:  c.Motion.DefaultSpeed,
		HomingTimeout: time.Duration(c.Motion.HomingTimeoutMs) * time.Millisecond,
		HomingPoll:    time.Duration(c.Motion.HomingPollMs) * time.Millisecond,
		Pins: motion.Pins{
			Direction:          core.GPIOPin(c.Pins.Direction),
			Reference:          core.GPIOPin(c.Pins.Reference),
			InvertDirection:    c.Pins.InvertDirection,
			ReferenceActiveLow: *c.Pins.ReferenceActiveLow,
		},
	}
	return mc, mc.Validate()
}

// ClockFrequency is the pulse timer input clock.
func (c *Config) ClockFrequency() physic.Frequency {
	return physic.Frequency(c.Motion.ClockHz) * physic.Hertz
}

// L6474 maps the driver section.
func (c *Config) L6474() l6474.Config {
	return l6474.Config{
		CS:          core.GPIOPin(c.Pins.ChipSelect),
		Reset:       core.GPIOPin(c.Pins.Reset),
		Resolution:  c.Mechanics.Resolution,
		Torque:      physic.ElectricCurrent(c.Driver.TorqueMA * float64(physic.MilliAmpere)),
		OverCurrent: physic.ElectricCurrent(c.Driver.OverCurrentMA * float64(physic.MilliAmpere)),
		TimeOn:      time.Duration(c.Driver.TimeOnUs * float64(time.Microsecond)),
		TimeOff:     time.Duration(c.Driver.TimeOffUs * float64(time.Microsecond)),
		TimeFast:    time.Duration(c.Driver.TimeFastUs * float64(time.Microsecond)),
	}
}

// SimMachine maps the sim section.
func (c *Config) SimMachine() sim.Config {
	sc := sim.DefaultConfig()
	sc.SensorSteps = *c.Sim.SensorSteps
	sc.TravelSteps = c.Sim.TravelSteps
	sc.Clock = c.ClockFrequency()
	sc.DirectionPin = core.GPIOPin(c.Pins.Direction)
	sc.ReferencePin = core.GPIOPin(c.Pins.Reference)
	sc.InvertDirection = c.Pins.InvertDirection
	sc.ReferenceActiveLow = *c.Pins.ReferenceActiveLow
	sc.Realtime = c.Sim.Realtime
	return sc
}
