package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"linaxis/motion"
)

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	mc, err := cfg.EngineConfig()
	if err != nil {
		t.Fatal(err)
	}
	want := motion.Limits{MinSteps: 0, MaxSteps: 100000, RefSteps: 0}
	if mc.Limits != want {
		t.Errorf("limits = %+v, want %+v", mc.Limits, want)
	}
	if mc.Mechanics != motion.DefaultMechanics() {
		t.Errorf("mechanics = %+v", mc.Mechanics)
	}
	if mc.DefaultSpeed != 500 || mc.HomingPoll != 10*time.Millisecond || mc.HomingTimeout != 0 {
		t.Errorf("motion = %+v", mc)
	}
	if !mc.Pins.ReferenceActiveLow {
		t.Error("reference sensor should default to active low")
	}
	if cfg.Serial.Baud != 115200 || cfg.Level() != logrus.InfoLevel {
		t.Errorf("serial/log defaults = %+v %v", cfg.Serial, cfg.Level())
	}
}

func TestDefaultEngineConfig(t *testing.T) {
	cfg := Default()
	mc, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("EngineConfig failed: %v", err)
	}
	want := motion.Limits{MinSteps: 0, MaxSteps: 100000, RefSteps: 0}
	if mc.Limits != want {
		t.Errorf("limits = %+v, want %+v", mc.Limits, want)
	}
	if cfg.Motion.DefaultSpeed != mc.DefaultSpeed {
		t.Errorf("default speed = %g, section says %g", mc.DefaultSpeed, cfg.Motion.DefaultSpeed)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate(Default()) = %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	doc := `
mechanics:
  steps_per_turn: 400
  resolution: 8
  mm_per_turn: 5
limits:
  min_mm: -10
  max_mm: 200
  ref_mm: 0
motion:
  default_speed_mm_min: 1200
  homing_timeout_ms: 30000
pins:
  direction: 6
  reference: 7
  reference_active_low: false
log:
  level: debug
sim:
  sensor_steps: 0
`
	path := filepath.Join(t.TempDir(), "linaxis.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	mc, err := cfg.EngineConfig()
	if err != nil {
		t.Fatal(err)
	}
	// 400 * 8 / 5 = 640 steps/mm
	want := motion.Limits{MinSteps: -6400, MaxSteps: 128000, RefSteps: 0}
	if mc.Limits != want {
		t.Errorf("limits = %+v, want %+v", mc.Limits, want)
	}
	if mc.HomingTimeout != 30*time.Second {
		t.Errorf("homing timeout = %v", mc.HomingTimeout)
	}
	if mc.Pins.ReferenceActiveLow {
		t.Error("reference_active_low: false was overridden")
	}
	if cfg.Level() != logrus.DebugLevel {
		t.Errorf("level = %v", cfg.Level())
	}
	if got := cfg.SimMachine().SensorSteps; got != 0 {
		t.Errorf("sim sensor steps = %d, want explicit 0", got)
	}
	if cfg.L6474().Resolution != 8 {
		t.Errorf("driver resolution = %d", cfg.L6474().Resolution)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"ref outside limits", "limits: {min_mm: 0, max_mm: 10, ref_mm: 20}", "motion"},
		{"bad step mode", "mechanics: {resolution: 3}", "step mode"},
		{"negative mm per turn", "mechanics: {mm_per_turn: -4}", "mm per turn"},
		{"negative timeout", "motion: {homing_timeout_ms: -1}", "homing"},
		{"shared pins", "pins: {step: 5, direction: 5, reference: 6}", "share pin"},
		{"bad log level", "log: {level: loud}", "log"},
		{"malformed yaml", "mechanics: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateWrapsMotionErrors(t *testing.T) {
	_, err := Parse([]byte("limits: {min_mm: 5, max_mm: 1}"))
	if !errors.Is(err, motion.ErrConfiguration) {
		t.Errorf("error %v is not a configuration error", err)
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	cfg := Default()
	before := *cfg
	if err := Validate(cfg); err != nil {
		t.Fatal(err)
	}
	if before.Mechanics != cfg.Mechanics || before.Motion != cfg.Motion || before.Serial != cfg.Serial {
		t.Error("Validate mutated the configuration")
	}
	if err := Validate(&Config{}); err == nil {
		t.Error("expected error for a config that was never normalized")
	}
}
