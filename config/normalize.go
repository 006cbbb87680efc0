package config

// Normalize fills in defaults for everything left unset.
// It is allowed to mutate configuration.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	m := &cfg.Mechanics
	if m.StepsPerTurn == 0 {
		m.StepsPerTurn = 200
	}
	if m.Resolution == 0 {
		m.Resolution = 16
	}
	if m.MMPerTurn == 0 {
		m.MMPerTurn = 4.0
	}

	l := &cfg.Limits
	if l.MinMM == nil {
		l.MinMM = float64Ptr(0)
	}
	if l.MaxMM == nil {
		l.MaxMM = float64Ptr(125)
	}
	if l.RefMM == nil {
		l.RefMM = float64Ptr(*l.MinMM)
	}

	mo := &cfg.Motion
	if mo.DefaultSpeed == 0 {
		mo.DefaultSpeed = 500
	}
	if mo.HomingPollMs == 0 {
		mo.HomingPollMs = 10
	}
	if mo.ClockHz == 0 {
		mo.ClockHz = 90000000
	}

	d := &cfg.Driver
	if d.TorqueMA == 0 {
		d.TorqueMA = 600
	}
	if d.OverCurrentMA == 0 {
		d.OverCurrentMA = 3000
	}
	if d.TimeOnUs == 0 {
		d.TimeOnUs = 21
	}
	if d.TimeOffUs == 0 {
		d.TimeOffUs = 21
	}
	if d.TimeFastUs == 0 {
		d.TimeFastUs = 10
	}

	p := &cfg.Pins
	if p.Step == 0 && p.Direction == 0 && p.Reference == 0 {
		p.Step, p.Direction, p.Reference = 2, 3, 4
	}
	if p.ChipSelect == 0 && p.Reset == 0 {
		p.ChipSelect, p.Reset = 17, 20
	}
	if p.ReferenceActiveLow == nil {
		activeLow := true
		p.ReferenceActiveLow = &activeLow
	}

	s := &cfg.Serial
	if s.Device == "" {
		s.Device = "/dev/ttyACM0"
	}
	if s.Baud == 0 {
		s.Baud = 115200
	}
	if s.ReadTimeoutMs == 0 {
		s.ReadTimeoutMs = 100
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Sim.SensorSteps == nil {
		v := int32(8000)
		cfg.Sim.SensorSteps = &v
	}
	if cfg.Sim.TravelSteps == 0 {
		cfg.Sim.TravelSteps = 100000
	}
}

func float64Ptr(v float64) *float64 {
	return &v
}
