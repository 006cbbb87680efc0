package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"linaxis/core"
	"linaxis/motion"
)

var (
	errFlag       = errors.New("Invalid Flag")
	errSubcommand = errors.New("Unknown Stepper sub command")
	errNoSub      = errors.New("No subcommand provided")
)

func (c *Console) registerStepper() {
	for _, cmd := range []*Command{
		{Name: "move", Help: "move <mm> [-a] [-r] [-s mm/min]", Handler: c.move},
		{Name: "reference", Help: "reference [-t seconds] [-e] [-s]", Handler: c.reference},
		{Name: "position", Help: "print the absolute position", Handler: c.position},
		{Name: "status", Help: "print the driver status", Handler: c.status},
		{Name: "reset", Help: "reset and re-initialize the driver", Handler: c.reset},
		{Name: "cancel", Help: "stop the motion in progress", Handler: c.cancel},
		{Name: "config", Help: "config <param> [value]", Handler: c.config},
		{Name: "trace", Help: "trace [clear]: dump the pulse counter event ring", Handler: c.trace},
	} {
		must(c.stepper.Register(cmd))
	}
}

func (c *Console) stepperCommand(ctx context.Context, args []string, w io.Writer) error {
	if len(args) == 0 {
		return errNoSub
	}
	err := c.stepper.Dispatch(ctx, args, w)
	if errors.Is(err, ErrUnknownCommand) {
		return errSubcommand
	}
	return err
}

func (c *Console) stepperMode(args []string) Mode {
	if len(args) == 0 {
		return ModeSerial
	}
	switch args[0] {
	case "status", "position", "cancel":
		return ModeImmediate
	case "reference":
		return ModeBlocking
	case "move":
		for _, a := range args[1:] {
			if a == "-a" {
				return ModeSerial
			}
		}
		return ModeBlocking
	}
	return ModeSerial
}

// move <mm> [-a] [-r] [-s mm/min]
func (c *Console) move(ctx context.Context, args []string, w io.Writer) error {
	if len(args) < 1 {
		return errArgCount
	}
	target, err := parseFloat(args[0])
	if err != nil {
		return err
	}
	req := motion.MoveRequest{TargetMM: target}
	for i := 1; i < len(args); {
		switch args[i] {
		case "-a":
			req.Async = true
			i++
		case "-r":
			req.Relative = true
			i++
		case "-s":
			if i == len(args)-1 {
				return errArgCount
			}
			if req.SpeedMMPerMin, err = parseFloat(args[i+1]); err != nil {
				return err
			}
			i += 2
		default:
			return errFlag
		}
	}

	if err := c.ctl.Move(ctx, req); err != nil {
		return err
	}
	if req.Async {
		return reply(w, "OK, Move started\r\n")
	}
	pos, err := c.ctl.Position()
	if err != nil {
		return reply(w, "OK\r\n")
	}
	return reply(w, fmt.Sprintf("OK, Position %.2f mm\r\n", pos))
}

// reference [-t seconds] [-e] [-s]
func (c *Console) reference(ctx context.Context, args []string, w io.Writer) error {
	var req motion.ReferenceRequest
	for i := 0; i < len(args); {
		switch args[i] {
		case "-t":
			if i == len(args)-1 {
				return errArgCount
			}
			sec, err := strconv.ParseFloat(args[i+1], 64)
			if err != nil || !(sec > 0) {
				return errors.New("Invalid timeout value")
			}
			req.Timeout = time.Duration(sec * float64(time.Second))
			i += 2
		case "-e":
			req.PowerAfter = true
			i++
		case "-s":
			req.Skip = true
			i++
		default:
			return errFlag
		}
	}

	if err := c.ctl.Reference(ctx, req); err != nil {
		return err
	}
	ref := c.ctl.Config().Limits.RefSteps
	return reply(w, fmt.Sprintf("OK, Reference found and position set to %d\r\n", ref))
}

func (c *Console) position(_ context.Context, args []string, w io.Writer) error {
	if len(args) != 0 {
		return errArgCount
	}
	steps, err := c.ctl.PositionSteps()
	if err != nil {
		return err
	}
	mm, err := c.ctl.Config().Mechanics.StepsToMM(int64(steps))
	if err != nil {
		return err
	}
	return reply(w, fmt.Sprintf("OK, Current absolute position: %d steps = %.2f mm\r\n", steps, mm))
}

func (c *Console) status(_ context.Context, args []string, w io.Writer) error {
	if len(args) != 0 {
		return errArgCount
	}
	st, err := c.ctl.Status()
	if err != nil {
		return err
	}
	f := st.Faults
	fmt.Fprintf(w, "OK, Stepper status:\r\n")
	fmt.Fprintf(w, "  STATE       : %s\r\n", st.State)
	fmt.Fprintf(w, "  RUNNING     : %d\r\n", b2i(st.Running))
	fmt.Fprintf(w, "  REFERENCED  : %d\r\n", b2i(st.Referenced))
	fmt.Fprintf(w, "  HOMING      : %s\r\n", st.Homing)
	fmt.Fprintf(w, "  HIGHZ       : %d\r\n", b2i(f.HighZ))
	fmt.Fprintf(w, "  DIR         : %d\r\n", b2i(f.Direction))
	fmt.Fprintf(w, "  UVLO        : %d\r\n", b2i(f.UnderVoltage))
	fmt.Fprintf(w, "  TH_WRN      : %d\r\n", b2i(f.ThermalWarning))
	fmt.Fprintf(w, "  TH_SD       : %d\r\n", b2i(f.ThermalShutdown))
	fmt.Fprintf(w, "  OCD         : %d\r\n", b2i(f.OverCurrent))
	fmt.Fprintf(w, "  NOTPERF_CMD : %d\r\n", b2i(f.NotPerformed))
	fmt.Fprintf(w, "  WRONG_CMD   : %d\r\n", b2i(f.WrongCommand))
	fmt.Fprintf(w, "  RAW         : 0x%04X\r\n", f.Raw)
	if st.LastErr != nil {
		fmt.Fprintf(w, "  LAST_ERROR  : %v\r\n", st.LastErr)
	}
	return nil
}

func (c *Console) reset(_ context.Context, args []string, w io.Writer) error {
	if len(args) != 0 {
		return errArgCount
	}
	if err := c.ctl.Reset(); err != nil {
		return err
	}
	return reply(w, "OK, Stepper reset\r\n")
}

func (c *Console) cancel(_ context.Context, args []string, w io.Writer) error {
	if len(args) != 0 {
		return errArgCount
	}
	if c.ctl.Cancel() {
		return reply(w, "OK, Movement cancelled\r\n")
	}
	return reply(w, "OK, No movement in progress\r\n")
}

func (c *Console) trace(_ context.Context, args []string, w io.Writer) error {
	if len(args) > 1 {
		return errArgCount
	}
	if len(args) == 1 {
		if args[0] != "clear" {
			return errFlag
		}
		core.ClearTrace()
		return reply(w, "OK\r\n")
	}

	var events [core.TraceRingSize]core.TraceEvent
	n := core.TraceSnapshot(events[:])
	fmt.Fprintf(w, "OK, %d trace events:\r\n", n)
	for _, e := range events[:n] {
		fmt.Fprintf(w, "  %12d %-8s %d %d\r\n", e.Clock, core.TraceName(e.Kind), e.Value1, e.Value2)
	}
	return nil
}

// config <param> [value]
func (c *Console) config(_ context.Context, args []string, w io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		return errArgCount
	}
	p, ok := configParams[args[0]]
	if !ok {
		return fmt.Errorf("Unknown config parameter '%s'", args[0])
	}
	if len(args) == 1 {
		v, err := p.get(c.ctl)
		if err != nil {
			return err
		}
		return reply(w, fmt.Sprintf("OK, %s = %s\r\n", args[0], v))
	}
	if err := p.set(c.ctl, args[1]); err != nil {
		return err
	}
	c.log.WithField("op", "config").WithField(args[0], args[1]).Info("parameter set")
	return reply(w, "OK\r\n")
}

type configParam struct {
	get func(Controller) (string, error)
	set func(Controller, string) error
}

var configParams = map[string]configParam{
	"torque":      electricalParam(core.ParamTorque),
	"throvercurr": electricalParam(core.ParamOverCurrent),
	"timeoff":     electricalParam(core.ParamTimeOff),
	"timeon":      electricalParam(core.ParamTimeOn),
	"timefast":    electricalParam(core.ParamTimeFast),
	"powerena": {
		get: func(ctl Controller) (string, error) {
			st, err := ctl.Status()
			return strconv.Itoa(b2i(st.Powered)), err
		},
		set: func(ctl Controller, s string) error {
			on, err := strconv.ParseBool(s)
			if err != nil {
				return fmt.Errorf("Invalid value '%s'", s)
			}
			return ctl.SetPower(on)
		},
	},
	"stepmode": {
		get: func(ctl Controller) (string, error) {
			return strconv.Itoa(ctl.Config().Mechanics.Resolution), nil
		},
		set: func(ctl Controller, s string) error {
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("Invalid value '%s'", s)
			}
			return ctl.SetStepMode(n)
		},
	},
	"stepsperturn": {
		get: func(ctl Controller) (string, error) {
			return strconv.Itoa(ctl.Config().Mechanics.StepsPerTurn), nil
		},
		set: func(ctl Controller, s string) error {
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("Invalid value '%s'", s)
			}
			return ctl.SetMechanics(n, ctl.Config().Mechanics.MMPerTurn)
		},
	},
	"mmperturn": {
		get: func(ctl Controller) (string, error) {
			return formatFloat(ctl.Config().Mechanics.MMPerTurn), nil
		},
		set: func(ctl Controller, s string) error {
			v, err := parseFloat(s)
			if err != nil {
				return err
			}
			return ctl.SetMechanics(ctl.Config().Mechanics.StepsPerTurn, v)
		},
	},
	"posmax": limitParam(func(l *motion.Limits) *int32 { return &l.MaxSteps }),
	"posmin": limitParam(func(l *motion.Limits) *int32 { return &l.MinSteps }),
	"posref": limitParam(func(l *motion.Limits) *int32 { return &l.RefSteps }),
}

func electricalParam(p core.ElectricalParam) configParam {
	return configParam{
		get: func(ctl Controller) (string, error) {
			v, err := ctl.Electrical(p)
			return formatFloat(v), err
		},
		set: func(ctl Controller, s string) error {
			v, err := parseFloat(s)
			if err != nil {
				return err
			}
			return ctl.SetElectrical(p, v)
		},
	}
}

// limitParam reads and writes one soft limit in mm.
func limitParam(field func(*motion.Limits) *int32) configParam {
	return configParam{
		get: func(ctl Controller) (string, error) {
			cfg := ctl.Config()
			mm, err := cfg.Mechanics.StepsToMM(int64(*field(&cfg.Limits)))
			return formatFloat(mm), err
		},
		set: func(ctl Controller, s string) error {
			mm, err := parseFloat(s)
			if err != nil {
				return err
			}
			cfg := ctl.Config()
			steps, err := cfg.Mechanics.MMToSteps(mm)
			if err != nil {
				return err
			}
			limits := cfg.Limits
			*field(&limits) = int32(steps)
			return ctl.SetLimits(limits)
		},
	}
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("Invalid number '%s'", s)
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
