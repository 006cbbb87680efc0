// Package console is the line-oriented text interface of the controller.
// A line is split into words with shell quoting rules and dispatched by its
// first word. Every reply ends with CRLF and starts with "OK" or "FAIL:".
package console

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"

	"linaxis/core"
	"linaxis/motion"
)

// Controller is the axis the console drives. *motion.Engine implements it.
type Controller interface {
	Move(ctx context.Context, req motion.MoveRequest) error
	Reference(ctx context.Context, req motion.ReferenceRequest) error
	Cancel() bool
	Position() (float64, error)
	PositionSteps() (int32, error)
	Status() (motion.Status, error)
	SetPower(on bool) error
	SetStepMode(resolution int) error
	SetMechanics(stepsPerTurn int, mmPerTurn float64) error
	SetLimits(l motion.Limits) error
	SetElectrical(p core.ElectricalParam, value float64) error
	Electrical(p core.ElectricalParam) (float64, error)
	Reset() error
	Config() motion.Config
}

var _ Controller = (*motion.Engine)(nil)

// Console owns the command table for one controller.
type Console struct {
	ctl      Controller
	log      logrus.FieldLogger
	commands *Registry
	stepper  *Registry
}

// New builds a console with the capability, help and stepper commands.
func New(ctl Controller, log logrus.FieldLogger) *Console {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	c := &Console{
		ctl:      ctl,
		log:      log,
		commands: NewRegistry(),
		stepper:  NewRegistry(),
	}
	c.registerStepper()
	must(c.commands.Register(&Command{
		Name:    "capability",
		Help:    "list the supported features as comma separated bits",
		Handler: c.capability,
	}))
	must(c.commands.Register(&Command{
		Name:    "help",
		Help:    "list the commands",
		Handler: c.help,
	}))
	must(c.commands.Register(&Command{
		Name:    "stepper",
		Help:    "axis control: move, reference, position, status, reset, cancel, config",
		Handler: c.stepperCommand,
		Mode:    c.stepperMode,
	}))
	return c
}

// Registry exposes the top level command table, so callers can add their
// own commands.
func (c *Console) Registry() *Registry {
	return c.commands
}

// Execute runs one line and writes its reply to w. Command failures are
// reported in the reply; the returned error is only set when w fails.
func (c *Console) Execute(ctx context.Context, line string, w io.Writer) error {
	args, err := shlex.Split(line)
	if err != nil {
		return reply(w, failf("%v", err))
	}
	return c.execute(ctx, args, w)
}

func (c *Console) execute(ctx context.Context, args []string, w io.Writer) error {
	if len(args) == 0 {
		return nil
	}
	var buf bytes.Buffer
	err := c.commands.Dispatch(ctx, args, &buf)
	if errors.Is(err, ErrUnknownCommand) {
		err = fmt.Errorf("Unknown command '%s'", args[0])
	}
	if err != nil {
		c.log.WithError(err).WithField("line", strings.Join(args, " ")).Debug("command failed")
		buf.Reset()
		buf.WriteString(failf("%v", err))
	}
	_, werr := w.Write(buf.Bytes())
	return werr
}

// Run reads lines from r until EOF or until ctx ends. Lines run one after
// another, except that status, position and cancel run at once while a
// synchronous move or reference run is waiting.
func (c *Console) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	out := &syncWriter{w: w}
	var (
		running  chan struct{}
		blocking bool
	)
	wait := func() {
		if running != nil {
			<-running
			running = nil
		}
	}
	defer wait()

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		args, err := shlex.Split(strings.TrimRight(sc.Text(), "\r"))
		if err != nil {
			wait()
			if err := reply(out, failf("%v", err)); err != nil {
				return err
			}
			continue
		}
		if len(args) == 0 {
			continue
		}

		if running != nil {
			select {
			case <-running:
				running = nil
			default:
			}
		}
		mode := c.commands.mode(args)
		if running != nil && blocking && mode == ModeImmediate {
			if err := c.execute(ctx, args, out); err != nil {
				return err
			}
			continue
		}
		wait()

		done := make(chan struct{})
		running, blocking = done, mode == ModeBlocking
		go func(args []string) {
			defer close(done)
			if err := c.execute(ctx, args, out); err != nil {
				c.log.WithError(err).Warn("console write failed")
			}
		}(args)
	}
	return sc.Err()
}

func (c *Console) capability(_ context.Context, args []string, w io.Writer) error {
	if len(args) != 0 {
		return errArgCount
	}
	bits := []int{
		0, // spindle
		0, // spindle status
		1, // stepper
		1, // move relative
		1, // move speed
		1, // move async
		1, // status
		1, // reference run
		1, // reference timeout
		1, // reference skip
		1, // reference stay enabled
		1, // reset
		1, // position
		1, // config
		1, // config torque
		1, // config throvercurr
		1, // config powerena
		1, // config stepmode
		1, // config timeoff
		1, // config timeon
		1, // config timefast
		1, // config mmperturn
		1, // config posmax
		1, // config posmin
		1, // config posref
		1, // config stepsperturn
		1, // cancel
	}
	s := make([]string, len(bits))
	for i, b := range bits {
		s[i] = fmt.Sprint(b)
	}
	_, err := fmt.Fprintf(w, "%s\r\nOK\r\n", strings.Join(s, ","))
	return err
}

func (c *Console) help(_ context.Context, _ []string, w io.Writer) error {
	for _, cmd := range c.commands.Commands() {
		fmt.Fprintf(w, "%-12s %s\r\n", cmd.Name, cmd.Help)
	}
	for _, cmd := range c.stepper.Commands() {
		fmt.Fprintf(w, "  %-10s %s\r\n", cmd.Name, cmd.Help)
	}
	_, err := io.WriteString(w, "OK\r\n")
	return err
}

var errArgCount = errors.New("Invalid number of arguments")

func failf(format string, args ...interface{}) string {
	return "FAIL: " + fmt.Sprintf(format, args...) + "\r\n"
}

func reply(w io.Writer, s string) error {
	_, err := io.WriteString(w, s)
	return err
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
