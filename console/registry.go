package console

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Handler runs a command. args excludes the command name. The reply is
// written to w.
type Handler func(ctx context.Context, args []string, w io.Writer) error

// Mode says how a command line is scheduled against one already running.
type Mode uint8

const (
	// ModeSerial waits for the running command to finish.
	ModeSerial Mode = iota
	// ModeBlocking is serial, and marks a command that waits on motion.
	// Immediate commands may run while it is in progress.
	ModeBlocking
	// ModeImmediate runs at once when the running command is blocking.
	ModeImmediate
)

// Command is one entry of the console's command table.
type Command struct {
	Name    string
	Help    string
	Handler Handler
	// Mode classifies a concrete invocation. Nil means ModeSerial.
	Mode func(args []string) Mode
}

func (c *Command) mode(args []string) Mode {
	if c.Mode == nil {
		return ModeSerial
	}
	return c.Mode(args)
}

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrDuplicate      = errors.New("command already registered")
	ErrNoHelp         = errors.New("command needs a help text")
)

// Registry maps command names to handlers and remembers registration order.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
	order    []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Command),
	}
}

// Register adds a command. Every command needs a help text.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil || cmd.Name == "" || cmd.Handler == nil {
		return errors.New("console: incomplete command")
	}
	if cmd.Help == "" {
		return ErrNoHelp
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[cmd.Name]; exists {
		return ErrDuplicate
	}
	r.commands[cmd.Name] = cmd
	r.order = append(r.order, cmd.Name)
	return nil
}

// Lookup retrieves a command by name
func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Commands returns the registered commands in registration order.
func (r *Registry) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.commands[name])
	}
	return out
}

// Count returns the number of registered commands
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch runs the command named by args[0] with the remaining arguments.
func (r *Registry) Dispatch(ctx context.Context, args []string, w io.Writer) error {
	if len(args) == 0 {
		return ErrUnknownCommand
	}
	cmd, ok := r.Lookup(args[0])
	if !ok {
		return ErrUnknownCommand
	}
	return cmd.Handler(ctx, args[1:], w)
}

// mode classifies a tokenized line. Unknown commands are serial.
func (r *Registry) mode(args []string) Mode {
	if len(args) == 0 {
		return ModeSerial
	}
	cmd, ok := r.Lookup(args[0])
	if !ok {
		return ModeSerial
	}
	return cmd.mode(args[1:])
}
