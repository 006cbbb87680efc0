package motion

import (
	"errors"
	"fmt"
)

// Kind is the category of a motion error
type Kind uint8

const (
	KindPrecondition Kind = iota + 1
	KindRange
	KindHardware
	KindTimeout
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindRange:
		return "range"
	case KindHardware:
		return "hardware"
	case KindTimeout:
		return "timeout"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Reason refines a Kind. Zero means unspecified.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonNotPowered
	ReasonNotReferenced
	ReasonBadArgs
	ReasonBusy
	ReasonPowered
	ReasonSoftLimit
	ReasonNoMovement
)

func (r Reason) String() string {
	switch r {
	case ReasonNotPowered:
		return "not powered"
	case ReasonNotReferenced:
		return "not referenced"
	case ReasonBadArgs:
		return "bad arguments"
	case ReasonBusy:
		return "busy"
	case ReasonPowered:
		return "powered"
	case ReasonSoftLimit:
		return "soft limit"
	case ReasonNoMovement:
		return "no movement"
	default:
		return ""
	}
}

// Error is the error type returned by every motion operation
type Error struct {
	Kind   Kind
	Reason Reason
	// Op is the operation that failed (move, reference, ...)
	Op  string
	Msg string
	// Err wraps the underlying error
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Reason != ReasonNone {
		s += " (" + e.Reason.String() + ")"
	}
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind and, when the target sets one, by reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == ReasonNone || t.Reason == e.Reason
}

// Sentinels for errors.Is.
var (
	ErrPrecondition  = &Error{Kind: KindPrecondition}
	ErrNotPowered    = &Error{Kind: KindPrecondition, Reason: ReasonNotPowered}
	ErrNotReferenced = &Error{Kind: KindPrecondition, Reason: ReasonNotReferenced}
	ErrBadArgs       = &Error{Kind: KindPrecondition, Reason: ReasonBadArgs}
	ErrBusy          = &Error{Kind: KindPrecondition, Reason: ReasonBusy}
	ErrPowered       = &Error{Kind: KindPrecondition, Reason: ReasonPowered}
	ErrRange         = &Error{Kind: KindRange}
	ErrSoftLimit     = &Error{Kind: KindRange, Reason: ReasonSoftLimit}
	ErrNoMovement    = &Error{Kind: KindRange, Reason: ReasonNoMovement}
	ErrHardware      = &Error{Kind: KindHardware}
	ErrTimeout       = &Error{Kind: KindTimeout}
	ErrConfiguration = &Error{Kind: KindConfiguration}
)

// ErrCancelled is the outcome of a motion stopped by Cancel.
var ErrCancelled = errors.New("motion cancelled")

func preconditionError(op string, reason Reason, format string, args ...interface{}) error {
	return &Error{Kind: KindPrecondition, Reason: reason, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func rangeError(op string, reason Reason, format string, args ...interface{}) error {
	return &Error{Kind: KindRange, Reason: reason, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func configError(op string, format string, args ...interface{}) error {
	return &Error{Kind: KindConfiguration, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func timeoutError(op string, format string, args ...interface{}) error {
	return &Error{Kind: KindTimeout, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// hardwareError wraps a collaborator failure. A nil err stays nil.
func hardwareError(op string, err error, msg string) error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) && me.Kind == KindHardware {
		return err
	}
	return &Error{Kind: KindHardware, Op: op, Msg: msg, Err: err}
}
