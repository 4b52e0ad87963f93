// Package errs defines the flat error taxonomy shared by every decode-core
// component (spec §6/§7). Components branch on Kind internally (the
// "phase_error" pattern); callers at the external boundary see a Go error.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a small integer error code, stable across the core and safe to
// pass over FFI or log verbatim. Callers must treat unknown values as fatal.
type Kind int32

const (
	OK Kind = iota
	InvalidArgument
	Backend
	IO
	FormatUnsupported
	ModelInvalid
	ParseFailed
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "OK"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case Backend:
		return "BACKEND"
	case IO:
		return "IO"
	case FormatUnsupported:
		return "FORMAT_UNSUPPORTED"
	case ModelInvalid:
		return "MODEL_INVALID"
	case ParseFailed:
		return "PARSE_FAILED"
	default:
		return fmt.Sprintf("UNKNOWN_KIND(%d)", int32(k))
	}
}

// Error pairs a Kind with a human-readable message and an optional phase
// name identifying which state-machine step produced it. It implements the
// standard error interface and supports errors.Is/As via Unwrap.
type Error struct {
	Kind    Kind
	Phase   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("%s: %s: %s", e.Phase, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no phase and no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InPhase attaches a phase name (e.g. "validating", "scanning") to an Error.
// Of the phase+reason+index+aux record spec §4.1 describes for the
// allocator's failure routing, it carries the phase and the reason (as
// Message); there is no index or aux field.
func InPhase(phase string, kind Kind, message string) *Error {
	return &Error{Kind: kind, Phase: phase, Message: message}
}

// Wrap attaches a cause to an Error for errors.Unwrap chains.
func Wrap(kind Kind, phase string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Phase: phase, Message: msg, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, else
// returns Backend — an error escaping the core without a Kind is always
// treated as a backend failure, never swallowed silently.
func KindOf(err error) Kind {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Backend
}
