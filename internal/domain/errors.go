package domain

import (
	"errors"
	"fmt"
)

// Error kinds of the allocation pipeline. Match with errors.Is.
var (
	// ErrData is returned for malformed or missing columns/keys in input tables.
	ErrData = errors.New("data error")

	// ErrInput is returned for unusable optimization requests: no allowed
	// symbols or infeasible constraints. Raised before any solve.
	ErrInput = errors.New("input error")

	// ErrModel is returned when training is attempted on empty or degenerate data.
	ErrModel = errors.New("model error")

	// ErrConvergence is returned when the solver terminates without success.
	ErrConvergence = errors.New("convergence error")
)

// Error is a typed pipeline failure.
type Error struct {
	Kind error  // ErrData, ErrInput, ErrModel or ErrConvergence
	Op   string // operation that failed, e.g. "assemble"
	Msg  string
	Err  error // optional cause
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// DataErrorf builds an ErrData failure.
func DataErrorf(op, format string, args ...any) error {
	return newError(ErrData, op, format, args...)
}

// InputErrorf builds an ErrInput failure.
func InputErrorf(op, format string, args ...any) error {
	return newError(ErrInput, op, format, args...)
}

// ModelErrorf builds an ErrModel failure.
func ModelErrorf(op, format string, args ...any) error {
	return newError(ErrModel, op, format, args...)
}

// ConvergenceError reports a solver that stopped without success.
// Status and Message carry the solver's native diagnostic.
type ConvergenceError struct {
	Status     string
	Message    string
	Iterations int
}

func (e *ConvergenceError) Error() string {
	msg := fmt.Sprintf("optimize: %s: solver status %s after %d iterations", ErrConvergence, e.Status, e.Iterations)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is reports ErrConvergence as the kind of e.
func (e *ConvergenceError) Is(target error) bool {
	return target == ErrConvergence
}

// KindOf returns the pipeline kind of err, or nil if err carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrData, ErrInput, ErrModel, ErrConvergence} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
