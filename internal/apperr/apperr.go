// Package apperr defines the relay's error taxonomy.
//
// Every failure that reaches the poll loop carries one of four kinds so the
// loop can decide between failover, skip-and-count, and swallow-and-log
// without inspecting driver errors.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrConnectivity = errors.New("connectivity lost")
	ErrNotFound     = errors.New("reference not found")
	ErrWrite        = errors.New("write failed")
	ErrSideEffect   = errors.New("side effect failed")
)

// Error ties an operation name and a kind to the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Connectivity(op string, err error) error {
	return &Error{Op: op, Kind: ErrConnectivity, Err: err}
}

func NotFound(op string, err error) error {
	return &Error{Op: op, Kind: ErrNotFound, Err: err}
}

func Write(op string, err error) error {
	return &Error{Op: op, Kind: ErrWrite, Err: err}
}

func SideEffect(op string, err error) error {
	return &Error{Op: op, Kind: ErrSideEffect, Err: err}
}

func IsConnectivity(err error) bool { return errors.Is(err, ErrConnectivity) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Kind returns a stable label for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrNotFound):
		return "not_found"

	case errors.Is(err, ErrWrite):
		return "write"

	case errors.Is(err, ErrSideEffect):
		return "side_effect"

	case errors.Is(err, ErrConnectivity):
		return "connectivity"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}
