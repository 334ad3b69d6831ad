package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the print controller, the patcher
// and the resolver matches exactly one of them with errors.Is.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrDriverProtocol    = errors.New("driver protocol error")
	ErrAlreadyInProgress = errors.New("print already in progress")
)

// Error carries a caller-facing message alongside its kind and cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func invalidInput(format string, args ...any) *Error {
	return newError(ErrInvalidInput, fmt.Sprintf(format, args...), nil)
}

// KindOf returns the error kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrInvalidInput, ErrDeviceUnavailable, ErrDriverProtocol, ErrAlreadyInProgress} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
