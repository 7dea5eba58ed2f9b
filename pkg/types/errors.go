package types

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrUnauthorized      = errors.New("authorization error")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrEngine            = errors.New("engine error")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrTimeout           = errors.New("timeout")
)

// Validationf returns a validation error with a client-facing message
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf returns a not-found error for the described entity
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// EngineError describes a failed container engine invocation
type EngineError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *EngineError) Error() string {
	verb := ""
	if len(e.Args) > 0 {
		verb = e.Args[0]
	}
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("engine %s failed (exit %d): %s", verb, e.ExitCode, msg)
}

func (e *EngineError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrEngine, e.Err}
	}
	return []error{ErrEngine}
}

// PartialFailureError reports a multi-step operation where one side effect
// happened and a later one did not
type PartialFailureError struct {
	Container string
	Op        string
	Succeeded string
	Failed    string
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("partial failure in %s of %s: %s succeeded, %s failed: %v",
		e.Op, e.Container, e.Succeeded, e.Failed, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// Code returns the machine-checkable code for an error
func Code(err error) string {
	var pf *PartialFailureError
	switch {
	case err == nil:
		return "OK"
	case errors.As(err, &pf):
		return "PARTIAL_FAILURE"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrUnauthenticated):
		return "UNAUTHENTICATED"
	case errors.Is(err, ErrUnauthorized):
		return "AUTHORIZATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrResourceExhausted):
		return "RESOURCE_EXHAUSTED"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrEngine):
		return "ENGINE_ERROR"
	default:
		return "INTERNAL"
	}
}
