// Package action defines the contract between workflow steps and the
// external operations they invoke: a typed error taxonomy, an input
// validation spec, a handler registry, and the built-in action types.
package action

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies an action failure at its source. Retryability is
// decided from the kind, never by inspecting message text.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "NETWORK"
	KindTimeout    ErrorKind = "TIMEOUT"
	KindValidation ErrorKind = "VALIDATION"
	KindRateLimit  ErrorKind = "RATE_LIMIT"
	KindConflict   ErrorKind = "CONFLICT"
	KindInternal   ErrorKind = "INTERNAL"
)

// Error is a structured action failure.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("action error [%s/%s]: %s", e.Kind, e.Code, e.Message)
}

// Retryable reports whether a retry can plausibly succeed. Network
// faults, timeouts, and rate limits are transient; validation errors,
// conflicts, and internal faults are terminal on first failure.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindRateLimit:
		return true
	default:
		return false
	}
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind ErrorKind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Retryable reports whether err carries a retryable action error.
// Non-action errors are treated as internal faults: not retryable.
func Retryable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	return false
}

// AsError coerces any error into a structured *Error. Context deadline
// errors become TIMEOUT; everything else unclassified becomes INTERNAL.
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Code: "DEADLINE_EXCEEDED", Message: err.Error()}
	}
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: err.Error()}
}

// Metadata carries timing and retry accounting for one action invocation.
type Metadata struct {
	Duration   time.Duration `json:"durationMs"`
	RetryCount int           `json:"retryCount"`
}

// Result is the outcome of one action invocation. Failed invocations
// carry a structured Error; successful ones carry an Output map.
type Result struct {
	Success  bool           `json:"success"`
	Output   map[string]any `json:"output,omitempty"`
	Error    *Error         `json:"error,omitempty"`
	Metadata Metadata       `json:"metadata"`
}

// Err returns the result's error, or nil on success.
func (r Result) Err() error {
	if r.Success || r.Error == nil {
		return nil
	}
	return r.Error
}

// Failure builds a failed Result from an error.
func Failure(err error) Result {
	return Result{Success: false, Error: AsError(err)}
}

// Vars is the mutable variable bag an action may write into. It is
// implemented by the execution context.
type Vars interface {
	Set(name string, value any)
}

// Input is the resolved, validated parameter set passed to a handler.
type Input struct {
	// Params holds the step's input after template resolution.
	Params map[string]any

	// Vars allows variable-writing actions to mutate execution state.
	Vars Vars
}

// String returns the named param as a string, or "" if absent.
func (in Input) String(name string) string {
	s, _ := in.Params[name].(string)
	return s
}

// Map returns the named param as a map, or nil if absent.
func (in Input) Map(name string) map[string]any {
	m, _ := in.Params[name].(map[string]any)
	return m
}

// Handler executes one action type.
type Handler interface {
	// Type is the action type this handler serves, e.g. "HTTP_REQUEST".
	Type() string

	// Spec describes and constrains the handler's input parameters.
	Spec() Spec

	// Execute performs the action. A returned *Error classifies the
	// failure; any other error is treated as an internal fault.
	Execute(ctx context.Context, in Input) (map[string]any, error)
}
