// Package hiveerr defines the error taxonomy shared by the plan and review
// engines. Every error is a local, deterministic validation failure and is
// returned to the immediate caller without retry.
//
// Errors can be matched by category with errors.Is against the package
// sentinels, or inspected with errors.As:
//
//	if errors.Is(err, hiveerr.ErrNotFound) { ... }
//
//	var gate *hiveerr.GateBlockedError
//	if errors.As(err, &gate) {
//		fmt.Println(gate.Count)
//	}
package hiveerr

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound    = errors.New("not found")
	ErrGateBlocked = errors.New("gate blocked")
	ErrValidation  = errors.New("validation failed")
)

// NotFoundError reports a referenced entity that does not exist. Msg is the
// user-facing message and always contains the literal missing identifier.
type NotFoundError struct {
	Kind string
	ID   string
	Msg  string
}

// NotFound builds a NotFoundError with the default "<Kind> '<id>' not found" message.
func NotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id, Msg: fmt.Sprintf("%s '%s' not found", kind, id)}
}

// NotFoundf builds a NotFoundError with a custom message.
func NotFoundf(kind, id, format string, args ...any) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id, Msg: fmt.Sprintf(format, args...)}
}

func (e *NotFoundError) Error() string { return e.Msg }

// Is matches ErrNotFound and other NotFoundErrors of the same kind.
func (e *NotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	var other *NotFoundError
	if errors.As(target, &other) {
		return other.Kind == e.Kind && (other.ID == "" || other.ID == e.ID)
	}
	return false
}

// GateBlockedError reports an approval attempted while Count unresolved
// threads or comments remain.
type GateBlockedError struct {
	Count int
	Msg   string
}

// GateBlocked builds a GateBlockedError with a custom message.
func GateBlocked(count int, format string, args ...any) *GateBlockedError {
	return &GateBlockedError{Count: count, Msg: fmt.Sprintf(format, args...)}
}

func (e *GateBlockedError) Error() string { return e.Msg }

func (e *GateBlockedError) Is(target error) bool { return target == ErrGateBlocked }

// ValidationError reports malformed input or an operation that is invalid
// in the current state.
type ValidationError struct {
	Field string
	Msg   string
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// IsUserFacing returns true when err belongs to the taxonomy and its message
// is safe to show verbatim.
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrGateBlocked) || errors.Is(err, ErrValidation)
}
