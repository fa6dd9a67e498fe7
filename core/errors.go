// Package core provides the building blocks of the smartrecord engine.
// This file defines the error taxonomy shared by the compilers, the
// assembler, and the execution coordinator.
package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by strict single-result lookups (One, Refresh)
// when no row matches.
var ErrNotFound = errors.New("core: record not found")

// UnknownAttributeError reports a path segment that is not declared as a
// column or relation on the model it was resolved against.
type UnknownAttributeError struct {
	Model   string // registered model name
	Path    string // full path as given by the caller
	Segment string // offending segment
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("core: unknown attribute %q in path %q on model %s", e.Segment, e.Path, e.Model)
}

// InvalidOperatorError reports an operator suffix outside the supported set.
type InvalidOperatorError struct {
	Key    string // full filter key as given by the caller
	Suffix string // unrecognized operator suffix
}

func (e *InvalidOperatorError) Error() string {
	return fmt.Sprintf("core: invalid operator %q in filter key %q", e.Suffix, e.Key)
}

// TypeMismatchError reports an operand that is incompatible with the
// resolved column's declared type, or an aggregate applied to a column
// of the wrong kind.
type TypeMismatchError struct {
	Path     string
	Operator Operator
	Value    any
	Want     string // human description of what would have been accepted
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("core: operator %s on %q rejects value %v (%T): want %s",
		e.Operator, e.Path, e.Value, e.Value, e.Want)
}

// ConflictingOptionsError reports mutually exclusive or malformed
// assembly options requested together in one call.
type ConflictingOptionsError struct {
	Reason string
}

func (e *ConflictingOptionsError) Error() string {
	return "core: conflicting query options: " + e.Reason
}

// ExecutionError wraps a failure raised by the underlying driver during
// dispatch. It carries the description of the assembled query that
// failed so the caller can diagnose without re-running.
type ExecutionError struct {
	Op      string // operation name (find, insert, ...)
	Query   string // description of the failed query, may be empty for unit-of-work ops
	Timeout bool   // true when the failure was a deadline expiry
	Err     error
}

func (e *ExecutionError) Error() string {
	kind := "execution failed"
	if e.Timeout {
		kind = "execution timed out"
	}
	if e.Query != "" {
		return fmt.Sprintf("core: %s %s: %s: %v", e.Op, kind, e.Query, e.Err)
	}
	return fmt.Sprintf("core: %s %s: %v", e.Op, kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
