/*
Package errors defines the typed failure taxonomy shared by every layer of
the memory engine. Callers are expected to match with stdlib errors.Is
rather than inspecting messages.
*/
package errors

import (
	stderrors "errors"
	"fmt"
)

/*
Error is a typed engine error with a stable code. The sentinel values below
are the only codes the engine ever surfaces; use WithMessagef to attach
detail without losing identity.
*/
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	cause   error
}

/*
Error implements the error interface.
*/
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

/*
Is reports whether target carries the same code, so wrapped copies made by
WithMessagef and WithCause still match their sentinel.
*/
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

/*
Unwrap exposes the underlying cause, if any.
*/
func (e *Error) Unwrap() error {
	return e.cause
}

var (
	// ErrNotFound means a referenced memory or relationship does not exist.
	// Propagated to the caller, never retried.
	ErrNotFound = &Error{Code: 1000, Message: "memory not found"}

	// ErrInvalidRelationshipType rejects any relationship type outside the
	// closed UPDATE/EXTEND/DERIVE set, before anything reaches storage.
	ErrInvalidRelationshipType = &Error{Code: 1001, Message: "invalid relationship type"}

	// ErrInvalidConfidence rejects confidence values outside [0.0, 1.0].
	ErrInvalidConfidence = &Error{Code: 1002, Message: "confidence must be between 0.0 and 1.0"}

	// ErrLineageConflict rejects a second UPDATE edge out of a node that has
	// already been superseded, which would fork the version chain.
	ErrLineageConflict = &Error{Code: 1003, Message: "node is already superseded by a newer version"}

	// ErrEmbeddingUnavailable means no embedding backend produced a vector.
	// The engine fails closed instead of inventing one.
	ErrEmbeddingUnavailable = &Error{Code: 2000, Message: "no embedding backend available"}

	// ErrGenerationUnavailable means no text-generation backend is configured
	// or the configured one refused the request.
	ErrGenerationUnavailable = &Error{Code: 2001, Message: "no generation backend available"}

	// ErrUpstreamTimeout wraps a deadline hit while talking to a backing
	// store or model provider.
	ErrUpstreamTimeout = &Error{Code: 2002, Message: "upstream call timed out"}

	// ErrStorageWrite means a write to the vector index or graph store
	// failed. A partial dual-write is repaired by the reconciliation pass.
	ErrStorageWrite = &Error{Code: 3000, Message: "storage write failed"}

	// ErrConsistencyFault marks detected drift between the vector index and
	// the graph store for the same id.
	ErrConsistencyFault = &Error{Code: 3001, Message: "vector and graph stores disagree"}
)

/*
Is reports whether any error in err's chain matches target. It forwards to
the standard library so callers only need this package.
*/
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

/*
As finds the first error in err's chain that matches target, forwarding to
the standard library.
*/
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

/*
WithMessagef creates a *copy* of an Error with a formatted message. It does
not modify the sentinel.
*/
func (e *Error) WithMessagef(format string, args ...any) *Error {
	newErr := *e
	newErr.Message = fmt.Sprintf(format, args...)
	return &newErr
}

/*
WithCause creates a *copy* of an Error wrapping an underlying cause, which
remains reachable through errors.Unwrap.
*/
func (e *Error) WithCause(cause error) *Error {
	newErr := *e
	newErr.cause = cause
	return &newErr
}
