package service

import (
	"errors"
	"fmt"

	"github.com/finchly/expenseflow/internal/policy"
)

// Kind classifies a service failure for transport mapping. Expected business
// violations (policy errors, stale versions, bad transitions) travel as
// typed kinds; only infrastructure failures are KindInternal.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindConflict          Kind = "conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindInternal          Kind = "internal"
)

// Error is the failure type returned by all service operations
type Error struct {
	Kind    Kind
	Message string
	// Details carries field-level violations for validation failures
	Details *policy.Result
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Err
}

// NotFoundError reports a missing resource
func NotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// ForbiddenError reports an authorization failure
func ForbiddenError(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// ConflictError reports a stale-version write
func ConflictError(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// InvalidTransitionError reports a trigger fired from the wrong state
func InvalidTransitionError(message string) *Error {
	return &Error{Kind: KindInvalidTransition, Message: message}
}

// ValidationError reports field-level violations
func ValidationError(message string, details *policy.Result) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

// InternalError wraps an unexpected infrastructure failure
func InternalError(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf extracts the kind of a service error, or KindInternal for any
// other error value.
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}
