// Package apperr classifies domain errors so transports can map them to
// status codes without knowing the feature that produced them.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of a domain error
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindInvalidState
	KindPrecondition
	KindNotFound
	KindConflict
	KindForbidden
)

// String returns the wire code for the kind
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindInvalidState:
		return "INVALID_STATE"
	case KindPrecondition:
		return "PRECONDITION_FAILED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONCURRENCY_CONFLICT"
	case KindForbidden:
		return "FORBIDDEN"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is a classified error. Sentinels of this type are compared by identity
// with errors.Is, so wrap them with %w to add context.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error   { return New(KindValidation, message) }
func InvalidState(message string) *Error { return New(KindInvalidState, message) }
func Precondition(message string) *Error { return New(KindPrecondition, message) }
func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }

// Validationf creates a validation error with a formatted message
func Validationf(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
