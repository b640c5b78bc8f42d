// Package apperror classifies failures so the HTTP layer can map them to status codes.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of failure.
type Kind int

const (
	KindStorage Kind = iota
	KindValidation
	KindConflict
	KindDuplicate
	KindNotFound
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindDuplicate:
		return "duplicate"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "storage"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindDuplicate:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is an application error carrying a client-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error { return New(KindValidation, message, nil) }

func Conflict(message string) *Error { return New(KindConflict, message, nil) }

func Duplicate(message string) *Error { return New(KindDuplicate, message, nil) }

func NotFound(message string) *Error { return New(KindNotFound, message, nil) }

func Unauthorized(message string) *Error { return New(KindUnauthorized, message, nil) }

func Forbidden(message string) *Error { return New(KindForbidden, message, nil) }

// Storage wraps an underlying store or file-system failure.
func Storage(message string, err error) *Error { return New(KindStorage, message, err) }

// KindOf returns the kind of err. Unclassified errors are storage failures.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindStorage
}

// Is reports whether err is an application error of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// StatusOf maps err to an HTTP status code.
func StatusOf(err error) int {
	return KindOf(err).Status()
}

// MessageOf returns the client-facing message of err, or fallback for unclassified errors.
func MessageOf(err error, fallback string) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}
