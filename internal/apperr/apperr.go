// Package apperr classifies failures so handlers can map them to HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	InvalidInput          Kind = "INVALID_INPUT"
	NotFound              Kind = "NOT_FOUND"
	ClassificationFailure Kind = "CLASSIFICATION_FAILURE"
	StorageFailure        Kind = "STORAGE_FAILURE"
)

// Error carries a Kind, the operation that failed and a client-facing message.
// Err holds the underlying cause, if any.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind, so errors.Is(err, apperr.New(NotFound, "", ""))
// works, but the KindOf helpers below are the usual way to check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsNotFound(err error) bool     { return KindOf(err) == NotFound }
func IsInvalidInput(err error) bool { return KindOf(err) == InvalidInput }

// Status maps err to an HTTP status code. Unclassified errors are 500.
func Status(err error) int {
	switch KindOf(err) {
	case InvalidInput:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message is the text returned to clients in the "error" field.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == ClassificationFailure && e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		if e.Kind == InvalidInput && e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	}
	return "Server error"
}
