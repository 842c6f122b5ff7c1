// Package apperr defines the error kinds surfaced by the chat core.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can map it to a status.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindStorage        Kind = "storage"
	KindInternal       Kind = "internal"
)

// Error carries a kind, a caller-safe message and the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Authentication(msg string, err error) *Error { return newError(KindAuthentication, msg, err) }
func Authorization(msg string) *Error             { return newError(KindAuthorization, msg, nil) }
func Validation(msg string) *Error                { return newError(KindValidation, msg, nil) }
func NotFound(msg string) *Error                  { return newError(KindNotFound, msg, nil) }
func Conflict(msg string) *Error                  { return newError(KindConflict, msg, nil) }
func Storage(msg string, err error) *Error        { return newError(KindStorage, msg, err) }

// KindOf returns the kind of err, or KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err belongs to kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the caller-safe message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
