// Package apperr defines the error kinds shared by every module and a coded
// error type that carries a stable, client-facing code.
package apperr

import (
	"errors"
	"fmt"
)

// Kinds. Match with errors.Is.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrUnavailable = errors.New("unavailable")
	ErrStore       = errors.New("store fault")
)

type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func Validation(code, msg string) *Error {
	return &Error{Kind: ErrValidation, Code: code, Message: msg}
}

func NotFound(code, msg string) *Error {
	return &Error{Kind: ErrNotFound, Code: code, Message: msg}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: ErrConflict, Code: code, Message: msg}
}

func Forbidden(code, msg string) *Error {
	return &Error{Kind: ErrForbidden, Code: code, Message: msg}
}

func Unavailable(code, msg string) *Error {
	return &Error{Kind: ErrUnavailable, Code: code, Message: msg}
}

// Invalid builds a one-off validation error with the generic code.
func Invalid(format string, args ...any) error {
	return Validation("VALIDATION_ERROR", fmt.Sprintf(format, args...))
}

// Store wraps a persistence failure so it matches both ErrStore and cause.
func Store(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, cause)
}

// CodeOf returns the code of the first *Error in the chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
