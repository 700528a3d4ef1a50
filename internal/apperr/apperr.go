// Package apperr defines the error taxonomy shared by the storage and
// lifecycle core. Every concrete error is an *Error that matches its kind's
// sentinel through errors.Is.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindDanglingReference Kind = "dangling_reference"
	KindIncompleteWrite   Kind = "incomplete_write"
	KindInvalidTransition Kind = "invalid_transition"
	KindTimeout           Kind = "timeout"
	KindValidation        Kind = "validation"
	KindInternal          Kind = "internal"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDanglingReference = errors.New("dangling reference")
	ErrIncompleteWrite   = errors.New("incomplete write")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrTimeout           = errors.New("timeout")
	ErrValidation        = errors.New("validation error")
	ErrInternal          = errors.New("internal error")
)

var sentinels = map[Kind]error{
	KindNotFound:          ErrNotFound,
	KindDanglingReference: ErrDanglingReference,
	KindIncompleteWrite:   ErrIncompleteWrite,
	KindInvalidTransition: ErrInvalidTransition,
	KindTimeout:           ErrTimeout,
	KindValidation:        ErrValidation,
	KindInternal:          ErrInternal,
}

// Error is a classified error with a stable numeric code.
type Error struct {
	Kind Kind
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Kind]
	return ok && sentinel == target
}

func newError(kind Kind, code int, err error) error {
	if err == nil {
		err = sentinels[kind]
	}

	var existing *Error
	if errors.As(err, &existing) && existing.Kind != "" {
		return existing
	}
	return &Error{Kind: kind, Code: code, Err: err}
}

func NotFound(err error) error {
	return NotFoundCode(err, CodeNotFound)
}

func NotFoundCode(err error, code int) error {
	return newError(KindNotFound, code, err)
}

func DanglingReference(err error) error {
	return newError(KindDanglingReference, CodeDanglingReference, err)
}

func IncompleteWrite(err error) error {
	return newError(KindIncompleteWrite, CodeIncompleteWrite, err)
}

func InvalidTransition(err error) error {
	return newError(KindInvalidTransition, CodeInvalidTransition, err)
}

func Timeout(err error) error {
	return newError(KindTimeout, CodeTimeout, err)
}

func Validation(err error) error {
	return ValidationCode(err, CodeInvalidArgument)
}

func ValidationCode(err error, code int) error {
	return newError(KindValidation, code, err)
}

func Internal(err error) error {
	return newError(KindInternal, CodeInternal, err)
}

// Validationf formats a validation error.
func Validationf(format string, args ...any) error {
	return Validation(fmt.Errorf(format, args...))
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the numeric code of err, or 0 when err is not classified.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// FromContext converts an expired deadline into a timeout error and leaves
// every other error untouched.
func FromContext(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(fmt.Errorf("operation timed out: %w", err))
	}
	return err
}
