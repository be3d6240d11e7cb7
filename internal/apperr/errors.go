// Package apperr carries the error taxonomy of the service: every error a
// service returns to a handler is either an *Error or an unexpected failure.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_FAILED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeInternal          Code = "INTERNAL"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"error"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...), Status: http.StatusBadRequest}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...), Status: http.StatusNotFound}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...), Status: http.StatusConflict}
}

func InvalidTransition(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidTransition, Message: fmt.Sprintf(format, args...), Status: http.StatusConflict}
}

func Unauthorized(format string, args ...any) *Error {
	return &Error{Code: CodeUnauthorized, Message: fmt.Sprintf(format, args...), Status: http.StatusUnauthorized}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...), Status: http.StatusForbidden}
}

// Internal wraps an unexpected store or runtime error behind a generic message.
func Internal(err error, format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...), Status: http.StatusInternalServerError, Err: err}
}

// FromStore maps translated GORM errors. what names the entity for messages.
func FromStore(err error, what string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound("%s not found", what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Code: CodeConflict, Message: fmt.Sprintf("%s already exists", what), Status: http.StatusConflict, Err: err}
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return &Error{Code: CodeConflict, Message: fmt.Sprintf("%s is referenced by other records: %v", what, err), Status: http.StatusConflict, Err: err}
	default:
		return Internal(err, "%s could not be processed", what)
	}
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code Code) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}
