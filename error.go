package despertador

import (
	"errors"
	"fmt"
)

type errorCode string

const (
	ErrInternal           errorCode = "internal"
	ErrInvalid            errorCode = "invalid"
	ErrNotFound           errorCode = "not_found"
	ErrPermissionDenied   errorCode = "permission_denied"
	ErrBackendUnavailable errorCode = "backend_unavailable"
)

// Error is an application error.
type Error struct {
	// Code is a machine-readable error code.
	Code errorCode

	// Description is a human-readable description of the error. For
	// ErrPermissionDenied it is meant to be shown to the user as is.
	Description string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return "despertador: " + string(e.Code) + ": " + e.Description
}

// Errorf returns an application error with the given code and a
// description formatted as with fmt.Sprintf.
func Errorf(code errorCode, format string, args ...any) error {
	return &Error{code, fmt.Sprintf(format, args...)}
}

// ErrorCode returns the error code associated with err, or ErrInternal if err
// isn't an application error.
func ErrorCode(err error) errorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return ErrInternal
}

// ErrorDescription returns a human-readable description of the error, or
// "internal error" if err isn't an application error.
func ErrorDescription(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Description != "" {
		return e.Description
	}
	return "internal error"
}
