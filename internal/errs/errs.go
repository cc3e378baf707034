// Package errs defines the error taxonomy shared by the simulation core.
// Errors carry a machine-readable code and a human-readable message so the
// API layer can relay them to clients without inspecting strings.
package errs

import "fmt"

// Code is a machine-readable error category.
type Code string

const (
	CodeNotFound     Code = "NOT_FOUND"
	CodeInvalidState Code = "INVALID_STATE"
	CodeInvalidInput Code = "INVALID_INPUT"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	NotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	InvalidState = &Error{Code: CodeInvalidState, Message: "invalid state"}
	InvalidInput = &Error{Code: CodeInvalidInput, Message: "invalid input"}
)

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error that wraps an underlying cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
