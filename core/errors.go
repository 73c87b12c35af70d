package core

import "github.com/pkg/errors"

// ErrorCode is the stable, client-facing identifier of an expected failure.
type ErrorCode string

const (
	CodeInvalidCredentials ErrorCode = "invalid_credentials"
	CodeInvalidToken       ErrorCode = "invalid_token"
	CodeForbidden          ErrorCode = "forbidden"
	CodeInvalidRequest     ErrorCode = "invalid_request"
	CodeInvalidTarget      ErrorCode = "invalid_target"
	CodeNotFound           ErrorCode = "not_found"
	CodeConflict           ErrorCode = "conflict"
	CodeTooManyRequests    ErrorCode = "too_many_requests"
	CodeInternal           ErrorCode = "internal"
)

// Error is an expected, recoverable failure. It is never retried.
type Error struct {
	Code    ErrorCode
	Message string
}

func (err *Error) Error() string {
	return err.Message
}

// Is matches any *Error carrying the same code, so sentinels work with errors.Is
// regardless of the message.
func (err *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == err.Code
}

func NewError(code ErrorCode, msg string) error {
	return &Error{Code: code, Message: msg}
}

var (
	ErrInvalidCredentials = NewError(CodeInvalidCredentials, "invalid login or password")
	ErrInvalidToken       = NewError(CodeInvalidToken, "invalid or expired session")
	ErrForbidden          = NewError(CodeForbidden, "permission denied")
	ErrInvalidRequest     = NewError(CodeInvalidRequest, "invalid request")
	ErrInvalidTarget      = NewError(CodeInvalidTarget, "invalid target")
	ErrNotFound           = NewError(CodeNotFound, "not found")
	ErrConflict           = NewError(CodeConflict, "conflict")
	ErrTooManyRequests    = NewError(CodeTooManyRequests, "too many attempts, try again later")
)

func NewInvalidRequestError(msg string) error { return NewError(CodeInvalidRequest, msg) }
func NewInvalidTargetError(msg string) error  { return NewError(CodeInvalidTarget, msg) }
func NewNotFoundError(msg string) error       { return NewError(CodeNotFound, msg) }
func NewConflictError(msg string) error       { return NewError(CodeConflict, msg) }

// ErrorCodeOf returns the code of the *Error at the root of err, or CodeInternal.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	switch e := errors.Cause(err).(type) {
	case *Error:
		return e.Code
	case *ValidationError:
		return CodeInvalidRequest
	}
	return CodeInternal
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return "validation failed"
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
