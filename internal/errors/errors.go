// Package errors defines the typed application errors returned by the P2P
// workflow engine and mapped to transport status codes by the handlers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies an application error.
type ErrorCode string

const (
	ErrCodeInvalidPrecondition ErrorCode = "INVALID_PRECONDITION"
	ErrCodeUnknownApprover     ErrorCode = "UNKNOWN_APPROVER"
	ErrCodeNotPending          ErrorCode = "NOT_PENDING"
	ErrCodeNotApproved         ErrorCode = "NOT_APPROVED"
	ErrCodeNotReceived         ErrorCode = "NOT_RECEIVED"
	ErrCodeMatchPrecondition   ErrorCode = "MATCH_PRECONDITION"
	ErrCodeNoPolicyMatch       ErrorCode = "NO_POLICY_MATCH"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrCodeUnavailable         ErrorCode = "UNAVAILABLE"
	ErrCodeInternal            ErrorCode = "INTERNAL"
)

// Sentinels for errors.Is comparisons. Any *Error with the same code matches.
var (
	ErrInvalidPrecondition = &Error{Code: ErrCodeInvalidPrecondition}
	ErrUnknownApprover     = &Error{Code: ErrCodeUnknownApprover}
	ErrNotPending          = &Error{Code: ErrCodeNotPending}
	ErrNotApproved         = &Error{Code: ErrCodeNotApproved}
	ErrNotReceived         = &Error{Code: ErrCodeNotReceived}
	ErrMatchPrecondition   = &Error{Code: ErrCodeMatchPrecondition}
	ErrNoPolicyMatch       = &Error{Code: ErrCodeNoPolicyMatch}
	ErrNotFound            = &Error{Code: ErrCodeNotFound}
	ErrInvalidInput        = &Error{Code: ErrCodeInvalidInput}
	ErrUnavailable         = &Error{Code: ErrCodeUnavailable}
)

// Error is an application error carrying a code and an optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Field   string
	cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates an error with the given code.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s '%s' not found", resource, id)}
}

// InvalidInput reports a rejected request field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Field: field, Message: message}
}

// CodeOf returns the code of the first *Error in err's chain, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Is is re-exported so callers importing this package need not import the stdlib one.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As is re-exported for the same reason as Is.
func As(err error, target any) bool { return stderrors.As(err, target) }

// HTTPStatus maps an error to an HTTP status code.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeUnknownApprover:
		return http.StatusForbidden
	case ErrCodeInvalidPrecondition, ErrCodeNotPending, ErrCodeNotApproved,
		ErrCodeNotReceived, ErrCodeMatchPrecondition:
		return http.StatusConflict
	case ErrCodeNoPolicyMatch:
		return http.StatusUnprocessableEntity
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
