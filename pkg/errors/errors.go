package errors

import (
	"errors"
	"fmt"
)

// Standard error codes shared across every component. These are abstract
// kinds, not service-specific strings, so callers can switch on Code
// without knowing which package produced the error.
const (
	CodeInvalidArgument     = "INVALID_ARGUMENT"
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodePermissionDenied    = "PERMISSION_DENIED"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeTimeout             = "TIMEOUT"
	CodeUnavailable         = "UNAVAILABLE"
	CodeResourceExhausted   = "RESOURCE_EXHAUSTED"
	CodeInternal            = "INTERNAL"
	CodePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	CodeCancelled           = "CANCELLED"
)

// AppError is the structured error type used throughout the system. It
// carries a stable Code alongside a human-readable Message and optionally
// wraps an underlying cause.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New builds an AppError with the given code, message and optional cause.
func New(code string, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Wrap attaches a message to an error, classifying it as Internal unless it
// is already an AppError (in which case its Code is preserved).
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return New(ae.Code, message+": "+ae.Message, ae.Cause)
	}
	return New(CodeInternal, message, err)
}

// Code returns the AppError code for err, or CodeInternal if err is not an
// AppError (or is nil, in which case it returns "").
func Code(err error) string {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return Code(err) == code
}

func InvalidArgument(message string, cause error) *AppError  { return New(CodeInvalidArgument, message, cause) }
func Unauthenticated(message string, cause error) *AppError  { return New(CodeUnauthenticated, message, cause) }
func PermissionDenied(message string, cause error) *AppError { return New(CodePermissionDenied, message, cause) }
func NotFound(message string, cause error) *AppError         { return New(CodeNotFound, message, cause) }
func Conflict(message string, cause error) *AppError         { return New(CodeConflict, message, cause) }
func Timeout(message string, cause error) *AppError          { return New(CodeTimeout, message, cause) }
func Unavailable(message string, cause error) *AppError      { return New(CodeUnavailable, message, cause) }
func ResourceExhausted(message string, cause error) *AppError {
	return New(CodeResourceExhausted, message, cause)
}
func Internal(message string, cause error) *AppError      { return New(CodeInternal, message, cause) }
func PayloadTooLarge(message string, cause error) *AppError { return New(CodePayloadTooLarge, message, cause) }
func Cancelled(message string, cause error) *AppError      { return New(CodeCancelled, message, cause) }
