// Package errors defines the structured error taxonomy shared by the admin
// services, the CLI and the HTTP API.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"net/http"
)

// ErrorCode defines specific error types.
type ErrorCode string

const (
	// ErrAuthInvalid is returned when the credential is rejected by the remote store.
	ErrAuthInvalid ErrorCode = "AUTH_INVALID"
	// ErrRemoteUnavailable is returned when a network or API call fails.
	ErrRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"
	// ErrNotFound is returned when a file or document is missing.
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrConflict is returned when the supplied content hash is stale.
	ErrConflict ErrorCode = "CONFLICT"
	// ErrValidationFailed is returned when input fails local validation.
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrBusy is returned when an operation is already in flight.
	ErrBusy ErrorCode = "BUSY"
	// ErrRateLimited is returned when a client exceeds the request rate.
	ErrRateLimited ErrorCode = "RATE_LIMITED"
	// ErrPayloadTooLarge is returned when a request body exceeds the limit.
	ErrPayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrInternal is returned when an unexpected error occurs.
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// ErrorDetails defines the structured error information in a response.
type ErrorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code, code, and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetails adds details to the error.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	maps.Copy(e.details, details)
	return e
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// Message returns the message without the wrapped error.
func (e *APIError) Message() string {
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// CodeOf returns the code of the outermost ErrorWithStatus in err's chain, or
// ErrInternal when there is none. A nil error has no code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ews ErrorWithStatus
	if stderrors.As(err, &ews) {
		return ews.Code()
	}
	return ErrInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsConflict reports whether err is a stale content hash rejection.
func IsConflict(err error) bool {
	return Is(err, ErrConflict)
}

// IsNotFound reports whether err is a missing file or document.
func IsNotFound(err error) bool {
	return Is(err, ErrNotFound)
}

// Predefined error constructors for common cases

// AuthInvalid creates a 401 error for a rejected credential.
func AuthInvalid(message string) *APIError {
	return NewAPIError(http.StatusUnauthorized, ErrAuthInvalid, message)
}

// RemoteUnavailable creates a 502 error for a failed remote call.
func RemoteUnavailable(message string, err error) *APIError {
	return NewAPIError(http.StatusBadGateway, ErrRemoteUnavailable, message).Wrap(err)
}

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrNotFound, resource+" not found")
}

// Conflict creates a 409 error for a stale content hash.
func Conflict(message string) *APIError {
	return NewAPIError(http.StatusConflict, ErrConflict, message)
}

// Validation creates a 400 error for local input validation failures.
func Validation(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrValidationFailed, message)
}

// Busy creates a 409 error when an operation is already in flight.
func Busy(operation string) *APIError {
	return NewAPIError(http.StatusConflict, ErrBusy, operation+" already in progress")
}

// PayloadTooLarge creates a 413 error for oversized request bodies.
func PayloadTooLarge(limit int64) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrPayloadTooLarge, "request body too large").WithDetail("limit", limit)
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}

// RateLimited creates a 429 error. retryAfter is in seconds.
func RateLimited(retryAfter int) *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrRateLimited, "rate limit exceeded").WithDetail("retry_after", retryAfter)
}
