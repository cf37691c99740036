package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across healthgraph.
type ErrorCode string

// Retrieval error codes
const (
	ErrExtractionFailure ErrorCode = "EXTRACTION_FAILURE"
	ErrStoreUnavailable  ErrorCode = "STORE_UNAVAILABLE"
	ErrStoreQuery        ErrorCode = "STORE_QUERY"
	ErrLLMFailure        ErrorCode = "LLM_FAILURE"
)

// Ingestion error codes
const (
	ErrIngestValidation ErrorCode = "INGEST_VALIDATION"
)

// Generic error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrTimeout        ErrorCode = "TIMEOUT"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// NewExtractionFailure reports that the entity step failed or returned
// output that does not match its contract.
func NewExtractionFailure(message string, cause error) *Error {
	return NewError(ErrExtractionFailure, message).
		WithCause(cause).
		WithRetryable(true).
		WithHTTPStatus(http.StatusBadGateway)
}

// NewStoreUnavailable reports an unreachable graph or vector backend.
func NewStoreUnavailable(message string, cause error) *Error {
	return NewError(ErrStoreUnavailable, message).
		WithCause(cause).
		WithRetryable(true).
		WithHTTPStatus(http.StatusServiceUnavailable)
}

// NewIngestValidation reports a batch that cannot be written. Never retried.
func NewIngestValidation(message string) *Error {
	return NewError(ErrIngestValidation, message).
		WithHTTPStatus(http.StatusBadRequest)
}

// IsRetryable checks if an error is retryable. Wrapped errors are inspected.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}
