package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for Graph API errors.
type ErrorCode string

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Identifier error codes
const (
	INVALID_IDENTIFIER ErrorCode = "INVALID_IDENTIFIER"
)

// Pool error codes
const (
	POOL_NOT_INITIALIZED     ErrorCode = "POOL_NOT_INITIALIZED"
	POOL_ALREADY_INITIALIZED ErrorCode = "POOL_ALREADY_INITIALIZED"
	POOL_CLOSED              ErrorCode = "POOL_CLOSED"
)

// Engine error codes
const (
	CONNECTION_FAILED       ErrorCode = "CONNECTION_FAILED"
	ENGINE_OPERATION_FAILED ErrorCode = "ENGINE_OPERATION_FAILED"
	DATABASE_NOT_FOUND      ErrorCode = "DATABASE_NOT_FOUND"
	DATABASE_EXISTS         ErrorCode = "DATABASE_EXISTS"
	UNSUPPORTED_OPERATION   ErrorCode = "UNSUPPORTED_OPERATION"
)

// Admission error codes
const (
	ADMISSION_REJECTED ErrorCode = "ADMISSION_REJECTED"
	PAYLOAD_TOO_LARGE  ErrorCode = "PAYLOAD_TOO_LARGE"
)

// Observability error codes
const (
	TELEMETRY_FAILED ErrorCode = "TELEMETRY_FAILED"
)

// GraphError represents a structured error with error code, message, and optional cause.
// It supports error wrapping and retryability hints for the HTTP layer's retry policy.
type GraphError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *GraphError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As chains.
func (e *GraphError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a GraphError with the same Code.
func (e *GraphError) Is(target error) bool {
	var graphErr *GraphError
	if errors.As(target, &graphErr) {
		return e.Code == graphErr.Code
	}
	return false
}

// NewError creates a new non-retryable GraphError with the given code and message.
func NewError(code ErrorCode, message string) *GraphError {
	return &GraphError{
		Code:    code,
		Message: message,
	}
}

// NewRetryableError creates a new retryable GraphError.
// Use this for transient failures such as a native connect that may succeed later.
func NewRetryableError(code ErrorCode, message string) *GraphError {
	return &GraphError{
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// WrapError creates a new non-retryable GraphError that wraps an existing error.
func WrapError(code ErrorCode, message string, cause error) *GraphError {
	return &GraphError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapRetryableError creates a new retryable GraphError that wraps an existing error.
func WrapRetryableError(code ErrorCode, message string, cause error) *GraphError {
	return &GraphError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// CodeOf returns the ErrorCode of the first GraphError in err's chain,
// or the empty code when there is none.
func CodeOf(err error) ErrorCode {
	var graphErr *GraphError
	if errors.As(err, &graphErr) {
		return graphErr.Code
	}
	return ""
}

// IsRetryable reports whether the first GraphError in err's chain is retryable.
func IsRetryable(err error) bool {
	var graphErr *GraphError
	if errors.As(err, &graphErr) {
		return graphErr.Retryable
	}
	return false
}
