package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType categorizes a failed backend call
type ErrorType string

const (
	// ErrTypeValidation indicates a request that was never sent
	ErrTypeValidation ErrorType = "validation"

	// ErrTypeNetwork indicates the server could not be reached
	ErrTypeNetwork ErrorType = "network"

	// ErrTypeHTTPStatus indicates a non-2xx response without an error envelope
	ErrTypeHTTPStatus ErrorType = "http_status"

	// ErrTypeServer indicates success=false with a server-supplied message
	ErrTypeServer ErrorType = "server"

	// ErrTypeTimeout indicates the request deadline expired
	ErrTypeTimeout ErrorType = "timeout"

	// ErrTypeAborted indicates the caller cancelled the request
	ErrTypeAborted ErrorType = "aborted"

	// ErrTypeDecode indicates a response body that could not be parsed
	ErrTypeDecode ErrorType = "decode"
)

// Error is returned by every Client method
type Error struct {
	// Type categorizes the error
	Type ErrorType `json:"type"`

	// Message is the human-readable description; for server errors it is
	// the backend's message verbatim
	Message string `json:"message"`

	// Endpoint is the path that was called
	Endpoint string `json:"endpoint,omitempty"`

	// StatusCode for HTTP-related errors
	StatusCode int `json:"status_code,omitempty"`

	// Underlying error that caused this error
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Endpoint != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", e.Endpoint))
	}

	parts = append(parts, fmt.Sprintf("type=%s", e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%s", e.Cause.Error()))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on error type
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Type == t.Type
	}
	return false
}

// NewError creates an error without a cause
func NewError(errType ErrorType, message, endpoint string) *Error {
	return &Error{
		Type:     errType,
		Message:  message,
		Endpoint: endpoint,
	}
}

// NewErrorWithCause creates an error with an underlying cause
func NewErrorWithCause(errType ErrorType, message, endpoint string, cause error) *Error {
	return &Error{
		Type:     errType,
		Message:  message,
		Endpoint: endpoint,
		Cause:    cause,
	}
}

// transportError classifies a failure from http.Client.Do
func transportError(ctx context.Context, endpoint string, err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return NewErrorWithCause(ErrTypeTimeout, "request timed out", endpoint, err)
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return NewErrorWithCause(ErrTypeAborted, "request was cancelled", endpoint, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewErrorWithCause(ErrTypeTimeout, "request timed out", endpoint, err)
	}
	return NewErrorWithCause(ErrTypeNetwork, "could not connect to the server", endpoint, err)
}

func typeOf(err error) ErrorType {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ""
}

// IsTimeout checks if an error is a deadline expiry
func IsTimeout(err error) bool {
	return typeOf(err) == ErrTypeTimeout
}

// IsAborted checks if an error is a caller cancellation
func IsAborted(err error) bool {
	return typeOf(err) == ErrTypeAborted
}

// IsNetwork checks if an error is a connection failure
func IsNetwork(err error) bool {
	return typeOf(err) == ErrTypeNetwork
}

// IsHTTPStatus checks if an error is a bare non-2xx response
func IsHTTPStatus(err error) bool {
	return typeOf(err) == ErrTypeHTTPStatus
}

// IsServer checks if an error carries a server-supplied message
func IsServer(err error) bool {
	return typeOf(err) == ErrTypeServer
}

// Describe turns any error from this package into the message shown to the user
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return err.Error()
	}

	switch apiErr.Type {
	case ErrTypeTimeout:
		return "The request took too long and was cancelled (timeout). Try a smaller document or a faster model."
	case ErrTypeAborted:
		return "The request was cancelled."
	case ErrTypeNetwork:
		return "Could not connect to the server. Make sure the backend is running."
	case ErrTypeHTTPStatus, ErrTypeServer, ErrTypeValidation:
		return apiErr.Message
	default:
		return "Error: " + apiErr.Message
	}
}
