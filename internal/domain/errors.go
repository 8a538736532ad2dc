// Package domain provides the canonical conversation model and error types
// shared by every chat-template codec.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of a codec error.
type ErrorType string

const (
	// ErrorTypeConfiguration indicates a harness or configuration bug, such as
	// an unknown reasoning effort or a function declaration that is not JSON.
	ErrorTypeConfiguration ErrorType = "configuration"

	// ErrorTypeShape indicates model output that could not be interpreted as
	// a list of function calls at all.
	ErrorTypeShape ErrorType = "shape"

	// ErrorTypeInvalidRequest indicates a malformed request to the HTTP surface.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeNotFound indicates an unknown model family.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeBackend indicates the completion backend failed.
	ErrorTypeBackend ErrorType = "backend"

	// ErrorTypeAuthentication indicates a missing or unknown API key.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypeInternal indicates a failure of the service itself.
	ErrorTypeInternal ErrorType = "internal"
)

// Sentinel errors wrapped by CodecError.
var (
	ErrUnknownEffort   = errors.New("reasoning effort must be \"high\", \"medium\", or \"low\"")
	ErrInvalidFunction = errors.New("function declaration is not valid JSON")
	ErrShape           = errors.New("model did not return a list of function calls")
	ErrUnknownFamily   = errors.New("unknown model family")
)

// CodecError is the error returned by codec operations.
type CodecError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *CodecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped sentinel.
func (e *CodecError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status code for this error.
func (e *CodecError) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeConfiguration, ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeShape:
		return http.StatusUnprocessableEntity
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeBackend:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewCodecError creates a new codec error.
func NewCodecError(errType ErrorType, message string, err error) *CodecError {
	return &CodecError{Type: errType, Message: message, Err: err}
}

// ErrConfiguration creates a configuration error.
func ErrConfiguration(message string, err error) *CodecError {
	return NewCodecError(ErrorTypeConfiguration, message, err)
}

// ErrDecode creates a shape error for output that is not a list of calls.
func ErrDecode(message string) *CodecError {
	return NewCodecError(ErrorTypeShape, message, ErrShape)
}

// ErrBackend creates a backend error.
func ErrBackend(message string, err error) *CodecError {
	return NewCodecError(ErrorTypeBackend, message, err)
}

// ToCodecError converts any error to a *CodecError. Errors that are not
// already codec errors are reported as backend failures.
func ToCodecError(err error) *CodecError {
	var ce *CodecError
	if errors.As(err, &ce) {
		return ce
	}
	return ErrBackend("request failed", err)
}
