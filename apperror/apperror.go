// Package apperror defines the error taxonomy shared by all service
// operations. Handlers map these to HTTP status codes at the boundary;
// nothing below the handler layer knows about HTTP.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrUnavailable    = errors.New("service unavailable")
)

// AppError carries a sentinel class plus a human-readable message.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func InvalidRequest(message string) *AppError {
	return &AppError{Err: ErrInvalidRequest, Message: message}
}

func NotFound(message string) *AppError {
	return &AppError{Err: ErrNotFound, Message: message}
}

func Conflict(message string) *AppError {
	return &AppError{Err: ErrConflict, Message: message}
}

// Unavailable wraps a store-layer failure. The underlying message is
// surfaced for diagnostics; callers are expected to retry manually.
func Unavailable(err error) *AppError {
	return &AppError{Err: ErrUnavailable, Message: fmt.Sprintf("store unavailable: %v", err)}
}
