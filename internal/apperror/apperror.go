package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
	KindUnavailable
	KindUpstream
)

var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

type AppError struct {
	Kind    Kind
	Err     error  // underlying cause, never shown to clients
	Message string // human-readable, safe for clients
	Field   string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Status maps the error kind onto the HTTP status the handlers return.
func (e *AppError) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{Kind: KindValidation, Err: ErrValidation, Message: message, Field: field}
}

func Unauthorized(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Err: ErrUnauthorized, Message: message}
}

func Forbidden(message string) *AppError {
	return &AppError{Kind: KindForbidden, Message: message}
}

func NotFound(resource string) *AppError {
	return &AppError{Kind: KindNotFound, Err: ErrNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func Conflict(message string) *AppError {
	return &AppError{Kind: KindConflict, Err: ErrConflict, Message: message}
}

func RateLimited(message string) *AppError {
	return &AppError{Kind: KindRateLimited, Message: message}
}

// Unavailable is returned when required configuration is missing.
func Unavailable(message string) *AppError {
	return &AppError{Kind: KindUnavailable, Message: message}
}

func Upstream(message string, err error) *AppError {
	return &AppError{Kind: KindUpstream, Message: message, Err: err}
}

func Internal(message string, err error) *AppError {
	return &AppError{Kind: KindInternal, Message: message, Err: err}
}

// From returns err as an *AppError, wrapping unknown errors as internal.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("Internal server error", err)
}
