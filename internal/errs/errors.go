package errs

import (
	"errors"
	"fmt"
	"time"
)

// AppError is the single error shape crossing component boundaries. It maps
// one-to-one onto the admin-error / error wire payload.
type AppError struct {
	Code       Code
	Message    string
	RetryAfter time.Duration
	Details    map[string]any
	cause      error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.cause }

// Retryable reports whether the failed operation may be retried.
func (e *AppError) Retryable() bool { return Retryable(e.Code) }

// UserMessage returns the end-user text for this error.
func (e *AppError) UserMessage() string { return UserMessage(e.Code) }

// New creates an AppError with a developer message.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates an AppError preserving the underlying cause for logs.
func Wrap(code Code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, cause: cause}
}

// WithRetryAfter attaches a retry hint, returning the same error.
func (e *AppError) WithRetryAfter(d time.Duration) *AppError {
	e.RetryAfter = d
	return e
}

// WithDetail attaches one key of structured detail, returning the same error.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// From maps err to an AppError. Known AppErrors pass through; anything else
// becomes SYSTEM_1401 so unknown failures never leak internals on the wire.
func From(err error) *AppError {
	var app *AppError
	if errors.As(err, &app) {
		return app
	}
	return Wrap(SystemInternal, "internal error", err)
}
