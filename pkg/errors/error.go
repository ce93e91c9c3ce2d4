// Package errors provides structured error types for the dispatch pipeline.
package errors

import (
	"fmt"
	"time"
)

// DispatchError represents a pipeline error with structured information.
type DispatchError struct {
	Code           ErrorCode `json:"code"`
	Message        string    `json:"message"`
	Channel        string    `json:"channel,omitempty"`
	NotificationID string    `json:"notification_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`

	// Retryable reports whether the operation that produced this error
	// may be attempted again.
	Retryable bool `json:"retryable"`

	// Cause is the original error, not serialized.
	Cause error `json:"-"`
}

// New creates a DispatchError with the given code and message.
func New(code ErrorCode, message string) *DispatchError {
	return &DispatchError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: IsRetryableCode(code),
	}
}

// Newf creates a DispatchError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *DispatchError {
	return New(code, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	if e.Channel != "" && e.NotificationID != "" {
		return fmt.Sprintf("%s: %s (channel: %s, notification: %s)", e.Code, e.Message, e.Channel, e.NotificationID)
	}
	if e.NotificationID != "" {
		return fmt.Sprintf("%s: %s (notification: %s)", e.Code, e.Message, e.NotificationID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error carries the same code.
func (e *DispatchError) Is(target error) bool {
	if targetErr, ok := target.(*DispatchError); ok {
		return e.Code == targetErr.Code
	}
	return false
}

// IsRetryable reports whether the error may be retried.
func (e *DispatchError) IsRetryable() bool {
	return e.Retryable
}

// WithCause adds a cause error.
func (e *DispatchError) WithCause(cause error) *DispatchError {
	e.Cause = cause
	return e
}

// WithChannel sets the channel the error occurred on.
func (e *DispatchError) WithChannel(channel string) *DispatchError {
	e.Channel = channel
	return e
}

// WithNotification sets the notification the error relates to.
func (e *DispatchError) WithNotification(id string) *DispatchError {
	e.NotificationID = id
	return e
}

// CodeOf returns the ErrorCode carried by err, or "" if err is not a
// DispatchError.
func CodeOf(err error) ErrorCode {
	if de, ok := err.(*DispatchError); ok {
		return de.Code
	}
	return ""
}

// IsCode reports whether err is a DispatchError with the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
