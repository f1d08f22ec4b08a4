package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies task and transport failures.
type ErrorCode string

const (
	// CodeTimeout means no result arrived within the deadline.
	CodeTimeout ErrorCode = "TIMEOUT"
	// CodeChannelClosed means the transport to the executor is gone.
	CodeChannelClosed ErrorCode = "CHANNEL_CLOSED"
	// CodeElementNotFound means the executor reported a selector miss.
	CodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	// CodeConfigError means caller-side misconfiguration. Never retried.
	CodeConfigError ErrorCode = "CONFIG_ERROR"
	// CodeExecutionError is an uncategorized remote failure.
	CodeExecutionError ErrorCode = "EXECUTION_ERROR"
)

// Retryable returns true if failures with this code may be retried.
// CONFIG_ERROR aborts immediately; everything else is transient.
func (c ErrorCode) Retryable() bool {
	return c != CodeConfigError
}

// TaskError is a classified task failure.
type TaskError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *TaskError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError creates a classified task error.
func NewTaskError(code ErrorCode, format string, args ...any) *TaskError {
	return &TaskError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapTaskError wraps err with a classification code and a message.
func WrapTaskError(code ErrorCode, err error, format string, args ...any) *TaskError {
	return &TaskError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the error code from err.
// Unclassified errors map to EXECUTION_ERROR.
func CodeOf(err error) ErrorCode {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Code
	}
	return CodeExecutionError
}

// IsRetryable reports whether err may be retried under the retry policy.
func IsRetryable(err error) bool {
	return CodeOf(err).Retryable()
}

// ClassifyMessage maps an executor error message onto the taxonomy.
// The extension reports selector misses with free-form text, so this is
// a substring match rather than a structured code.
func ClassifyMessage(message string) ErrorCode {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "timeout"):
		return CodeTimeout
	case strings.Contains(lower, "not found"), strings.Contains(lower, "no element"):
		return CodeElementNotFound
	default:
		return CodeExecutionError
	}
}
