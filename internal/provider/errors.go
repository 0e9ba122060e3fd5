package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyHistory is returned when a backend is called without any message.
var ErrEmptyHistory = errors.New("conversation history is empty")

// BackendError represents a failed call to a model backend.
type BackendError struct {
	Backend string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s backend error: %s (%v)", e.Backend, e.Message, e.Err)
	}
	return fmt.Sprintf("%s backend error: %s", e.Backend, e.Message)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsRetriable checks if an error is worth retrying.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "network") ||
		strings.Contains(msg, "temporary") ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "overloaded")
}
