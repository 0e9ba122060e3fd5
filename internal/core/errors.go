package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned when an operation needs a started session.
	ErrNoSession = errors.New("no debate session has been started")

	// ErrInvalidTransition is returned when an operation is not allowed in the current status.
	ErrInvalidTransition = errors.New("operation not allowed in current session state")

	// ErrRoundInFlight is returned while a round or the synthesis call is still running.
	ErrRoundInFlight = errors.New("a round is already in progress")

	// ErrSessionReset is returned to the caller of an abandoned round.
	ErrSessionReset = errors.New("session was reset while the round was running")
)

// ConfigurationError reports invalid start parameters. No session is created.
type ConfigurationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// AgentInvocationError captures one agent's failed backend call.
type AgentInvocationError struct {
	AgentID string
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *AgentInvocationError) Error() string {
	return fmt.Sprintf("%s (%s) failed: %v", e.AgentID, e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *AgentInvocationError) Unwrap() error {
	return e.Err
}

// EmptyResponseWarning marks an agent that answered with blank content.
type EmptyResponseWarning struct {
	AgentID string
}

// Error implements the error interface.
func (e *EmptyResponseWarning) Error() string {
	return EmptyResponseMemory(e.AgentID)
}

// SynthesisError reports a failed or empty manager call.
type SynthesisError struct {
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *SynthesisError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("manager %s returned an empty conclusion", e.Backend)
	}
	return fmt.Sprintf("manager %s failed: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed transcript or archive write.
type PersistenceError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ErrorMemory is the memory recorded for an agent whose call failed.
func ErrorMemory(agentID string, err error) string {
	var invErr *AgentInvocationError
	if errors.As(err, &invErr) {
		err = invErr.Err
	}
	return fmt.Sprintf("Error for %s: %v", agentID, err)
}

// EmptyResponseMemory is the placeholder memory for a blank response.
func EmptyResponseMemory(agentID string) string {
	return agentID + " returned an empty response."
}
