package core

import (
	"errors"
	"fmt"
	"strings"
)

// ConnectionError indicates a backend could not be reached or rejected the credentials.
type ConnectionError struct {
	Backend string
	Message string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s connection failed: %s: %v", e.Backend, e.Message, e.Err)
	}
	return fmt.Sprintf("%s connection failed: %s", e.Backend, e.Message)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ValidationError indicates invalid input: a missing config key, an unknown
// step type or operator, an unknown column or a malformed filter.
// Problems holds every issue found when several were collected.
type ValidationError struct {
	Message  string
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Problems, "; ")
}

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ExecutionError indicates an operation failed while running against real data.
type ExecutionError struct {
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ErrConnection creates a ConnectionError wrapping err.
func ErrConnection(backend string, err error, format string, args ...any) *ConnectionError {
	return &ConnectionError{Backend: backend, Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidationProblems creates a ValidationError listing every problem found.
func ErrValidationProblems(message string, problems []string) *ValidationError {
	return &ValidationError{Message: message, Problems: problems}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrExecution creates an ExecutionError wrapping err.
func ErrExecution(err error, format string, args ...any) *ExecutionError {
	return &ExecutionError{Message: fmt.Sprintf(format, args...), Err: err}
}

// IsConnection reports whether err is or wraps a ConnectionError.
func IsConnection(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsExecution reports whether err is or wraps an ExecutionError.
func IsExecution(err error) bool {
	var target *ExecutionError
	return errors.As(err, &target)
}
