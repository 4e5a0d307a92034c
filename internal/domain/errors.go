package domain

import (
	"fmt"
)

// Common error types
type ErrNotFound struct {
	Entity string
	ID     string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found with ID: %s", e.Entity, e.ID)
}

// ErrSuppressed indicates a recipient is on the suppression list and the
// message must not be sent.
type ErrSuppressed struct {
	Email  string
	Reason SuppressionReason
}

func (e *ErrSuppressed) Error() string {
	return fmt.Sprintf("recipient %s is suppressed: %s", e.Email, e.Reason)
}

// ErrDuplicate indicates an insert violated a unique constraint
type ErrDuplicate struct {
	Entity string
	Detail string
}

func (e *ErrDuplicate) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s already exists", e.Entity)
	}
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.Detail)
}

// ErrForeignKey indicates a row referenced a parent that does not exist
type ErrForeignKey struct {
	Entity string
	Detail string
}

func (e *ErrForeignKey) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s references a missing row", e.Entity)
	}
	return fmt.Sprintf("%s references a missing row: %s", e.Entity, e.Detail)
}

// ErrConnection indicates the store connection was lost mid-operation
type ErrConnection struct {
	Err error
}

func (e *ErrConnection) Error() string {
	return fmt.Sprintf("store connection lost: %v", e.Err)
}

func (e *ErrConnection) Unwrap() error {
	return e.Err
}

// ValidationError represents an error that occurs due to invalid input or parameters
type ValidationError struct {
	Message string
}

// Error implements the error interface
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// NewValidationError creates a new validation error with the given message
func NewValidationError(message string) error {
	return ValidationError{
		Message: message,
	}
}
