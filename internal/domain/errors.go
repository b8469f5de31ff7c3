package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input rejected at the model boundary.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError reports a reference to a record that does not exist.
type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %v not found", e.Resource, e.ID)
}

// ConflictError reports a request that contradicts current state, such as a
// duplicate username or a retry with no pending user message.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// StorageError wraps an underlying persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// BridgeError wraps a failure of the upstream response service. It is never
// retried by the core.
type BridgeError struct {
	Provider string
	Err      error
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("response bridge (%s): %v", e.Provider, e.Err)
}

func (e *BridgeError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a ValidationError for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
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

// IsConflict reports whether err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsBridge reports whether err is or wraps a BridgeError.
func IsBridge(err error) bool {
	var target *BridgeError
	return errors.As(err, &target)
}
