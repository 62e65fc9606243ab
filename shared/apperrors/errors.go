// Package apperrors defines the error taxonomy shared by the transaction pipeline.
// Store and validation errors are terminal for a request; cache and publish
// errors never leave the component that produced them.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("transaction not found")
	ErrDuplicateKey     = errors.New("transaction id already exists")
	ErrConflict         = errors.New("transaction was modified concurrently")
	ErrStoreUnavailable = errors.New("transaction store unavailable")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ValidationError is returned before any I/O when a command or query is malformed.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, tag, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message, Type: tag}}}
}

// StoreUnavailableError wraps a failure to reach the durable store, including timeouts.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

func (e *StoreUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }
