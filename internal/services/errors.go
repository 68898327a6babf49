// Package services holds the business logic of the board: the write
// coordinator shared by HTTP and websocket entry points, read-side queries,
// the catalog and account management.
//
// This file centralizes the error kinds returned by service methods.
// Callers classify with errors.Is against the sentinels; translation into
// HTTP status codes or websocket ack codes happens at the edges.
package services

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrValidation: the input was rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthenticated: no (or no longer valid) identity.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden: the identity lacks the privilege for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound: the addressed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is reserved for version-checked writes; last-writer-wins
	// updates never return it.
	ErrConflict = errors.New("conflict")
	// ErrStore: the durable store failed. Never retried.
	ErrStore = errors.New("store failure")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// StoreError wraps a persistence failure with the operation that caused it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + e.Err.Error() }

// Unwrap exposes both ErrStore and the cause.
func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func notFound(what string) error { return fmt.Errorf("%s %w", what, ErrNotFound) }

func storeErr(op string, err error) error { return &StoreError{Op: op, Err: err} }

func forbidden(action string) error { return fmt.Errorf("%w: %s", ErrForbidden, action) }
