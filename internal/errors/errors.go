// Package errors provides categorized errors for the ledger core. The
// category decides how the caller reacts: invariant violations abort the
// current event, drift is clamped/skipped/zeroed and logged for offline
// audit, storage failures are retried by the ingestion worker.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of a ledger error
type ErrorCategory string

const (
	// CategoryInvariant represents fatal invariant violations (malformed
	// event, zero denominator, amount outside the protocol's guarantees)
	CategoryInvariant ErrorCategory = "invariant"
	// CategoryDrift represents recoverable reconciliation drift (negative
	// balance after a delta, out-of-order index, missing price)
	CategoryDrift ErrorCategory = "drift"
	// CategoryMissingEntity represents a referenced entity that was never
	// created
	CategoryMissingEntity ErrorCategory = "missing_entity"
	// CategoryStorage represents transient entity-store failures
	CategoryStorage ErrorCategory = "storage"
)

// LedgerError represents an error with a category and audit context
type LedgerError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *LedgerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *LedgerError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches one audit field and returns the error
func (e *LedgerError) WithDetail(key string, value interface{}) *LedgerError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewInvariantError creates a fatal invariant-violation error
func NewInvariantError(code, message string, cause error) *LedgerError {
	return &LedgerError{
		Category: CategoryInvariant,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// NewDriftError creates a recoverable reconciliation-drift error
func NewDriftError(code, message string) *LedgerError {
	return &LedgerError{
		Category: CategoryDrift,
		Code:     code,
		Message:  message,
	}
}

// NewMissingEntityError creates a missing-referenced-entity error
func NewMissingEntityError(entity, id string) *LedgerError {
	return &LedgerError{
		Category: CategoryMissingEntity,
		Code:     "MISSING_ENTITY",
		Message:  fmt.Sprintf("%s not found: %s", entity, id),
		Details: map[string]interface{}{
			"entity": entity,
			"id":     id,
		},
	}
}

// NewStorageError creates a retryable storage error
func NewStorageError(operation string, cause error) *LedgerError {
	return &LedgerError{
		Category: CategoryStorage,
		Code:     "STORAGE_ERROR",
		Message:  fmt.Sprintf("storage error during %s", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// Categorize returns the LedgerError for err, wrapping unknown errors as
// invariant violations (unexpected errors must abort, never continue)
func Categorize(err error) *LedgerError {
	if err == nil {
		return nil
	}
	var lerr *LedgerError
	if errors.As(err, &lerr) {
		return lerr
	}
	return NewInvariantError("UNEXPECTED_ERROR", "unexpected error", err)
}

// IsFatal reports whether err must abort processing of the current event
func IsFatal(err error) bool {
	lerr := Categorize(err)
	if lerr == nil {
		return false
	}
	return lerr.Category == CategoryInvariant
}

// IsRetryable reports whether the whole event application may be retried
func IsRetryable(err error) bool {
	lerr := Categorize(err)
	if lerr == nil {
		return false
	}
	return lerr.Category == CategoryStorage
}

// IsDrift reports whether err is recoverable reconciliation drift
func IsDrift(err error) bool {
	lerr := Categorize(err)
	if lerr == nil {
		return false
	}
	return lerr.Category == CategoryDrift
}
