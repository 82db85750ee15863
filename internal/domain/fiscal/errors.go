package fiscal

import (
	"fmt"
	"strings"
)

// DomainError represents a domain-level error with a stable code
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Common domain errors
var (
	ErrUnknownSeries  = NewDomainError("UNKNOWN_SERIES", "Numbering series does not exist")
	ErrInactiveSeries = NewDomainError("INACTIVE_SERIES", "Numbering series is deactivated")
	// ErrDuplicateNumber indicates counter or state corruption. It is fatal:
	// issuance for the affected series halts until manually resolved.
	ErrDuplicateNumber = NewDomainError("DUPLICATE_NUMBER", "Next number already exists in the document store")
	ErrSeriesHalted    = NewDomainError("SERIES_HALTED", "Series is halted after a duplicate-number fault")
	ErrInvalidRange    = NewDomainError("INVALID_RANGE", "Reservation count must be between 1 and 1000")
	ErrAlreadySealed   = NewDomainError("ALREADY_SEALED", "Document already carries security metadata")
	ErrNotFound        = NewDomainError("NOT_FOUND", "Resource not found")
)

// FieldError describes one missing or invalid required field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationError carries the full list of required-field problems for a
// document, so callers can report everything at once instead of fixing one
// field per attempt.
type ValidationError struct {
	DocumentType DocumentType
	Fields       []FieldError
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("document %s failed validation: %s", e.DocumentType, strings.Join(parts, "; "))
}

// CryptoError wraps a hashing, signing, or encryption failure. These are
// fatal for the operation and never retried silently: a partially sealed
// document is worse than a rejected one.
type CryptoError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *CryptoError) Unwrap() error {
	return e.Err
}

// NewCryptoError creates a new CryptoError for the given operation
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}
