package models

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies a delivery failure for retry and DLQ decisions.
type ErrorCategory string

// Error categories.
const (
	CategoryTimeout         ErrorCategory = "TIMEOUT"
	CategoryNetwork         ErrorCategory = "NETWORK"
	CategoryServerError     ErrorCategory = "SERVER_ERROR"
	CategoryRateLimit       ErrorCategory = "RATE_LIMIT"
	CategoryClientError     ErrorCategory = "CLIENT_ERROR"
	CategoryAuthError       ErrorCategory = "AUTH_ERROR"
	CategoryDataError       ErrorCategory = "DATA_ERROR"
	CategoryValidationError ErrorCategory = "VALIDATION_ERROR"
	CategoryUnknown         ErrorCategory = "UNKNOWN"
)

// Retriable reports whether failures in this category are eligible for DLQ
// retry. CLIENT_ERROR, DATA_ERROR and VALIDATION_ERROR are terminal by
// default; UNKNOWN is retried because it usually means an infrastructure
// fault rather than a bad payload.
func (c ErrorCategory) Retriable() bool {
	switch c {
	case CategoryRateLimit, CategoryTimeout, CategoryNetwork, CategoryServerError, CategoryAuthError, CategoryUnknown:
		return true
	default:
		return false
	}
}

// Valid reports whether c is one of the defined categories.
func (c ErrorCategory) Valid() bool {
	switch c {
	case CategoryTimeout, CategoryNetwork, CategoryServerError, CategoryRateLimit,
		CategoryClientError, CategoryAuthError, CategoryDataError, CategoryValidationError, CategoryUnknown:
		return true
	}
	return false
}

// CategorizedError carries an ErrorCategory alongside the underlying cause.
// The delivery pipeline uses it to route failures between retry and terminal
// handling without string matching.
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Err        error
}

func (e *CategorizedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *CategorizedError) Unwrap() error { return e.Err }

// NewCategorizedError wraps err with a category.
func NewCategorizedError(category ErrorCategory, err error) *CategorizedError {
	return &CategorizedError{Category: category, Err: err}
}

// CategoryOf extracts the category from err, walking the wrap chain.
// Uncategorized errors map to UNKNOWN.
func CategoryOf(err error) ErrorCategory {
	var ce *CategorizedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryUnknown
}

// StatusCodeOf extracts the HTTP status code from err, or 0.
func StatusCodeOf(err error) int {
	var ce *CategorizedError
	if errors.As(err, &ce) {
		return ce.StatusCode
	}
	return 0
}
