package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrMissingOrderNo     = errors.New("missing order number")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrMissingName        = errors.New("missing vehicle name")
	ErrNegativeSpeed      = errors.New("negative speed")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrQueryEmpty         = errors.New("query is empty")
	ErrQueryTooLong       = errors.New("query too long")
	ErrQueryInjection     = errors.New("query contains suspicious content")
	ErrBadTimestamp       = errors.New("unparsable timestamp")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
