package leads

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingContact is returned when a lead has no contact identifier
	ErrMissingContact = errors.New("contact identifier is required")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")

	// ErrLeadExists is returned when explicit creation hits an existing contact identifier
	ErrLeadExists = errors.New("lead already exists for this contact")
)

// ValidationError reports an enum value outside the supported set.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

// IsValidationError reports whether err (or anything it wraps) is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
