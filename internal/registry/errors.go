package registry

import (
	"errors"
	"fmt"
)

// Store-level outcomes. Uniqueness violations are always distinguishable
// so handlers can map them to "already registered" messaging instead of a
// generic failure.
var (
	ErrDuplicateEmail = errors.New("email already registered")
	ErrDuplicateToken = errors.New("token already in use")
	ErrNotFound       = errors.New("attendee not found")
)

// InvalidInputError names the registration field that failed validation.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalidf(field, format string, args ...any) error {
	return &InvalidInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
