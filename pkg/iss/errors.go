package iss

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedResponse is returned when a response does not have the
	// expected JSON shape (missing section, missing columns, ragged rows).
	ErrMalformedResponse = errors.New("malformed ISS response")

	// ErrFieldNotFound is matched by every FieldNotFoundError.
	ErrFieldNotFound = errors.New("field not found")
)

// FieldNotFoundError reports a column name that is absent from a column list.
type FieldNotFoundError struct {
	Field     string
	Available []string
}

// Error implements the error interface.
func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %q not found (available: %s)", e.Field, strings.Join(e.Available, ", "))
}

// Is lets errors.Is(err, ErrFieldNotFound) match.
func (e *FieldNotFoundError) Is(target error) bool {
	return target == ErrFieldNotFound
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
