package pagination

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoData is returned when a listing yields no rows at all.
	ErrNoData = errors.New("no data")

	// ErrColumnMismatch is matched by every ColumnMismatchError.
	ErrColumnMismatch = errors.New("column set changed between pages")
)

// ColumnMismatchError reports a page whose column set differs from the first
// page of the same listing. Rows from such a page cannot be aligned.
type ColumnMismatchError struct {
	Offset int
	Want   []string
	Got    []string
}

// Error implements the error interface.
func (e *ColumnMismatchError) Error() string {
	return fmt.Sprintf("page at start=%d: columns [%s], want [%s]",
		e.Offset, strings.Join(e.Got, ", "), strings.Join(e.Want, ", "))
}

// Is makes errors.Is(err, ErrColumnMismatch) match.
func (e *ColumnMismatchError) Is(target error) bool {
	return target == ErrColumnMismatch
}
