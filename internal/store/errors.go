package store

import (
	"github.com/cockroachdb/errors"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrConstraint marks writes rejected by a uniqueness or integrity constraint.
	ErrConstraint = errors.New("constraint violation")

	// ErrReadOnly is returned when a mutation is attempted on a read transaction.
	ErrReadOnly = errors.New("read-only transaction")
)

// IsConstraint reports whether err was caused by a constraint violation.
func IsConstraint(err error) bool {
	return errors.Is(err, ErrConstraint)
}

// wrapExec wraps an error from a mutating statement, marking constraint
// violations with ErrConstraint.
func wrapExec(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrapf(err, format, args...)
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return errors.Mark(wrapped, ErrConstraint)
	}
	return wrapped
}
