package log

import "github.com/cockroachdb/errors"

var (
	// ErrStreamClosed is returned by any Stream operation after Close.
	ErrStreamClosed = errors.New("log stream closed")

	// ErrInvalidPosition is returned when a position identity cannot be decoded.
	ErrInvalidPosition = errors.New("invalid log position")

	// ErrUnavailable marks failures of the durable medium. Test with errors.Is.
	ErrUnavailable = errors.New("log unavailable")
)

// Unavailable wraps err with a message and marks it ErrUnavailable.
// It returns nil when err is nil.
func Unavailable(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrUnavailable)
}

// IsUnavailable reports whether err was marked by Unavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
