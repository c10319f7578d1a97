package log

import (
	"context"
	"iter"
)

// Log is durable, ordered storage for opaque entries.
type Log interface {
	// Open starts a session over the log. It fails with an error marked
	// ErrUnavailable when the medium cannot be reached.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open session over a Log.
//
// Streams are safe for concurrent use. Close must be called exactly once; every
// call afterwards, including a second Close, returns ErrStreamClosed.
type Stream interface {
	// Append durably stores contents and returns its position. No position is
	// returned unless the entry is persisted.
	Append(ctx context.Context, contents []byte) (Position, error)

	// ReadAfter yields every entry with a position strictly greater than after, in
	// increasing order. The upper bound is the end of the log when iteration
	// starts; entries appended afterwards are not included. Iteration stops at the
	// first error, which is yielded with a zero Entry.
	ReadAfter(ctx context.Context, after Position) iter.Seq2[Entry, error]

	// TruncateTo removes every entry with a position less than or equal to p.
	TruncateTo(ctx context.Context, p Position) error

	// Beginning returns the position before the first entry.
	Beginning() Position

	// End returns the last position assigned as of the call. Nothing follows it
	// at the time of the call.
	End(ctx context.Context) (Position, error)

	// Size returns the number of retained entries.
	Size(ctx context.Context) (int, error)

	Close() error
}

// Collect drains ReadAfter into a slice. It is intended for tests and tools that
// read bounded ranges.
func Collect(ctx context.Context, s Stream, after Position) ([]Entry, error) {
	entries := []Entry{}
	for entry, err := range s.ReadAfter(ctx, after) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
