package storage

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/roach88/schedstore/internal/entity"
	"github.com/roach88/schedstore/internal/query"
	"github.com/roach88/schedstore/internal/store"
)

// Kind categorizes storage failures.
type Kind string

const (
	// KindConstraintViolation means a write would break an entity invariant, such
	// as a second lock on the same key. The caller may retry with corrected input.
	KindConstraintViolation Kind = "CONSTRAINT_VIOLATION"

	// KindInvalidArgument means a store operation was given a malformed job key,
	// query or mutation.
	KindInvalidArgument Kind = "INVALID_ARGUMENT"

	// KindUnavailable means the log or the entity database could not complete an
	// operation. The whole storage subsystem should be treated as degraded.
	KindUnavailable Kind = "STORAGE_UNAVAILABLE"

	// KindRecoveryCorrupt means a log entry or snapshot could not be decoded or
	// applied during recovery. Startup fails.
	KindRecoveryCorrupt Kind = "RECOVERY_CORRUPT"
)

var (
	// ErrProviderClosed is returned by a store provider used after its work unit
	// has returned.
	ErrProviderClosed = errors.New("store provider used outside its work unit")

	// ErrNestedWrite is returned by Write when called from inside a Read.
	ErrNestedWrite = errors.New("write work unit nested in a read work unit")

	// ErrNotStarted is returned by work units before Start or after Stop.
	ErrNotStarted = errors.New("storage not started")

	// ErrDegraded is returned by work units after a commit failed for an entry
	// already in the log. Stop and Start again to recover.
	ErrDegraded = errors.New("storage degraded")

	// ErrNoSnapshots is returned by Snapshot when no snapshot manager is set.
	ErrNoSnapshots = errors.New("snapshots not configured")

	// ErrTaskIDChanged is returned by MutateTasks when the mutator rewrites a
	// task id.
	ErrTaskIDChanged = errors.New("mutator changed task id")
)

// StorageError is returned for every failure originating in storage rather than
// in the caller's work.
type StorageError struct {
	Kind Kind
	// Op names the operation that failed, e.g. "save lock" or "append".
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *StorageError {
	return &StorageError{Kind: kind, Op: op, Err: err}
}

// classify wraps a failure of a store operation with its kind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	switch {
	case store.IsConstraint(err):
		return newError(KindConstraintViolation, op, err)
	case errors.Is(err, entity.ErrInvalidJobKey),
		errors.Is(err, query.ErrInvalidQuery),
		errors.Is(err, ErrTaskIDChanged):
		return newError(KindInvalidArgument, op, err)
	default:
		return newError(KindUnavailable, op, err)
	}
}

func kindOf(err error) (Kind, bool) {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// IsConstraintViolation reports whether err is a constraint violation.
func IsConstraintViolation(err error) bool {
	kind, ok := kindOf(err)
	return ok && kind == KindConstraintViolation
}

// IsInvalidArgument reports whether err was caused by malformed input.
func IsInvalidArgument(err error) bool {
	kind, ok := kindOf(err)
	return ok && kind == KindInvalidArgument
}

// IsUnavailable reports whether err means storage could not complete an operation.
func IsUnavailable(err error) bool {
	kind, ok := kindOf(err)
	return ok && kind == KindUnavailable
}

// IsRecoveryCorrupt reports whether err means recovery found an unusable entry.
func IsRecoveryCorrupt(err error) bool {
	kind, ok := kindOf(err)
	return ok && kind == KindRecoveryCorrupt
}
