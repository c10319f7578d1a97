package storage

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/roach88/schedstore/internal/entity"
	"github.com/roach88/schedstore/internal/store"
)

// transactionVersion is the log entry format written by this package.
const transactionVersion = 1

// OpKind names a recorded mutation.
type OpKind string

const (
	OpSaveTasks       OpKind = "save_tasks"
	OpDeleteTasks     OpKind = "delete_tasks"
	OpDeleteAllTasks  OpKind = "delete_all_tasks"
	OpSaveLock        OpKind = "save_lock"
	OpRemoveLock      OpKind = "remove_lock"
	OpDeleteLocks     OpKind = "delete_locks"
	OpSaveJob         OpKind = "save_job"
	OpRemoveJob       OpKind = "remove_job"
	OpDeleteJobs      OpKind = "delete_jobs"
	OpSaveFrameworkID OpKind = "save_framework_id"
)

// Op is one mutation inside a logged transaction. Ops carry resulting entity
// values, never deltas, so applying an op twice has the same effect as once.
type Op struct {
	Kind        OpKind                   `json:"kind"`
	Tasks       []entity.ScheduledTask   `json:"tasks,omitempty"`
	TaskIDs     []string                 `json:"task_ids,omitempty"`
	Lock        *entity.Lock             `json:"lock,omitempty"`
	LockKey     *entity.LockKey          `json:"lock_key,omitempty"`
	ManagerID   string                   `json:"manager_id,omitempty"`
	Job         *entity.JobConfiguration `json:"job,omitempty"`
	JobKey      *entity.JobKey           `json:"job_key,omitempty"`
	FrameworkID string                   `json:"framework_id,omitempty"`
}

// Transaction is the log entry written for each committed write work unit.
type Transaction struct {
	Version int  `json:"version"`
	Ops     []Op `json:"ops"`
}

func encodeTransaction(ops []Op) ([]byte, error) {
	data, err := json.Marshal(Transaction{Version: transactionVersion, Ops: ops})
	if err != nil {
		return nil, errors.Wrap(err, "encode transaction")
	}
	return data, nil
}

// DecodeTransaction parses a log entry. Unknown fields, versions and op kinds
// are errors.
func DecodeTransaction(data []byte) (Transaction, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var txn Transaction
	if err := dec.Decode(&txn); err != nil {
		return Transaction{}, errors.Wrap(err, "decode transaction")
	}
	if txn.Version != transactionVersion {
		return Transaction{}, errors.Newf("unsupported transaction version %d", txn.Version)
	}
	for i, op := range txn.Ops {
		if err := op.validate(); err != nil {
			return Transaction{}, errors.Wrapf(err, "op %d", i)
		}
	}
	return txn, nil
}

func (op Op) validate() error {
	missing := func(field string) error {
		return errors.Newf("%s op without %s", op.Kind, field)
	}
	switch op.Kind {
	case OpSaveTasks, OpDeleteTasks, OpDeleteAllTasks, OpDeleteLocks, OpDeleteJobs, OpSaveFrameworkID:
	case OpSaveLock:
		if op.Lock == nil {
			return missing("lock")
		}
	case OpRemoveLock:
		if op.LockKey == nil {
			return missing("lock_key")
		}
	case OpSaveJob:
		if op.Job == nil {
			return missing("job")
		}
	case OpRemoveJob:
		if op.JobKey == nil {
			return missing("job_key")
		}
	default:
		return errors.Newf("unknown op kind %q", op.Kind)
	}
	return nil
}

// apply replays txn against tx with idempotent upserts and deletes.
func apply(ctx context.Context, tx *store.Tx, txn Transaction) error {
	for i, op := range txn.Ops {
		if err := applyOp(ctx, tx, op); err != nil {
			return errors.Wrapf(err, "apply op %d (%s)", i, op.Kind)
		}
	}
	return nil
}

func applyOp(ctx context.Context, tx *store.Tx, op Op) error {
	switch op.Kind {
	case OpSaveTasks:
		return tx.SaveTasks(ctx, op.Tasks...)
	case OpDeleteTasks:
		return tx.DeleteTasks(ctx, op.TaskIDs...)
	case OpDeleteAllTasks:
		return tx.DeleteAllTasks(ctx)
	case OpSaveLock:
		// The lock was unique when logged; replacing makes replay idempotent.
		return tx.PutLock(ctx, *op.Lock)
	case OpRemoveLock:
		return tx.RemoveLock(ctx, *op.LockKey)
	case OpDeleteLocks:
		return tx.DeleteLocks(ctx)
	case OpSaveJob:
		return tx.SaveAcceptedJob(ctx, op.ManagerID, *op.Job)
	case OpRemoveJob:
		return tx.RemoveJob(ctx, *op.JobKey)
	case OpDeleteJobs:
		return tx.DeleteJobs(ctx)
	case OpSaveFrameworkID:
		return tx.SaveFrameworkID(ctx, op.FrameworkID)
	default:
		return errors.Newf("unknown op kind %q", op.Kind)
	}
}
