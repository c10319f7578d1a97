package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/roach88/schedstore/internal/entity"
)

// Tx is a transaction over the entity tables. A Tx from BeginRead rejects every
// mutation with ErrReadOnly.
type Tx struct {
	tx       *sql.Tx
	writable bool
}

// Writable reports whether the transaction accepts mutations.
func (t *Tx) Writable() bool {
	return t.writable
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return errors.Wrap(t.tx.Commit(), "commit")
}

// Rollback aborts the transaction. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return errors.Wrap(err, "rollback")
}

func (t *Tx) checkWritable(op string) error {
	if !t.writable {
		return errors.Wrap(ErrReadOnly, op)
	}
	return nil
}

// jobKeyID returns the id of key, interning it first if needed.
func (t *Tx) jobKeyID(ctx context.Context, key entity.JobKey) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO job_keys (role, environment, name) VALUES (?, ?, ?)
		ON CONFLICT (role, environment, name) DO NOTHING
	`, key.Role, key.Environment, key.Name)
	if err != nil {
		return 0, wrapExec(err, "intern job key %s", key)
	}

	var id int64
	err = t.tx.QueryRowContext(ctx, `
		SELECT id FROM job_keys WHERE role = ? AND environment = ? AND name = ?
	`, key.Role, key.Environment, key.Name).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "look up job key %s", key)
	}
	return id, nil
}

// existingJobKeyID looks up key without interning it.
func (t *Tx) existingJobKeyID(ctx context.Context, key entity.JobKey) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM job_keys WHERE role = ? AND environment = ? AND name = ?
	`, key.Role, key.Environment, key.Name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "look up job key %s", key)
	}
	return id, true, nil
}
