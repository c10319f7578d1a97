package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/roach88/schedstore/internal/entity"
)

const selectLocks = `
	SELECT k.role, k.environment, k.name, l.token, l.user_name, l.timestamp_ms, l.message
	FROM locks l
	JOIN job_keys k ON k.id = l.job_key_id
`

type scanner interface {
	Scan(dest ...any) error
}

func scanLock(row scanner) (entity.Lock, error) {
	var l entity.Lock
	err := row.Scan(
		&l.Key.Job.Role,
		&l.Key.Job.Environment,
		&l.Key.Job.Name,
		&l.Token,
		&l.User,
		&l.TimestampMs,
		&l.Message,
	)
	return l, err
}

// FetchLocks returns every lock ordered by key.
func (t *Tx) FetchLocks(ctx context.Context) ([]entity.Lock, error) {
	rows, err := t.tx.QueryContext(ctx, selectLocks+`
		ORDER BY k.role, k.environment, k.name
	`)
	if err != nil {
		return nil, errors.Wrap(err, "query locks")
	}
	defer rows.Close()

	locks := []entity.Lock{}
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan lock")
		}
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate locks")
	}
	return locks, nil
}

// FetchLock returns the lock held on key, if any.
func (t *Tx) FetchLock(ctx context.Context, key entity.LockKey) (entity.Lock, bool, error) {
	row := t.tx.QueryRowContext(ctx, selectLocks+`
		WHERE k.role = ? AND k.environment = ? AND k.name = ?
	`, key.Job.Role, key.Job.Environment, key.Job.Name)

	l, err := scanLock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Lock{}, false, nil
	}
	if err != nil {
		return entity.Lock{}, false, errors.Wrapf(err, "fetch lock %s", key)
	}
	return l, true, nil
}

// InsertLock stores a new lock. A lock already held on the same key is left
// untouched and the insert fails with ErrConstraint.
func (t *Tx) InsertLock(ctx context.Context, l entity.Lock) error {
	return t.writeLock(ctx, l, `
		INSERT INTO locks (job_key_id, token, user_name, timestamp_ms, message)
		VALUES (?, ?, ?, ?, ?)
	`)
}

// PutLock stores l, replacing any lock held on the same key.
func (t *Tx) PutLock(ctx context.Context, l entity.Lock) error {
	return t.writeLock(ctx, l, `
		INSERT INTO locks (job_key_id, token, user_name, timestamp_ms, message)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_key_id) DO UPDATE SET
			token = excluded.token,
			user_name = excluded.user_name,
			timestamp_ms = excluded.timestamp_ms,
			message = excluded.message
	`)
}

func (t *Tx) writeLock(ctx context.Context, l entity.Lock, stmt string) error {
	if err := t.checkWritable("save lock"); err != nil {
		return err
	}
	keyID, err := t.jobKeyID(ctx, l.Key.Job)
	if err != nil {
		return errors.Wrapf(err, "save lock %s", l.Key)
	}
	_, err = t.tx.ExecContext(ctx, stmt, keyID, l.Token, l.User, l.TimestampMs, l.Message)
	return wrapExec(err, "save lock %s", l.Key)
}

// RemoveLock deletes the lock held on key. Missing locks are ignored.
func (t *Tx) RemoveLock(ctx context.Context, key entity.LockKey) error {
	if err := t.checkWritable("remove lock"); err != nil {
		return err
	}
	id, ok, err := t.existingJobKeyID(ctx, key.Job)
	if err != nil || !ok {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `DELETE FROM locks WHERE job_key_id = ?`, id)
	return wrapExec(err, "remove lock %s", key)
}

// DeleteLocks removes every lock.
func (t *Tx) DeleteLocks(ctx context.Context) error {
	if err := t.checkWritable("delete locks"); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `DELETE FROM locks`)
	return wrapExec(err, "delete locks")
}
