package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// FetchFrameworkID returns the framework id registered with the cluster manager.
func (t *Tx) FetchFrameworkID(ctx context.Context) (string, bool, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, `SELECT framework_id FROM scheduler_state WHERE id = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "fetch framework id")
	}
	return id, true, nil
}

// SaveFrameworkID records the framework id, replacing any previous value.
func (t *Tx) SaveFrameworkID(ctx context.Context, id string) error {
	if err := t.checkWritable("save framework id"); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO scheduler_state (id, framework_id) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET framework_id = excluded.framework_id
	`, id)
	return wrapExec(err, "save framework id")
}
