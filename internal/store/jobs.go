package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/roach88/schedstore/internal/entity"
)

// FetchManagerIDs returns the ids of managers that own at least one job, sorted.
func (t *Tx) FetchManagerIDs(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT DISTINCT manager_id FROM jobs ORDER BY manager_id ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, errors.Wrap(err, "query manager ids")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan manager id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate manager ids")
	}
	return ids, nil
}

// FetchJobs returns the jobs owned by managerID, ordered by key.
func (t *Tx) FetchJobs(ctx context.Context, managerID string) ([]entity.JobConfiguration, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT j.data FROM jobs j
		JOIN job_keys k ON k.id = j.job_key_id
		WHERE j.manager_id = ?
		ORDER BY k.role, k.environment, k.name
	`, managerID)
	if err != nil {
		return nil, errors.Wrap(err, "query jobs")
	}
	defer rows.Close()

	jobs := []entity.JobConfiguration{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		var job entity.JobConfiguration
		if err := unmarshalJSON(data, &job); err != nil {
			return nil, errors.Wrap(err, "decode job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate jobs")
	}
	return jobs, nil
}

// FetchJob returns the job stored under key by managerID, if any.
func (t *Tx) FetchJob(ctx context.Context, managerID string, key entity.JobKey) (entity.JobConfiguration, bool, error) {
	var data string
	err := t.tx.QueryRowContext(ctx, `
		SELECT j.data FROM jobs j
		JOIN job_keys k ON k.id = j.job_key_id
		WHERE j.manager_id = ? AND k.role = ? AND k.environment = ? AND k.name = ?
	`, managerID, key.Role, key.Environment, key.Name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.JobConfiguration{}, false, nil
	}
	if err != nil {
		return entity.JobConfiguration{}, false, errors.Wrapf(err, "fetch job %s", key)
	}

	var job entity.JobConfiguration
	if err := unmarshalJSON(data, &job); err != nil {
		return entity.JobConfiguration{}, false, errors.Wrapf(err, "decode job %s", key)
	}
	return job, true, nil
}

// SaveAcceptedJob stores job under managerID, replacing any job with the same
// key regardless of its previous manager.
func (t *Tx) SaveAcceptedJob(ctx context.Context, managerID string, job entity.JobConfiguration) error {
	if err := t.checkWritable("save job"); err != nil {
		return err
	}
	keyID, err := t.jobKeyID(ctx, job.Key)
	if err != nil {
		return errors.Wrapf(err, "save job %s", job.Key)
	}
	data, err := marshalJSON(job)
	if err != nil {
		return errors.Wrapf(err, "save job %s", job.Key)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO jobs (job_key_id, manager_id, data) VALUES (?, ?, ?)
		ON CONFLICT(job_key_id) DO UPDATE SET
			manager_id = excluded.manager_id,
			data = excluded.data
	`, keyID, managerID, data)
	return wrapExec(err, "save job %s", job.Key)
}

// RemoveJob deletes the job stored under key. Missing jobs are ignored.
func (t *Tx) RemoveJob(ctx context.Context, key entity.JobKey) error {
	if err := t.checkWritable("remove job"); err != nil {
		return err
	}
	id, ok, err := t.existingJobKeyID(ctx, key)
	if err != nil || !ok {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `DELETE FROM jobs WHERE job_key_id = ?`, id)
	return wrapExec(err, "remove job %s", key)
}

// DeleteJobs removes every job.
func (t *Tx) DeleteJobs(ctx context.Context) error {
	if err := t.checkWritable("delete jobs"); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `DELETE FROM jobs`)
	return wrapExec(err, "delete jobs")
}
