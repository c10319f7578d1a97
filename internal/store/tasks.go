package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/roach88/schedstore/internal/entity"
	"github.com/roach88/schedstore/internal/query"
	"github.com/roach88/schedstore/internal/querysql"
)

// FetchTasks returns copies of the tasks matching q, ordered by id.
// Returns an empty slice (not nil) when nothing matches.
func (t *Tx) FetchTasks(ctx context.Context, q query.TaskQuery) ([]entity.ScheduledTask, error) {
	sql, params, err := querysql.Compile(q, querysql.TaskData)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, sql, params...)
	if err != nil {
		return nil, errors.Wrap(err, "query tasks")
	}
	defer rows.Close()

	tasks := []entity.ScheduledTask{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Wrap(err, "scan task")
		}
		var task entity.ScheduledTask
		if err := unmarshalJSON(data, &task); err != nil {
			return nil, errors.Wrap(err, "decode task")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate tasks")
	}
	return tasks, nil
}

// FetchTaskIDs returns the ids of the tasks matching q, ordered by id.
func (t *Tx) FetchTaskIDs(ctx context.Context, q query.TaskQuery) ([]string, error) {
	sql, params, err := querysql.Compile(q, querysql.TaskID)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, sql, params...)
	if err != nil {
		return nil, errors.Wrap(err, "query task ids")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan task id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate task ids")
	}
	return ids, nil
}

// SaveTasks inserts or replaces tasks by id.
func (t *Tx) SaveTasks(ctx context.Context, tasks ...entity.ScheduledTask) error {
	if err := t.checkWritable("save tasks"); err != nil {
		return err
	}
	for _, task := range tasks {
		if err := t.saveTask(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) saveTask(ctx context.Context, task entity.ScheduledTask) error {
	if task.ID() == "" {
		return errors.Mark(errors.New("save task: empty task id"), ErrConstraint)
	}
	keyID, err := t.jobKeyID(ctx, task.JobKey())
	if err != nil {
		return errors.Wrapf(err, "save task %s", task.ID())
	}
	data, err := marshalJSON(task)
	if err != nil {
		return errors.Wrapf(err, "save task %s", task.ID())
	}

	assigned := task.AssignedTask
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO tasks (id, job_key_id, instance_id, status, slave_host, owner_user, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			job_key_id = excluded.job_key_id,
			instance_id = excluded.instance_id,
			status = excluded.status,
			slave_host = excluded.slave_host,
			owner_user = excluded.owner_user,
			data = excluded.data
	`,
		task.ID(),
		keyID,
		assigned.InstanceID,
		string(task.Status),
		assigned.SlaveHost,
		assigned.Task.Owner.User,
		data,
	)
	return wrapExec(err, "save task %s", task.ID())
}

// DeleteTasks removes tasks by id. Unknown ids are ignored.
func (t *Tx) DeleteTasks(ctx context.Context, ids ...string) error {
	if err := t.checkWritable("delete tasks"); err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
			return wrapExec(err, "delete task %s", id)
		}
	}
	return nil
}

// DeleteAllTasks removes every task.
func (t *Tx) DeleteAllTasks(ctx context.Context) error {
	if err := t.checkWritable("delete all tasks"); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `DELETE FROM tasks`)
	return wrapExec(err, "delete all tasks")
}
