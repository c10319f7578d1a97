package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/roach88/schedstore/internal/entity"
	"github.com/roach88/schedstore/internal/query"
)

// StoredJob is a job configuration together with the manager that owns it.
type StoredJob struct {
	ManagerID string                  `json:"manager_id"`
	Job       entity.JobConfiguration `json:"job"`
}

// State is the full content of the store, as captured by snapshots.
type State struct {
	FrameworkID string                 `json:"framework_id,omitempty"`
	Tasks       []entity.ScheduledTask `json:"tasks"`
	Locks       []entity.Lock          `json:"locks"`
	Jobs        []StoredJob            `json:"jobs"`
}

// Dump reads the whole store. Lists are in their fetch order, so equal stores
// dump to equal states.
func (t *Tx) Dump(ctx context.Context) (State, error) {
	var (
		state State
		err   error
	)
	if state.FrameworkID, _, err = t.FetchFrameworkID(ctx); err != nil {
		return State{}, err
	}
	if state.Tasks, err = t.FetchTasks(ctx, query.Unscoped()); err != nil {
		return State{}, err
	}
	if state.Locks, err = t.FetchLocks(ctx); err != nil {
		return State{}, err
	}

	managers, err := t.FetchManagerIDs(ctx)
	if err != nil {
		return State{}, err
	}
	state.Jobs = []StoredJob{}
	for _, manager := range managers {
		jobs, err := t.FetchJobs(ctx, manager)
		if err != nil {
			return State{}, err
		}
		for _, job := range jobs {
			state.Jobs = append(state.Jobs, StoredJob{ManagerID: manager, Job: job})
		}
	}
	return state, nil
}

// Restore writes every entity in state with upsert semantics. It does not
// remove entities absent from state; call Reset first for an exact copy.
func (t *Tx) Restore(ctx context.Context, state State) error {
	if err := t.checkWritable("restore"); err != nil {
		return err
	}
	if state.FrameworkID != "" {
		if err := t.SaveFrameworkID(ctx, state.FrameworkID); err != nil {
			return err
		}
	}
	if err := t.SaveTasks(ctx, state.Tasks...); err != nil {
		return err
	}
	for _, l := range state.Locks {
		if err := t.PutLock(ctx, l); err != nil {
			return err
		}
	}
	for _, j := range state.Jobs {
		if err := t.SaveAcceptedJob(ctx, j.ManagerID, j.Job); err != nil {
			return err
		}
	}
	return nil
}

// Reset deletes every row from every table.
func (t *Tx) Reset(ctx context.Context) error {
	if err := t.checkWritable("reset"); err != nil {
		return err
	}
	// Children before job_keys for foreign keys.
	for _, table := range []string{"tasks", "locks", "jobs", "scheduler_state", "job_keys"} {
		if _, err := t.tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.Wrapf(err, "reset %s", table)
		}
	}
	return nil
}
