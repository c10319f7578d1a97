package storage

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/roach88/schedstore/internal/entity"
	"github.com/roach88/schedstore/internal/query"
	"github.com/roach88/schedstore/internal/store"
)

// unit is the state of one work unit. Providers handed to work functions are
// views over it; closing the unit invalidates all of them.
type unit struct {
	tx       *store.Tx
	writable bool
	logger   *slog.Logger
	closed   atomic.Bool

	mu      sync.Mutex
	ops     []Op
	failure error
}

type unitKey struct{}

func withUnit(ctx context.Context, u *unit) context.Context {
	return context.WithValue(ctx, unitKey{}, u)
}

func unitFrom(ctx context.Context) *unit {
	u, _ := ctx.Value(unitKey{}).(*unit)
	return u
}

func (u *unit) close() {
	u.closed.Store(true)
}

func (u *unit) check(op string) error {
	if u.closed.Load() {
		return errors.Wrap(ErrProviderClosed, op)
	}
	return nil
}

// fail records the first failure of a write unit. A recorded failure aborts the
// unit even if the work function ignores the error.
func (u *unit) fail(err error) {
	if !u.writable {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failure == nil {
		u.failure = err
	}
}

func (u *unit) recorded() ([]Op, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.ops, u.failure
}

// read runs a store read.
func (u *unit) read(op string, fn func() error) error {
	if err := u.check(op); err != nil {
		return err
	}
	if err := classify(op, fn()); err != nil {
		u.fail(err)
		return err
	}
	return nil
}

// mutate runs a store write and records the ops it returns.
func (u *unit) mutate(op string, fn func() ([]Op, error)) error {
	if err := u.check(op); err != nil {
		return err
	}
	ops, err := fn()
	if err != nil {
		err = classify(op, err)
		u.fail(err)
		return err
	}
	u.mu.Lock()
	u.ops = append(u.ops, ops...)
	u.mu.Unlock()
	return nil
}

// StoreProvider and MutableStoreProvider.

func (u *unit) Tasks() TaskStore { return taskReader{u} }

func (u *unit) Locks() LockStore { return lockReader{u} }

func (u *unit) Jobs() JobStore { return jobReader{u} }

func (u *unit) Scheduler() SchedulerStore { return schedulerReader{u} }

func (u *unit) MutableTasks() MutableTaskStore { return taskWriter{taskReader{u}} }

func (u *unit) MutableLocks() MutableLockStore { return lockWriter{lockReader{u}} }

func (u *unit) MutableJobs() MutableJobStore { return jobWriter{jobReader{u}} }

func (u *unit) MutableScheduler() MutableSchedulerStore {
	return schedulerWriter{schedulerReader{u}}
}

func (u *unit) Unsafe() UnsafeTaskStore { return unsafeTasks{u} }

// readProvider hides the mutable accessors of a read unit.
type readProvider struct {
	u *unit
}

func (p readProvider) Tasks() TaskStore { return p.u.Tasks() }

func (p readProvider) Locks() LockStore { return p.u.Locks() }

func (p readProvider) Jobs() JobStore { return p.u.Jobs() }

func (p readProvider) Scheduler() SchedulerStore { return p.u.Scheduler() }

// Tasks.

type taskReader struct{ u *unit }

func (s taskReader) FetchTasks(ctx context.Context, q query.TaskQuery) ([]entity.ScheduledTask, error) {
	var tasks []entity.ScheduledTask
	err := s.u.read("fetch tasks", func() (err error) {
		tasks, err = s.u.tx.FetchTasks(ctx, q)
		return err
	})
	return tasks, err
}

func (s taskReader) FetchTaskIDs(ctx context.Context, q query.TaskQuery) ([]string, error) {
	var ids []string
	err := s.u.read("fetch task ids", func() (err error) {
		ids, err = s.u.tx.FetchTaskIDs(ctx, q)
		return err
	})
	return ids, err
}

type taskWriter struct{ taskReader }

func (s taskWriter) SaveTasks(ctx context.Context, tasks ...entity.ScheduledTask) error {
	return s.u.mutate("save tasks", func() ([]Op, error) {
		if len(tasks) == 0 {
			return nil, nil
		}
		copies := entity.CloneTasks(tasks)
		if err := s.u.tx.SaveTasks(ctx, copies...); err != nil {
			return nil, err
		}
		return []Op{{Kind: OpSaveTasks, Tasks: copies}}, nil
	})
}

func (s taskWriter) DeleteTasks(ctx context.Context, ids ...string) error {
	return s.u.mutate("delete tasks", func() ([]Op, error) {
		if len(ids) == 0 {
			return nil, nil
		}
		ids = append([]string(nil), ids...)
		if err := s.u.tx.DeleteTasks(ctx, ids...); err != nil {
			return nil, err
		}
		return []Op{{Kind: OpDeleteTasks, TaskIDs: ids}}, nil
	})
}

func (s taskWriter) DeleteAllTasks(ctx context.Context) error {
	return s.u.mutate("delete all tasks", func() ([]Op, error) {
		if err := s.u.tx.DeleteAllTasks(ctx); err != nil {
			return nil, err
		}
		return []Op{{Kind: OpDeleteAllTasks}}, nil
	})
}

func (s taskWriter) MutateTasks(
	ctx context.Context,
	q query.TaskQuery,
	mutate func(*entity.ScheduledTask),
) ([]entity.ScheduledTask, error) {
	changed := []entity.ScheduledTask{}
	err := s.u.mutate("mutate tasks", func() ([]Op, error) {
		tasks, err := s.u.tx.FetchTasks(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, original := range tasks {
			mutated := original.Clone()
			mutate(&mutated)
			if mutated.ID() != original.ID() {
				return nil, errors.Wrapf(ErrTaskIDChanged, "%s -> %s", original.ID(), mutated.ID())
			}
			if reflect.DeepEqual(original, mutated) {
				continue
			}
			changed = append(changed, mutated)
		}
		if len(changed) == 0 {
			return nil, nil
		}
		if err := s.u.tx.SaveTasks(ctx, changed...); err != nil {
			return nil, err
		}
		return []Op{{Kind: OpSaveTasks, Tasks: entity.CloneTasks(changed)}}, nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

type unsafeTasks struct{ u *unit }

func (s unsafeTasks) UnsafeModifyInPlace(ctx context.Context, taskID string, config entity.TaskConfig) (bool, error) {
	found := false
	err := s.u.mutate("unsafe modify in place", func() ([]Op, error) {
		tasks, err := s.u.tx.FetchTasks(ctx, query.TaskScoped(taskID))
		if err != nil || len(tasks) == 0 {
			return nil, err
		}
		task := tasks[0]
		task.AssignedTask.Task = config.Clone()
		if err := s.u.tx.SaveTasks(ctx, task); err != nil {
			return nil, err
		}
		found = true
		return []Op{{Kind: OpSaveTasks, Tasks: []entity.ScheduledTask{task}}}, nil
	})
	if err != nil {
		return false, err
	}
	s.u.logger.Warn("task configuration replaced in place",
		"task_id", taskID,
		"found", found,
	)
	return found, nil
}

// Locks.

type lockReader struct{ u *unit }

func (s lockReader) FetchLocks(ctx context.Context) ([]entity.Lock, error) {
	var locks []entity.Lock
	err := s.u.read("fetch locks", func() (err error) {
		locks, err = s.u.tx.FetchLocks(ctx)
		return err
	})
	return locks, err
}

func (s lockReader) FetchLock(ctx context.Context, key entity.LockKey) (entity.Lock, bool, error) {
	var (
		lock entity.Lock
		ok   bool
	)
	err := s.u.read("fetch lock", func() (err error) {
		lock, ok, err = s.u.tx.FetchLock(ctx, key)
		return err
	})
	return lock, ok, err
}

type lockWriter struct{ lockReader }

func (s lockWriter) SaveLock(ctx context.Context, lock entity.Lock) error {
	return s.u.mutate("save lock", func() ([]Op, error) {
		if err := s.u.tx.InsertLock(ctx, lock); err != nil {
			return nil, err
		}
		return []Op{{Kind: OpSaveLock, Lock: &lock}}, nil
	})
}

func (s lockWriter) RemoveLock(ctx context.Context, key entity.LockKey) error {
	return s.u.mutate("remove lock", func() ([]Op, error) {
		if err := s.u.tx.RemoveLock(ctx, key); err != nil {
			return nil, err
		}
		return []Op{{Kind: OpRemoveLock, LockKey: &key}}, nil
	})
}

func (s lockWriter) DeleteLocks(ctx context.Context) error {
	return s.u.mutate("delete locks", func() ([]Op, error) {
		if err := s.u.tx.DeleteLocks(ctx); err != nil {
			return nil, err
		}
		return []Op{{Kind: OpDeleteLocks}}, nil
	})
}

// Jobs.

type jobReader struct{ u *unit }

func (s jobReader) FetchManagerIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.u.read("fetch manager ids", func() (err error) {
		ids, err = s.u.tx.FetchManagerIDs(ctx)
		return err
	})
	return ids, err
}

func (s jobReader) FetchJobs(ctx context.Context, managerID string) ([]entity.JobConfiguration, error) {
	var jobs []entity.JobConfiguration
	err := s.u.read("fetch jobs", func() (err error) {
		jobs, err = s.u.tx.FetchJobs(ctx, managerID)
		return err
	})
	return jobs, err
}

func (s jobReader) FetchJob(ctx context.Context, managerID string, key entity.JobKey) (entity.JobConfiguration, bool, error) {
	var (
		job entity.JobConfiguration
		ok  bool
	)
	err := s.u.read("fetch job", func() (err error) {
		job, ok, err = s.u.tx.FetchJob(ctx, managerID, key)
		return err
	})
	return job, ok, err
}

type jobWriter struct{ jobReader }

func (s jobWriter) SaveAcceptedJob(ctx context.Context, managerID string, job entity.JobConfiguration) error {
	return s.u.mutate("save job", func() ([]Op, error) {
		job = job.Clone()
		if err := s.u.tx.SaveAcceptedJob(ctx, managerID, job); err != nil {
			return nil, err
		}
		return []Op{{Kind: OpSaveJob, ManagerID: managerID, Job: &job}}, nil
	})
}

func (s jobWriter) RemoveJob(ctx context.Context, key entity.JobKey) error {
	return s.u.mutate("remove job", func() ([]Op, error) {
		if err := s.u.tx.RemoveJob(ctx, key); err != nil {
			return nil, err
		}
		return []Op{{Kind: OpRemoveJob, JobKey: &key}}, nil
	})
}

func (s jobWriter) DeleteJobs(ctx context.Context) error {
	return s.u.mutate("delete jobs", func() ([]Op, error) {
		if err := s.u.tx.DeleteJobs(ctx); err != nil {
			return nil, err
		}
		return []Op{{Kind: OpDeleteJobs}}, nil
	})
}

// Scheduler.

type schedulerReader struct{ u *unit }

func (s schedulerReader) FetchFrameworkID(ctx context.Context) (string, bool, error) {
	var (
		id string
		ok bool
	)
	err := s.u.read("fetch framework id", func() (err error) {
		id, ok, err = s.u.tx.FetchFrameworkID(ctx)
		return err
	})
	return id, ok, err
}

type schedulerWriter struct{ schedulerReader }

func (s schedulerWriter) SaveFrameworkID(ctx context.Context, id string) error {
	return s.u.mutate("save framework id", func() ([]Op, error) {
		if err := s.u.tx.SaveFrameworkID(ctx, id); err != nil {
			return nil, err
		}
		return []Op{{Kind: OpSaveFrameworkID, FrameworkID: id}}, nil
	})
}
