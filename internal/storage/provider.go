package storage

import (
	"context"

	"github.com/roach88/schedstore/internal/entity"
	"github.com/roach88/schedstore/internal/query"
)

// TaskStore reads scheduled tasks. Results are copies; mutating them has no
// effect on stored state.
type TaskStore interface {
	FetchTasks(ctx context.Context, q query.TaskQuery) ([]entity.ScheduledTask, error)
	FetchTaskIDs(ctx context.Context, q query.TaskQuery) ([]string, error)
}

// MutableTaskStore reads and writes scheduled tasks.
type MutableTaskStore interface {
	TaskStore

	// SaveTasks inserts or replaces tasks by id. Stored values are independent
	// of the caller's.
	SaveTasks(ctx context.Context, tasks ...entity.ScheduledTask) error

	// DeleteTasks removes tasks by id. Unknown ids are ignored.
	DeleteTasks(ctx context.Context, ids ...string) error

	DeleteAllTasks(ctx context.Context) error

	// MutateTasks applies mutate to a copy of every task matching q and saves
	// the copies that changed. Ids named by q but absent are skipped. It returns
	// the changed tasks. mutate must not change the task id.
	MutateTasks(ctx context.Context, q query.TaskQuery, mutate func(*entity.ScheduledTask)) ([]entity.ScheduledTask, error)
}

// UnsafeTaskStore holds operations outside the normal scheduling flow. Every
// call is logged at WARN.
type UnsafeTaskStore interface {
	// UnsafeModifyInPlace replaces the configuration of a task wholesale. It
	// returns false when the task does not exist.
	UnsafeModifyInPlace(ctx context.Context, taskID string, config entity.TaskConfig) (bool, error)
}

// LockStore reads locks.
type LockStore interface {
	FetchLocks(ctx context.Context) ([]entity.Lock, error)
	FetchLock(ctx context.Context, key entity.LockKey) (entity.Lock, bool, error)
}

// MutableLockStore reads and writes locks.
type MutableLockStore interface {
	LockStore

	// SaveLock stores a new lock. If a lock is already held on the key the call
	// fails with KindConstraintViolation and the work unit aborts.
	SaveLock(ctx context.Context, lock entity.Lock) error

	// RemoveLock releases the lock on key, if any.
	RemoveLock(ctx context.Context, key entity.LockKey) error

	DeleteLocks(ctx context.Context) error
}

// JobStore reads accepted job configurations, grouped by job manager.
type JobStore interface {
	FetchManagerIDs(ctx context.Context) ([]string, error)
	FetchJobs(ctx context.Context, managerID string) ([]entity.JobConfiguration, error)
	FetchJob(ctx context.Context, managerID string, key entity.JobKey) (entity.JobConfiguration, bool, error)
}

// MutableJobStore reads and writes accepted job configurations.
type MutableJobStore interface {
	JobStore
	SaveAcceptedJob(ctx context.Context, managerID string, job entity.JobConfiguration) error
	RemoveJob(ctx context.Context, key entity.JobKey) error
	DeleteJobs(ctx context.Context) error
}

// SchedulerStore reads scheduler-wide state.
type SchedulerStore interface {
	FetchFrameworkID(ctx context.Context) (string, bool, error)
}

// MutableSchedulerStore reads and writes scheduler-wide state.
type MutableSchedulerStore interface {
	SchedulerStore
	SaveFrameworkID(ctx context.Context, id string) error
}

// StoreProvider grants a read work unit access to every store. It is valid only
// until the work function returns.
type StoreProvider interface {
	Tasks() TaskStore
	Locks() LockStore
	Jobs() JobStore
	Scheduler() SchedulerStore
}

// MutableStoreProvider grants a write work unit access to every store. It is
// valid only until the work function returns.
type MutableStoreProvider interface {
	StoreProvider
	MutableTasks() MutableTaskStore
	MutableLocks() MutableLockStore
	MutableJobs() MutableJobStore
	MutableScheduler() MutableSchedulerStore
	Unsafe() UnsafeTaskStore
}
