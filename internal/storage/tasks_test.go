package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schedstore/internal/entity"
	"github.com/roach88/schedstore/internal/log/memlog"
	"github.com/roach88/schedstore/internal/query"
	"github.com/roach88/schedstore/internal/testutil"
)

func saveTasks(t *testing.T, s *Storage, tasks ...entity.ScheduledTask) {
	t.Helper()
	mustWrite(t, s, func(ctx context.Context, p MutableStoreProvider) error {
		return p.MutableTasks().SaveTasks(ctx, tasks...)
	})
}

func mutateTasks(t *testing.T, s *Storage, q query.TaskQuery, mutate func(*entity.ScheduledTask)) []entity.ScheduledTask {
	t.Helper()
	changed, err := WriteValue(context.Background(), s, func(ctx context.Context, p MutableStoreProvider) ([]entity.ScheduledTask, error) {
		return p.MutableTasks().MutateTasks(ctx, q, mutate)
	})
	require.NoError(t, err)
	return changed
}

func TestTasks_FetchByQuery(t *testing.T) {
	s := createTestStorage(t, memlog.New())
	web := testutil.Tasks(testutil.WebKey, 3, entity.StatusRunning)
	batch := testutil.Task(testutil.BatchKey, 0, entity.StatusFinished)
	saveTasks(t, s, append(web, batch)...)

	assert.Len(t, fetchTasks(t, s, query.Unscoped()), 4)
	assert.Equal(t, web, fetchTasks(t, s, query.JobScoped(testutil.WebKey)))
	assert.Equal(t, []entity.ScheduledTask{batch}, fetchTasks(t, s, query.Unscoped().Terminal()))
	assert.Equal(t, []entity.ScheduledTask{web[1]}, fetchTasks(t, s, query.InstanceScoped(testutil.WebKey, 1)))
	assert.Empty(t, fetchTasks(t, s, query.TaskScoped()))
}

func TestTasks_ResultsAreCopies(t *testing.T) {
	s := createTestStorage(t, memlog.New())
	task := testutil.Task(testutil.WebKey, 0, entity.StatusPending)
	saveTasks(t, s, task)

	got := fetchTasks(t, s, query.Unscoped())
	got[0].Status = entity.StatusLost
	got[0].TaskEvents[0].Message = "changed"

	assert.Equal(t, []entity.ScheduledTask{task}, fetchTasks(t, s, query.Unscoped()))
}

func TestTasks_SavedValuesAreCopies(t *testing.T) {
	s := createTestStorage(t, memlog.New())
	task := testutil.Task(testutil.WebKey, 0, entity.StatusPending)
	want := task.Clone()

	mustWrite(t, s, func(ctx context.Context, p MutableStoreProvider) error {
		if err := p.MutableTasks().SaveTasks(ctx, task); err != nil {
			return err
		}
		task.TaskEvents[0].Message = "changed after save"
		return nil
	})
	assert.Equal(t, []entity.ScheduledTask{want}, fetchTasks(t, s, query.Unscoped()))
}

func TestTasks_InvalidQuery(t *testing.T) {
	s := createTestStorage(t, memlog.New())

	err := s.Read(context.Background(), func(ctx context.Context, p StoreProvider) error {
		_, err := p.Tasks().FetchTasks(ctx, query.Unscoped().ByStatus("SLEEPING"))
		return err
	})
	assert.True(t, IsInvalidArgument(err))
}

func TestTasks_Delete(t *testing.T) {
	s := createTestStorage(t, memlog.New())
	tasks := testutil.Tasks(testutil.WebKey, 3, entity.StatusPending)
	saveTasks(t, s, tasks...)

	mustWrite(t, s, func(ctx context.Context, p MutableStoreProvider) error {
		return p.MutableTasks().DeleteTasks(ctx, tasks[0].ID(), "no-such-task")
	})
	assert.Equal(t, tasks[1:], fetchTasks(t, s, query.Unscoped()))

	mustWrite(t, s, func(ctx context.Context, p MutableStoreProvider) error {
		return p.MutableTasks().DeleteAllTasks(ctx)
	})
	assert.Empty(t, fetchTasks(t, s, query.Unscoped()))
}

func TestMutateTasks_SkipsAbsentIDs(t *testing.T) {
	s := createTestStorage(t, memlog.New())
	tasks := testutil.Tasks(testutil.WebKey, 2, entity.StatusPending)
	saveTasks(t, s, tasks...)

	q := query.TaskScoped(tasks[0].ID(), tasks[1].ID(), "no-such-task")
	changed := mutateTasks(t, s, q, func(task *entity.ScheduledTask) {
		task.Status = entity.StatusAssigned
	})

	require.Len(t, changed, 2)
	assert.Equal(t, []string{tasks[0].ID(), tasks[1].ID()}, entity.TaskIDs(changed))
	for _, task := range fetchTasks(t, s, query.Unscoped()) {
		assert.Equal(t, entity.StatusAssigned, task.Status)
	}
}

func TestMutateTasks_Idempotent(t *testing.T) {
	l := memlog.New()
	s := createTestStorage(t, l)
	saveTasks(t, s, testutil.Tasks(testutil.WebKey, 2, entity.StatusPending)...)
	toRunning := func(task *entity.ScheduledTask) {
		task.Status = entity.StatusRunning
	}

	first := mutateTasks(t, s, query.JobScoped(testutil.WebKey), toRunning)
	assert.Len(t, first, 2)
	state := dumpState(t, s)
	entries := len(logEntries(t, l))

	second := mutateTasks(t, s, query.JobScoped(testutil.WebKey), toRunning)
	assert.Empty(t, second)
	assert.NotNil(t, second)
	assert.Equal(t, state, dumpState(t, s))
	assert.Len(t, logEntries(t, l), entries)
}

func TestMutateTasks_RejectsIDChange(t *testing.T) {
	s := createTestStorage(t, memlog.New())
	task := testutil.Task(testutil.WebKey, 0, entity.StatusPending)
	saveTasks(t, s, task)

	err := s.Write(context.Background(), func(ctx context.Context, p MutableStoreProvider) error {
		_, err := p.MutableTasks().MutateTasks(ctx, query.Unscoped(), func(task *entity.ScheduledTask) {
			task.AssignedTask.TaskID = "renamed"
		})
		return err
	})
	assert.True(t, IsInvalidArgument(err))
	assert.ErrorIs(t, err, ErrTaskIDChanged)
	assert.Equal(t, []entity.ScheduledTask{task}, fetchTasks(t, s, query.Unscoped()))
}

func TestUnsafeModifyInPlace(t *testing.T) {
	l := memlog.New()
	s := createTestStorage(t, l)
	task := testutil.Task(testutil.WebKey, 0, entity.StatusRunning)
	saveTasks(t, s, task)

	config := testutil.TaskConfig(testutil.WebKey)
	config.ExecutorData = `{"cmd":"serve --port 8080"}`

	found, err := WriteValue(context.Background(), s, func(ctx context.Context, p MutableStoreProvider) (bool, error) {
		return p.Unsafe().UnsafeModifyInPlace(ctx, task.ID(), config)
	})
	require.NoError(t, err)
	assert.True(t, found)

	got := fetchTasks(t, s, query.TaskScoped(task.ID()))
	require.Len(t, got, 1)
	assert.Equal(t, config, got[0].AssignedTask.Task)
	assert.Equal(t, entity.StatusRunning, got[0].Status)

	entries := len(logEntries(t, l))
	found, err = WriteValue(context.Background(), s, func(ctx context.Context, p MutableStoreProvider) (bool, error) {
		return p.Unsafe().UnsafeModifyInPlace(ctx, "no-such-task", config)
	})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Len(t, logEntries(t, l), entries)
}

func TestJobs_SaveFetchRemove(t *testing.T) {
	s := createTestStorage(t, memlog.New())
	web := testutil.Job(testutil.WebKey, 3)
	batch := testutil.Job(testutil.BatchKey, 1)
	batch.CronSchedule = "0 * * * *"
	batch.CronCollisionPolicy = entity.KillExisting

	mustWrite(t, s, func(ctx context.Context, p MutableStoreProvider) error {
		if err := p.MutableJobs().SaveAcceptedJob(ctx, "cron", batch); err != nil {
			return err
		}
		return p.MutableJobs().SaveAcceptedJob(ctx, "service", web)
	})

	err := s.Read(context.Background(), func(ctx context.Context, p StoreProvider) error {
		managers, err := p.Jobs().FetchManagerIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"cron", "service"}, managers)

		jobs, err := p.Jobs().FetchJobs(ctx, "cron")
		require.NoError(t, err)
		assert.Equal(t, []entity.JobConfiguration{batch}, jobs)

		_, ok, err := p.Jobs().FetchJob(ctx, "cron", testutil.WebKey)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	mustWrite(t, s, func(ctx context.Context, p MutableStoreProvider) error {
		return p.MutableJobs().RemoveJob(ctx, testutil.BatchKey)
	})
	state := dumpState(t, s)
	require.Len(t, state.Jobs, 1)
	assert.Equal(t, web, state.Jobs[0].Job)

	mustWrite(t, s, func(ctx context.Context, p MutableStoreProvider) error {
		return p.MutableJobs().DeleteJobs(ctx)
	})
	assert.Empty(t, dumpState(t, s).Jobs)
}
