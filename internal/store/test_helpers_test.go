package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/schedstore/internal/entity"
)

var (
	webKey   = entity.MustJobKey("www-data", "prod", "web")
	batchKey = entity.MustJobKey("batch", "devel", "etl")
)

// createTestStore opens a store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "entities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestTask builds a task with the fields queries filter on.
func createTestTask(id string, key entity.JobKey, instance int32, status entity.ScheduleStatus, host string) entity.ScheduledTask {
	return entity.ScheduledTask{
		AssignedTask: entity.AssignedTask{
			TaskID:     id,
			SlaveHost:  host,
			InstanceID: instance,
			Task: entity.TaskConfig{
				Job:     key,
				Owner:   entity.Identity{Role: key.Role, User: "user-" + key.Role},
				NumCPUs: 0.5,
				RAMMB:   128,
			},
			AssignedPorts: map[string]int32{"http": 31000 + instance},
		},
		Status:     status,
		TaskEvents: []entity.TaskEvent{{TimestampMs: 1000, Status: status}},
	}
}

// write runs fn in a write transaction and commits it.
func write(t *testing.T, s *Store, fn func(ctx context.Context, tx *Tx) error) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.BeginWrite(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, fn(ctx, tx))
	require.NoError(t, tx.Commit())
}

// read runs fn in a read transaction.
func read(t *testing.T, s *Store, fn func(ctx context.Context, tx *Tx)) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.BeginRead(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	fn(ctx, tx)
}
