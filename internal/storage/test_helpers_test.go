package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/schedstore/internal/entity"
	"github.com/roach88/schedstore/internal/log"
	"github.com/roach88/schedstore/internal/query"
	"github.com/roach88/schedstore/internal/store"
)

var discard = slog.New(slog.DiscardHandler)

// openTestStore opens an entity store in a temporary directory.
func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "entities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// createTestStorage starts a Storage over l with a fresh entity store.
func createTestStorage(t *testing.T, l log.Log, opts ...Option) *Storage {
	t.Helper()
	s := New(l, openTestStore(t), append([]Option{WithLogger(discard)}, opts...)...)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Stop() })
	return s
}

func mustWrite(t *testing.T, s *Storage, work func(ctx context.Context, p MutableStoreProvider) error) {
	t.Helper()
	require.NoError(t, s.Write(context.Background(), work))
}

func fetchTasks(t *testing.T, s *Storage, q query.TaskQuery) []entity.ScheduledTask {
	t.Helper()
	tasks, err := ReadValue(context.Background(), s, func(ctx context.Context, p StoreProvider) ([]entity.ScheduledTask, error) {
		return p.Tasks().FetchTasks(ctx, q)
	})
	require.NoError(t, err)
	return tasks
}

func fetchLocks(t *testing.T, s *Storage) []entity.Lock {
	t.Helper()
	locks, err := ReadValue(context.Background(), s, func(ctx context.Context, p StoreProvider) ([]entity.Lock, error) {
		return p.Locks().FetchLocks(ctx)
	})
	require.NoError(t, err)
	return locks
}

// dumpState reads the whole entity store behind s.
func dumpState(t *testing.T, s *Storage) store.State {
	t.Helper()
	ctx := context.Background()
	tx, err := s.store.BeginRead(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	state, err := tx.Dump(ctx)
	require.NoError(t, err)
	return state
}

// logEntries reads every retained entry of l through a separate stream.
func logEntries(t *testing.T, l log.Log) []log.Entry {
	t.Helper()
	ctx := context.Background()
	stream, err := l.Open(ctx)
	require.NoError(t, err)
	defer stream.Close()
	entries, err := log.Collect(ctx, stream, stream.Beginning())
	require.NoError(t, err)
	return entries
}

func decodeEntry(t *testing.T, e log.Entry) Transaction {
	t.Helper()
	txn, err := DecodeTransaction(e.Contents)
	require.NoError(t, err)
	return txn
}
