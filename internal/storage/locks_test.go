package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schedstore/internal/entity"
	"github.com/roach88/schedstore/internal/log/memlog"
	"github.com/roach88/schedstore/internal/testutil"
)

func saveLocks(t *testing.T, s *Storage, locks ...entity.Lock) {
	t.Helper()
	mustWrite(t, s, func(ctx context.Context, p MutableStoreProvider) error {
		for _, l := range locks {
			if err := p.MutableLocks().SaveLock(ctx, l); err != nil {
				return err
			}
		}
		return nil
	})
}

func TestLocks_RoundTrip(t *testing.T) {
	s := createTestStorage(t, memlog.New())
	// The same token may be used under different keys.
	a := testutil.Lock(testutil.WebKey, "token1")
	b := testutil.Lock(testutil.BatchKey, "token1")
	saveLocks(t, s, a, b)

	assert.ElementsMatch(t, []entity.Lock{a, b}, fetchLocks(t, s))

	got, ok, err := fetchLock(t, s, a.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a, got)
}

func TestLocks_FetchMissing(t *testing.T) {
	s := createTestStorage(t, memlog.New())

	_, ok, err := fetchLock(t, s, entity.JobLockKey(testutil.WebKey))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, fetchLocks(t, s))
}

func TestLocks_DuplicateKeyRejected(t *testing.T) {
	s := createTestStorage(t, memlog.New())
	first := testutil.Lock(testutil.WebKey, "token1")
	saveLocks(t, s, first)

	err := s.Write(context.Background(), func(ctx context.Context, p MutableStoreProvider) error {
		return p.MutableLocks().SaveLock(ctx, testutil.Lock(testutil.WebKey, "token2"))
	})
	require.Error(t, err)
	assert.True(t, IsConstraintViolation(err))

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindConstraintViolation, se.Kind)
	assert.Equal(t, "save lock", se.Op)

	assert.Equal(t, []entity.Lock{first}, fetchLocks(t, s))
}

func TestLocks_SaveAfterRemove(t *testing.T) {
	s := createTestStorage(t, memlog.New())
	first := testutil.Lock(testutil.WebKey, "token1")
	saveLocks(t, s, first)

	mustWrite(t, s, func(ctx context.Context, p MutableStoreProvider) error {
		return p.MutableLocks().RemoveLock(ctx, first.Key)
	})
	assert.Empty(t, fetchLocks(t, s))

	second := testutil.Lock(testutil.WebKey, "token2")
	saveLocks(t, s, second)
	assert.Equal(t, []entity.Lock{second}, fetchLocks(t, s))
}

func TestLocks_RemoveAndSaveInOneUnit(t *testing.T) {
	s := createTestStorage(t, memlog.New())
	saveLocks(t, s, testutil.Lock(testutil.WebKey, "token1"))

	second := testutil.Lock(testutil.WebKey, "token2")
	mustWrite(t, s, func(ctx context.Context, p MutableStoreProvider) error {
		if err := p.MutableLocks().RemoveLock(ctx, second.Key); err != nil {
			return err
		}
		return p.MutableLocks().SaveLock(ctx, second)
	})
	assert.Equal(t, []entity.Lock{second}, fetchLocks(t, s))
}

func TestLocks_RemoveMissingIsNoop(t *testing.T) {
	s := createTestStorage(t, memlog.New())
	mustWrite(t, s, func(ctx context.Context, p MutableStoreProvider) error {
		return p.MutableLocks().RemoveLock(ctx, entity.JobLockKey(testutil.WebKey))
	})
	assert.Empty(t, fetchLocks(t, s))
}

func TestLocks_DeleteLocks(t *testing.T) {
	s := createTestStorage(t, memlog.New())
	saveLocks(t, s,
		testutil.Lock(testutil.WebKey, "token1"),
		testutil.Lock(testutil.BatchKey, "token2"),
	)

	mustWrite(t, s, func(ctx context.Context, p MutableStoreProvider) error {
		return p.MutableLocks().DeleteLocks(ctx)
	})
	assert.Empty(t, fetchLocks(t, s))

	// Keys are free again.
	saveLocks(t, s, testutil.Lock(testutil.WebKey, "token3"))
	assert.Len(t, fetchLocks(t, s), 1)
}

// fetchLock fetches one lock in its own read unit.
func fetchLock(t *testing.T, s *Storage, key entity.LockKey) (entity.Lock, bool, error) {
	t.Helper()
	var (
		lock entity.Lock
		ok   bool
	)
	err := s.Read(context.Background(), func(ctx context.Context, p StoreProvider) error {
		var err error
		lock, ok, err = p.Locks().FetchLock(ctx, key)
		return err
	})
	return lock, ok, err
}
