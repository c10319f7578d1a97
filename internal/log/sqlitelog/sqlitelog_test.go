package sqlitelog

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schedstore/internal/log"
	"github.com/roach88/schedstore/internal/log/logtest"
)

func TestConformance(t *testing.T) {
	var path string
	logtest.Run(t, logtest.Factory{
		New: func(t *testing.T) log.Log {
			path = filepath.Join(t.TempDir(), "log.db")
			return New(path)
		},
		Reopen: func(t *testing.T) log.Log {
			return New(path)
		},
	})
}

func TestOpenUnavailable(t *testing.T) {
	// SQLite does not create missing parent directories.
	_, err := New(filepath.Join(t.TempDir(), "missing", "log.db")).Open(context.Background())
	require.Error(t, err)
	assert.True(t, log.IsUnavailable(err))
}

func TestReadAfterSpansPages(t *testing.T) {
	ctx := context.Background()
	s, err := New(filepath.Join(t.TempDir(), "log.db")).Open(ctx)
	require.NoError(t, err)
	defer s.Close()

	const n = pageSize*2 + 7
	for i := 0; i < n; i++ {
		_, err := s.Append(ctx, []byte{byte(i)})
		require.NoError(t, err)
	}

	entries, err := log.Collect(ctx, s, s.Beginning())
	require.NoError(t, err)
	require.Len(t, entries, n)
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Position.Seq())
		assert.Equal(t, []byte{byte(i)}, e.Contents)
	}
}

func TestEmptyContents(t *testing.T) {
	ctx := context.Background()
	s, err := New(filepath.Join(t.TempDir(), "log.db")).Open(ctx)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Append(ctx, nil)
	require.NoError(t, err)

	entries, err := log.Collect(ctx, s, s.Beginning())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Contents)
}

func TestSizeIsTrackedAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "log.db")
	s, err := New(path).Open(ctx)
	require.NoError(t, err)

	var last log.Position
	for i := 0; i < 5; i++ {
		last, err = s.Append(ctx, []byte{byte(i)})
		require.NoError(t, err)
	}
	require.NoError(t, s.TruncateTo(ctx, log.At(2)))
	n, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, s.Close())

	s, err = New(path).Open(ctx)
	require.NoError(t, err)
	defer s.Close()
	n, err = s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, s.TruncateTo(ctx, last))
	n, err = s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSizeCountsEntriesWrittenBeforeStats(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "log.db")

	// A log file created before the stats table existed.
	db, err := sql.Open("sqlite3", dsn(path))
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		CREATE TABLE log_entries (
		  position INTEGER PRIMARY KEY AUTOINCREMENT,
		  contents BLOB NOT NULL
		);
		INSERT INTO log_entries (contents) VALUES (x'01'), (x'02');
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := New(path).Open(ctx)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Append(ctx, []byte{3})
	require.NoError(t, err)
	n, err = s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
