package pebblelog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schedstore/internal/log"
	"github.com/roach88/schedstore/internal/log/logtest"
)

func TestConformance(t *testing.T) {
	var dir string
	logtest.Run(t, logtest.Factory{
		New: func(t *testing.T) log.Log {
			dir = filepath.Join(t.TempDir(), "log")
			return New(dir, nil)
		},
		Reopen: func(t *testing.T) log.Log {
			return New(dir, nil)
		},
	})
}

func TestSizeSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "log")

	s, err := New(dir, nil).Open(ctx)
	require.NoError(t, err)
	for _, c := range []string{"a", "b", "c"} {
		_, err := s.Append(ctx, []byte(c))
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	s, err = New(dir, nil).Open(ctx)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestKeyAfterMax(t *testing.T) {
	assert.Equal(t, entriesEnd, keyAfter(^uint64(0)))
	assert.Equal(t, entryKey(8), keyAfter(7))
}
