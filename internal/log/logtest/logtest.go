// Package logtest checks that a log.Log implementation honours the Stream contract.
package logtest

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schedstore/internal/log"
)

// Factory returns a fresh, empty log for a single subtest. Reopen, when set,
// returns a log over the same durable medium as the last Factory call so the
// suite can check persistence across sessions.
type Factory struct {
	New    func(t *testing.T) log.Log
	Reopen func(t *testing.T) log.Log
}

// Run executes the conformance suite against f.
func Run(t *testing.T, f Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s log.Stream)
	}{
		{"EmptyLog", testEmptyLog},
		{"AppendOrder", testAppendOrder},
		{"ReadAfterEveryPosition", testReadAfterEveryPosition},
		{"Truncate", testTruncate},
		{"TruncateAll", testTruncateAll},
		{"ReadBoundedAtStart", testReadBoundedAtStart},
		{"ReadRestartable", testReadRestartable},
		{"ContentsCopied", testContentsCopied},
		{"EarlyBreak", testEarlyBreak},
		{"ConcurrentAppends", testConcurrentAppends},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t, f.New(t))
			defer s.Close()
			tt.fn(t, s)
		})
	}

	t.Run("CloseOnce", func(t *testing.T) {
		s := open(t, f.New(t))
		require.NoError(t, s.Close())

		assert.True(t, errors.Is(s.Close(), log.ErrStreamClosed), "second Close")
		_, err := s.Append(context.Background(), []byte("x"))
		assert.True(t, errors.Is(err, log.ErrStreamClosed), "Append after Close")
		_, err = log.Collect(context.Background(), s, s.Beginning())
		assert.True(t, errors.Is(err, log.ErrStreamClosed), "ReadAfter after Close")
	})

	if f.Reopen != nil {
		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, f)
		})
	}
}

func open(t *testing.T, l log.Log) log.Stream {
	t.Helper()
	s, err := l.Open(context.Background())
	require.NoError(t, err)
	return s
}

func appendAll(t *testing.T, s log.Stream, contents ...string) []log.Position {
	t.Helper()
	positions := make([]log.Position, 0, len(contents))
	for _, c := range contents {
		p, err := s.Append(context.Background(), []byte(c))
		require.NoError(t, err)
		positions = append(positions, p)
	}
	return positions
}

func readAll(t *testing.T, s log.Stream, after log.Position) []string {
	t.Helper()
	entries, err := log.Collect(context.Background(), s, after)
	require.NoError(t, err)
	contents := make([]string, 0, len(entries))
	for i, e := range entries {
		if i > 0 {
			require.True(t, entries[i-1].Position.Less(e.Position), "positions must increase")
		}
		contents = append(contents, string(e.Contents))
	}
	return contents
}

func size(t *testing.T, s log.Stream) int {
	t.Helper()
	n, err := s.Size(context.Background())
	require.NoError(t, err)
	return n
}

func end(t *testing.T, s log.Stream) log.Position {
	t.Helper()
	p, err := s.End(context.Background())
	require.NoError(t, err)
	return p
}

func testEmptyLog(t *testing.T, s log.Stream) {
	ctx := context.Background()

	assert.Equal(t, 0, size(t, s))
	assert.Empty(t, readAll(t, s, s.Beginning()))
	assert.Empty(t, readAll(t, s, end(t, s)))

	require.NoError(t, s.TruncateTo(ctx, s.Beginning()))
	require.NoError(t, s.TruncateTo(ctx, end(t, s)))
	assert.Equal(t, 0, size(t, s))
}

func testAppendOrder(t *testing.T, s log.Stream) {
	positions := appendAll(t, s, "c", "b", "a")

	assert.Equal(t, []string{"c", "b", "a"}, readAll(t, s, s.Beginning()))
	assert.True(t, positions[0].Less(positions[1]), "c < b")
	assert.True(t, positions[1].Less(positions[2]), "b < a")
	assert.True(t, s.Beginning().Less(positions[0]), "beginning sorts first")
	assert.Equal(t, positions[2], end(t, s))
	assert.Equal(t, 3, size(t, s))
}

func testReadAfterEveryPosition(t *testing.T, s log.Stream) {
	contents := []string{"one", "two", "three", "four", "five"}
	positions := appendAll(t, s, contents...)

	assert.Equal(t, contents, readAll(t, s, s.Beginning()))
	for i, p := range positions {
		assert.Equal(t, contents[i+1:], readAll(t, s, p), "after entry %d", i+1)
	}
}

func testTruncate(t *testing.T, s log.Stream) {
	ctx := context.Background()
	positions := appendAll(t, s, "a", "b", "c", "d")

	require.NoError(t, s.TruncateTo(ctx, positions[1]))

	assert.Equal(t, 2, size(t, s))
	assert.Equal(t, []string{"c", "d"}, readAll(t, s, s.Beginning()))
	assert.Equal(t, []string{"d"}, readAll(t, s, positions[2]))

	// Truncating an already removed prefix is a no-op.
	require.NoError(t, s.TruncateTo(ctx, positions[0]))
	assert.Equal(t, 2, size(t, s))
}

func testTruncateAll(t *testing.T, s log.Stream) {
	ctx := context.Background()
	positions := appendAll(t, s, "a", "b")

	require.NoError(t, s.TruncateTo(ctx, end(t, s)))
	assert.Equal(t, 0, size(t, s))
	assert.Empty(t, readAll(t, s, s.Beginning()))

	// Positions are never reused after truncation.
	assert.Equal(t, positions[1], end(t, s))
	next := appendAll(t, s, "c")
	assert.True(t, positions[1].Less(next[0]))
	assert.Equal(t, []string{"c"}, readAll(t, s, s.Beginning()))
}

func testReadBoundedAtStart(t *testing.T, s log.Stream) {
	ctx := context.Background()
	appendAll(t, s, "a", "b")

	var seen []string
	for entry, err := range s.ReadAfter(ctx, s.Beginning()) {
		require.NoError(t, err)
		seen = append(seen, string(entry.Contents))
		if len(seen) == 1 {
			_, err := s.Append(ctx, []byte("late"))
			require.NoError(t, err)
		}
	}

	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, []string{"a", "b", "late"}, readAll(t, s, s.Beginning()))
}

func testReadRestartable(t *testing.T, s log.Stream) {
	appendAll(t, s, "a", "b", "c")
	seq := s.ReadAfter(context.Background(), s.Beginning())

	collect := func() []string {
		var out []string
		for entry, err := range seq {
			require.NoError(t, err)
			out = append(out, string(entry.Contents))
		}
		return out
	}

	assert.Equal(t, []string{"a", "b", "c"}, collect())
	assert.Equal(t, []string{"a", "b", "c"}, collect())
}

func testContentsCopied(t *testing.T, s log.Stream) {
	ctx := context.Background()
	buf := []byte("abc")
	_, err := s.Append(ctx, buf)
	require.NoError(t, err)
	buf[0] = 'X'

	entries, err := log.Collect(ctx, s, s.Beginning())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "abc", string(entries[0].Contents))

	entries[0].Contents[0] = 'Y'
	assert.Equal(t, []string{"abc"}, readAll(t, s, s.Beginning()))
}

func testEarlyBreak(t *testing.T, s log.Stream) {
	appendAll(t, s, "a", "b", "c")

	var first string
	for entry, err := range s.ReadAfter(context.Background(), s.Beginning()) {
		require.NoError(t, err)
		first = string(entry.Contents)
		break
	}
	assert.Equal(t, "a", first)

	// The stream must still be usable after abandoning an iteration.
	appendAll(t, s, "d")
	assert.Equal(t, 4, size(t, s))
}

func testConcurrentAppends(t *testing.T, s log.Stream) {
	const writers, perWriter = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := s.Append(context.Background(), []byte("x"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, size(t, s))
	assert.Len(t, readAll(t, s, s.Beginning()), writers*perWriter)
}

func testReopen(t *testing.T, f Factory) {
	ctx := context.Background()
	s := open(t, f.New(t))
	positions := appendAll(t, s, "a", "b", "c")
	require.NoError(t, s.TruncateTo(ctx, positions[0]))
	require.NoError(t, s.Close())

	reopened := open(t, f.Reopen(t))
	defer reopened.Close()

	assert.Equal(t, 2, size(t, reopened))
	assert.Equal(t, []string{"b", "c"}, readAll(t, reopened, reopened.Beginning()))
	assert.Equal(t, positions[2], end(t, reopened))

	next := appendAll(t, reopened, "d")
	assert.True(t, positions[2].Less(next[0]), "positions survive reopen")
}
