// Package memlog is an in-process log backed by a B-tree.
//
// Entries live only as long as the Log value, so it serves tests.
package memlog

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"github.com/roach88/schedstore/internal/log"
)

const degree = 32

type item struct {
	seq      uint64
	contents []byte
}

func (a item) Less(b btree.Item) bool {
	return a.seq < b.(item).seq
}

// Log is an in-memory log.Log. Streams opened on the same Log share entries.
type Log struct {
	mu        sync.RWMutex
	entries   *btree.BTree
	last      uint64
	appendErr error
}

// New returns an empty log.
func New() *Log {
	return &Log{entries: btree.New(degree)}
}

// FailAppends makes every subsequent Append fail with err, marked unavailable.
// Pass nil to restore normal behaviour.
func (l *Log) FailAppends(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendErr = err
}

// Open implements log.Log.
func (l *Log) Open(ctx context.Context) (log.Stream, error) {
	return &stream{log: l}, nil
}

type stream struct {
	log    *Log
	closed atomic.Bool
}

func (s *stream) Append(ctx context.Context, contents []byte) (log.Position, error) {
	if s.closed.Load() {
		return log.Position{}, log.ErrStreamClosed
	}
	l := s.log
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return log.Position{}, log.Unavailable(l.appendErr, "append")
	}
	l.last++
	l.entries.ReplaceOrInsert(item{seq: l.last, contents: append([]byte(nil), contents...)})
	return log.At(l.last), nil
}

func (s *stream) ReadAfter(ctx context.Context, after log.Position) iter.Seq2[log.Entry, error] {
	return func(yield func(log.Entry, error) bool) {
		if s.closed.Load() {
			yield(log.Entry{}, log.ErrStreamClosed)
			return
		}

		// Copy the range under the read lock so appends during iteration are not seen.
		var entries []log.Entry
		s.log.mu.RLock()
		s.log.entries.AscendGreaterOrEqual(item{seq: after.Seq() + 1}, func(i btree.Item) bool {
			it := i.(item)
			entries = append(entries, log.Entry{
				Position: log.At(it.seq),
				Contents: append([]byte(nil), it.contents...),
			})
			return true
		})
		s.log.mu.RUnlock()

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				yield(log.Entry{}, err)
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func (s *stream) TruncateTo(ctx context.Context, p log.Position) error {
	if s.closed.Load() {
		return log.ErrStreamClosed
	}
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	for {
		first := s.log.entries.Min()
		if first == nil || first.(item).seq > p.Seq() {
			return nil
		}
		s.log.entries.DeleteMin()
	}
}

func (s *stream) Beginning() log.Position {
	return log.Position{}
}

func (s *stream) End(ctx context.Context) (log.Position, error) {
	if s.closed.Load() {
		return log.Position{}, log.ErrStreamClosed
	}
	s.log.mu.RLock()
	defer s.log.mu.RUnlock()
	return log.At(s.log.last), nil
}

func (s *stream) Size(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, log.ErrStreamClosed
	}
	s.log.mu.RLock()
	defer s.log.mu.RUnlock()
	return s.log.entries.Len(), nil
}

func (s *stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return log.ErrStreamClosed
	}
	return nil
}
