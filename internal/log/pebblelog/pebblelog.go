// Package pebblelog stores the log in a Pebble LSM directory.
//
// Keys:
//
//	0x00 "last"        -> big-endian uint64, highest position ever assigned
//	0x01 <seq uint64>  -> entry contents
//
// Entries and the high-water mark are written in one synced batch, so a
// position is never handed out twice even after every entry is truncated.
package pebblelog

import (
	"context"
	"encoding/binary"
	"iter"
	"math"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"

	"github.com/roach88/schedstore/internal/log"
)

const entryPrefix = 0x01

var (
	lastKey    = []byte("\x00last")
	entriesEnd = []byte{entryPrefix + 1}
)

func entryKey(seq uint64) []byte {
	key := make([]byte, 9)
	key[0] = entryPrefix
	binary.BigEndian.PutUint64(key[1:], seq)
	return key
}

// keyAfter returns the smallest entry key strictly after seq.
func keyAfter(seq uint64) []byte {
	if seq == math.MaxUint64 {
		return entriesEnd
	}
	return entryKey(seq + 1)
}

// Log is a log.Log stored in a Pebble directory.
type Log struct {
	dir  string
	opts *pebble.Options
}

// New returns a log stored under dir. A nil opts uses Pebble defaults.
func New(dir string, opts *pebble.Options) *Log {
	return &Log{dir: dir, opts: opts}
}

// Open implements log.Log. Pebble locks the directory, so only one stream may be
// open per directory at a time.
func (l *Log) Open(ctx context.Context) (log.Stream, error) {
	opts := l.opts
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(l.dir, opts)
	if err != nil {
		return nil, log.Unavailable(err, "open pebble log %s", l.dir)
	}

	s := &stream{db: db}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

type stream struct {
	db *pebble.DB

	// mu serializes writers and guards last, count and closed.
	mu     sync.Mutex
	last   uint64
	count  int
	closed bool
}

// load reads the high-water mark and counts retained entries.
func (s *stream) load() error {
	value, closer, err := s.db.Get(lastKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		return log.Unavailable(err, "read log end")
	default:
		if len(value) != 8 {
			closer.Close()
			return log.Unavailable(errors.Newf("high-water mark has %d bytes", len(value)), "read log end")
		}
		s.last = binary.BigEndian.Uint64(value)
		closer.Close()
	}

	n, err := s.countRange(entryKey(0), entriesEnd)
	if err != nil {
		return err
	}
	s.count = n
	return nil
}

func (s *stream) countRange(lower, upper []byte) (int, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, log.Unavailable(err, "scan log")
	}
	n := 0
	for valid := it.First(); valid; valid = it.Next() {
		n++
	}
	if err := it.Close(); err != nil {
		return 0, log.Unavailable(err, "scan log")
	}
	return n, nil
}

func (s *stream) Append(ctx context.Context, contents []byte) (log.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return log.Position{}, log.ErrStreamClosed
	}

	seq := s.last + 1
	var mark [8]byte
	binary.BigEndian.PutUint64(mark[:], seq)

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(entryKey(seq), contents, nil); err != nil {
		return log.Position{}, log.Unavailable(err, "append entry")
	}
	if err := batch.Set(lastKey, mark[:], nil); err != nil {
		return log.Position{}, log.Unavailable(err, "append entry")
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return log.Position{}, log.Unavailable(err, "append entry")
	}

	s.last = seq
	s.count++
	return log.At(seq), nil
}

func (s *stream) ReadAfter(ctx context.Context, after log.Position) iter.Seq2[log.Entry, error] {
	return func(yield func(log.Entry, error) bool) {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			yield(log.Entry{}, log.ErrStreamClosed)
			return
		}
		// The snapshot fixes the upper bound at the start of iteration.
		snap := s.db.NewSnapshot()
		s.mu.Unlock()
		defer snap.Close()

		if after.Seq() == math.MaxUint64 {
			return
		}
		it, err := snap.NewIter(&pebble.IterOptions{
			LowerBound: keyAfter(after.Seq()),
			UpperBound: entriesEnd,
		})
		if err != nil {
			yield(log.Entry{}, log.Unavailable(err, "read log"))
			return
		}
		defer it.Close()

		for valid := it.First(); valid; valid = it.Next() {
			if err := ctx.Err(); err != nil {
				yield(log.Entry{}, err)
				return
			}
			entry := log.Entry{
				Position: log.At(binary.BigEndian.Uint64(it.Key()[1:])),
				Contents: append([]byte{}, it.Value()...),
			}
			if !yield(entry, nil) {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield(log.Entry{}, log.Unavailable(err, "read log"))
		}
	}
}

func (s *stream) TruncateTo(ctx context.Context, p log.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return log.ErrStreamClosed
	}
	if p.IsBeginning() {
		return nil
	}

	upper := keyAfter(p.Seq())
	removed, err := s.countRange(entryKey(0), upper)
	if err != nil {
		return err
	}
	if removed == 0 {
		return nil
	}
	if err := s.db.DeleteRange(entryKey(0), upper, pebble.Sync); err != nil {
		return log.Unavailable(err, "truncate log to %s", p)
	}
	s.count -= removed
	return nil
}

func (s *stream) Beginning() log.Position {
	return log.Position{}
}

func (s *stream) End(ctx context.Context) (log.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return log.Position{}, log.ErrStreamClosed
	}
	return log.At(s.last), nil
}

func (s *stream) Size(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, log.ErrStreamClosed
	}
	return s.count, nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return log.ErrStreamClosed
	}
	s.closed = true
	return s.db.Close()
}
