// Package sqlitelog stores the log in a SQLite table.
package sqlitelog

import (
	"context"
	"database/sql"
	_ "embed"
	"iter"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/schedstore/internal/log"
)

//go:embed schema.sql
var schemaSQL string

// pageSize bounds how many entries a reader holds at once. Rows are released
// between pages so appends are not blocked by a slow consumer.
const pageSize = 256

// Log is a log.Log stored in a SQLite database file.
type Log struct {
	path string
}

// New returns a log stored at path. The file is created on first Open.
func New(path string) *Log {
	return &Log{path: path}
}

// dsn configures the connection. synchronous=FULL makes every committed append
// durable before Append returns.
func dsn(path string) string {
	return "file:" + path + "?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000&_txlock=immediate"
}

// Open implements log.Log.
func (l *Log) Open(ctx context.Context) (log.Stream, error) {
	db, err := sql.Open("sqlite3", dsn(l.path))
	if err != nil {
		return nil, log.Unavailable(err, "open log %s", l.path)
	}

	// SQLite allows a single writer; one connection avoids SQLITE_BUSY between
	// appends and truncations.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, log.Unavailable(err, "connect log %s", l.path)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, log.Unavailable(err, "apply log schema")
	}
	return &stream{db: db}, nil
}

type stream struct {
	db     *sql.DB
	closed atomic.Bool
}

func (s *stream) Append(ctx context.Context, contents []byte) (log.Position, error) {
	if s.closed.Load() {
		return log.Position{}, log.ErrStreamClosed
	}
	if contents == nil {
		contents = []byte{}
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO log_entries (contents) VALUES (?)`, contents)
	if err != nil {
		return log.Position{}, log.Unavailable(err, "append entry")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return log.Position{}, log.Unavailable(err, "append entry")
	}
	return log.At(uint64(id)), nil
}

func (s *stream) ReadAfter(ctx context.Context, after log.Position) iter.Seq2[log.Entry, error] {
	return func(yield func(log.Entry, error) bool) {
		if s.closed.Load() {
			yield(log.Entry{}, log.ErrStreamClosed)
			return
		}

		// Bound the read by the last committed entry at the start of iteration.
		var upper int64
		err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM log_entries`).Scan(&upper)
		if err != nil {
			yield(log.Entry{}, log.Unavailable(err, "read log bound"))
			return
		}

		cursor := int64(after.Seq())
		for cursor < upper {
			page, err := s.readPage(ctx, cursor, upper)
			if err != nil {
				yield(log.Entry{}, err)
				return
			}
			if len(page) == 0 {
				return
			}
			for _, entry := range page {
				if !yield(entry, nil) {
					return
				}
			}
			cursor = int64(page[len(page)-1].Position.Seq())
		}
	}
}

func (s *stream) readPage(ctx context.Context, after, upper int64) ([]log.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, contents FROM log_entries
		WHERE position > ? AND position <= ?
		ORDER BY position ASC
		LIMIT ?
	`, after, upper, pageSize)
	if err != nil {
		return nil, log.Unavailable(err, "read log entries")
	}
	defer rows.Close()

	page := make([]log.Entry, 0, pageSize)
	for rows.Next() {
		var (
			position int64
			contents []byte
		)
		if err := rows.Scan(&position, &contents); err != nil {
			return nil, log.Unavailable(err, "scan log entry")
		}
		page = append(page, log.Entry{Position: log.At(uint64(position)), Contents: contents})
	}
	if err := rows.Err(); err != nil {
		return nil, log.Unavailable(err, "iterate log entries")
	}
	return page, nil
}

func (s *stream) TruncateTo(ctx context.Context, p log.Position) error {
	if s.closed.Load() {
		return log.ErrStreamClosed
	}
	if p.IsBeginning() {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM log_entries WHERE position <= ?`, int64(p.Seq())); err != nil {
		return log.Unavailable(err, "truncate log to %s", p)
	}
	return nil
}

func (s *stream) Beginning() log.Position {
	return log.Position{}
}

func (s *stream) End(ctx context.Context) (log.Position, error) {
	if s.closed.Load() {
		return log.Position{}, log.ErrStreamClosed
	}
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT seq FROM sqlite_sequence WHERE name = 'log_entries'`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return log.Position{}, nil
	}
	if err != nil {
		return log.Position{}, log.Unavailable(err, "read log end")
	}
	return log.At(uint64(seq)), nil
}

func (s *stream) Size(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, log.ErrStreamClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT entries FROM log_stats WHERE id = 1`).Scan(&n); err != nil {
		return 0, log.Unavailable(err, "count log entries")
	}
	return n, nil
}

func (s *stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return log.ErrStreamClosed
	}
	return s.db.Close()
}
