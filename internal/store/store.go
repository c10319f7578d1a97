package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema
const currentSchemaVersion = 1

// Store is the SQLite-backed entity database.
type Store struct {
	path   string
	writer *sql.DB
	reader *sql.DB
}

// Open creates or opens the database at path and applies the schema.
//
// The database is configured with:
//   - WAL mode for snapshot reads during writes
//   - FULL synchronous mode on the writer
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Open is idempotent.
func Open(path string) (*Store, error) {
	writer, err := openDB(writerDSN(path))
	if err != nil {
		return nil, errors.Wrap(err, "open writer")
	}

	// SQLite supports one writer at a time. A single connection also makes the
	// writer transaction the only one in flight.
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	if err := applySchema(writer); err != nil {
		writer.Close()
		return nil, errors.Wrap(err, "apply schema")
	}

	reader, err := openDB(readerDSN(path))
	if err != nil {
		writer.Close()
		return nil, errors.Wrap(err, "open reader")
	}

	return &Store{path: path, writer: writer, reader: reader}, nil
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func writerDSN(path string) string {
	return "file:" + path + "?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
}

// readerDSN leaves the journal mode alone: WAL is persistent and the writer, opened
// first, has already set it.
func readerDSN(path string) string {
	return "file:" + path + "?_busy_timeout=5000&_foreign_keys=on"
}

// Close closes both handles.
func (s *Store) Close() error {
	return errors.CombineErrors(s.reader.Close(), s.writer.Close())
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// BeginWrite starts the single write transaction. It blocks while another write
// transaction is open.
func (s *Store) BeginWrite(ctx context.Context) (*Tx, error) {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin write")
	}
	return &Tx{tx: tx, writable: true}, nil
}

// BeginRead starts a read-only transaction.
func (s *Store) BeginRead(ctx context.Context) (*Tx, error) {
	tx, err := s.reader.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "begin read")
	}
	return &Tx{tx: tx}, nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return errors.Wrap(err, "execute schema")
	}
	return runMigrations(db)
}

// runMigrations brings the database to currentSchemaVersion based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return errors.Wrap(err, "get user_version")
	}
	if version > currentSchemaVersion {
		return errors.Newf("database schema version %d is newer than supported version %d",
			version, currentSchemaVersion)
	}

	// Version 0 databases are fresh; schema.sql already created everything.

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return errors.Wrap(err, "set user_version")
	}
	return nil
}

// pragma returns the value of a pragma on the writer connection. Used by tests.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.writer.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", errors.Wrapf(err, "query %s", name)
	}
	return value, nil
}
