// Package log defines the replicated append-only log that backs scheduler storage.
//
// A Log hands out Streams. A Stream appends opaque byte entries, each assigned a
// Position that compares greater than every Position assigned before it, reads
// entries back in order, and drops prefixes once a snapshot has made them redundant.
//
// # Positions
//
// Positions are opaque outside this package. Backends create them with At and
// recover the sequence number with Seq. Positions are never reused, even after the
// entries they name are truncated away, so End keeps reporting the last assigned
// position when the log is empty.
//
// # Backends
//
//   - sqlitelog: SQLite table, durable (the default)
//   - pebblelog: Pebble LSM, durable
//   - memlog: in-process B-tree, lost on exit
//
// Every backend is checked by the conformance suite in package logtest.
package log
