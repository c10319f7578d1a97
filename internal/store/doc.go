// Package store is the durable representation of scheduler entities: tasks, job
// configurations, locks and the framework id, kept in SQLite.
//
// The store has no notion of the log. Package storage wraps every write
// transaction so that it commits only after its mutations are durably logged,
// and rebuilds the database from the log on startup.
//
// # Tables
//
//   - job_keys: interned (role, environment, name) triples
//   - tasks: one row per task, indexed query columns plus a JSON payload
//   - locks: at most one lock per job key (primary key on job_key_id)
//   - jobs: accepted job configurations by job key, with the owning manager id
//   - scheduler_state: a single row holding the framework id
//
// # Connections
//
// Writes go through a single connection that begins IMMEDIATE transactions, so
// there is exactly one writer. Reads use a separate pool; under WAL each read
// transaction sees the database as of its first statement and is never blocked
// by the writer.
//
// All task reads are ordered by task id (ORDER BY id ASC COLLATE BINARY), and
// list reads return empty slices rather than nil.
package store
