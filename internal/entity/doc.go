// Package entity provides the value types persisted by the scheduler state layer.
//
// This package contains type definitions and pure helpers only. All other internal
// packages import entity; entity imports nothing internal.
//
// Key design constraints:
//   - Values are exchanged by copy. Every type with reference fields has a Clone
//     method, and stores never hand out a value that aliases their own state.
//   - Job key components are NFC normalized so that equal-looking keys compare equal.
//   - All JSON tags use snake_case; the JSON form is the payload stored on disk and in
//     the log, so field renames are schema changes.
package entity
