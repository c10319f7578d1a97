// Package query defines TaskQuery, the predicate used to select scheduled tasks.
//
// A TaskQuery is a value. Builder methods return modified copies and never share
// slices with the receiver, so a query can be stored and reused freely.
//
// # Matching rules
//
// String fields (Role, Environment, JobName, Owner) match exactly when non-empty
// and are ignored when empty.
//
// Set fields (TaskIDs, Statuses, InstanceIDs, SlaveHosts, JobKeys) distinguish nil
// from empty:
//
//	nil        no constraint
//	[]         matches nothing
//	[a, b]     matches a or b
//
// Every constrained field must match (conjunction).
//
// Package querysql compiles a TaskQuery to SQL; Matches evaluates it in memory.
// The two agree on every query.
package query
