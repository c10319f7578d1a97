// Package querysql compiles task queries to parameterized SQLite statements over
// the entity schema in package store.
package querysql

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/schedstore/internal/entity"
	"github.com/roach88/schedstore/internal/query"
)

// Projection selects the columns a compiled query returns.
type Projection int

const (
	// TaskData returns the JSON task payload.
	TaskData Projection = iota
	// TaskID returns task ids only.
	TaskID
)

const (
	alwaysTrue  = "1 = 1"
	alwaysFalse = "0 = 1"

	// Every statement is ordered by task id so results are deterministic.
	orderBy = " ORDER BY t.id ASC COLLATE BINARY"
)

// Compile converts q to a SELECT over tasks joined with their job keys.
// Values are always bound as parameters, never interpolated.
func Compile(q query.TaskQuery, p Projection) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, errors.Wrap(err, "compile task query")
	}

	var column string
	switch p {
	case TaskData:
		column = "t.data"
	case TaskID:
		column = "t.id"
	default:
		return "", nil, errors.Newf("unsupported projection %d", p)
	}

	where, params := compileWhere(q)
	sql := "SELECT " + column + " FROM tasks t JOIN job_keys k ON k.id = t.job_key_id"
	if where != "" {
		sql += " WHERE " + where
	}
	return sql + orderBy, params, nil
}

// compileWhere returns the conjunction of q's constrained fields, or "" when q
// is unscoped.
func compileWhere(q query.TaskQuery) (string, []any) {
	if q.IsEmptySet() {
		return alwaysFalse, nil
	}

	var (
		parts  []string
		params []any
	)
	add := func(sql string, args ...any) {
		parts = append(parts, sql)
		params = append(params, args...)
	}
	addAll := func(sql string, args []any) {
		add(sql, args...)
	}

	if q.Role != "" {
		add("k.role = ?", q.Role)
	}
	if q.Environment != "" {
		add("k.environment = ?", q.Environment)
	}
	if q.JobName != "" {
		add("k.name = ?", q.JobName)
	}
	if q.Owner != "" {
		add("t.owner_user = ?", q.Owner)
	}
	if q.TaskIDs != nil {
		addAll(in("t.id", sorted(q.TaskIDs)))
	}
	if q.Statuses != nil {
		addAll(in("t.status", sortedStrings(q.Statuses)))
	}
	if q.InstanceIDs != nil {
		addAll(in("t.instance_id", sorted(q.InstanceIDs)))
	}
	if q.SlaveHosts != nil {
		addAll(in("t.slave_host", sorted(q.SlaveHosts)))
	}
	if q.JobKeys != nil {
		addAll(jobKeysIn(q.JobKeys))
	}
	return strings.Join(parts, " AND "), params
}

// in compiles "column IN (?, ...)". values is non-empty.
func in[T any](column string, values []T) (string, []any) {
	params := make([]any, len(values))
	for i, v := range values {
		params[i] = v
	}
	placeholders := strings.Repeat("?, ", len(values))
	return fmt.Sprintf("%s IN (%s)", column, placeholders[:len(placeholders)-2]), params
}

// jobKeysIn compiles a disjunction of exact job key matches.
func jobKeysIn(keys []entity.JobKey) (string, []any) {
	keys = slices.Clone(keys)
	slices.SortFunc(keys, func(a, b entity.JobKey) int {
		return strings.Compare(a.String(), b.String())
	})
	keys = slices.Compact(keys)

	clauses := make([]string, len(keys))
	params := make([]any, 0, 3*len(keys))
	for i, k := range keys {
		clauses[i] = "(k.role = ? AND k.environment = ? AND k.name = ?)"
		params = append(params, k.Role, k.Environment, k.Name)
	}
	if len(clauses) == 1 {
		return clauses[0], params
	}
	return "(" + strings.Join(clauses, " OR ") + ")", params
}

// sorted returns a sorted, de-duplicated copy so equal queries compile to equal SQL.
func sorted[T int32 | string](values []T) []T {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

func sortedStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return sorted(out)
}
