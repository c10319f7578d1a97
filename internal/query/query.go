package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/schedstore/internal/entity"
)

// ErrInvalidQuery is returned by Validate.
var ErrInvalidQuery = errors.New("invalid task query")

// TaskQuery selects scheduled tasks.
type TaskQuery struct {
	Role        string                  `json:"role,omitempty"`
	Environment string                  `json:"environment,omitempty"`
	JobName     string                  `json:"job_name,omitempty"`
	Owner       string                  `json:"owner,omitempty"`
	TaskIDs     []string                `json:"task_ids"`
	Statuses    []entity.ScheduleStatus `json:"statuses"`
	InstanceIDs []int32                 `json:"instance_ids"`
	SlaveHosts  []string                `json:"slave_hosts"`
	JobKeys     []entity.JobKey         `json:"job_keys"`
}

// Unscoped matches every task.
func Unscoped() TaskQuery {
	return TaskQuery{}
}

// TaskScoped matches the tasks with the given ids.
func TaskScoped(ids ...string) TaskQuery {
	return TaskQuery{TaskIDs: nonNil(ids)}
}

// JobScoped matches the tasks of a single job.
func JobScoped(key entity.JobKey) TaskQuery {
	return TaskQuery{Role: key.Role, Environment: key.Environment, JobName: key.Name}
}

// JobsScoped matches the tasks of any of the given jobs.
func JobsScoped(keys ...entity.JobKey) TaskQuery {
	return TaskQuery{JobKeys: nonNil(keys)}
}

// RoleScoped matches every task run by role.
func RoleScoped(role string) TaskQuery {
	return TaskQuery{Role: role}
}

// InstanceScoped matches the given instances of a job.
func InstanceScoped(key entity.JobKey, instances ...int32) TaskQuery {
	return JobScoped(key).ByInstances(instances...)
}

// SlaveScoped matches tasks assigned to any of the given hosts.
func SlaveScoped(hosts ...string) TaskQuery {
	return TaskQuery{SlaveHosts: nonNil(hosts)}
}

// ByStatus restricts q to tasks in one of statuses.
func (q TaskQuery) ByStatus(statuses ...entity.ScheduleStatus) TaskQuery {
	q = q.clone()
	q.Statuses = nonNil(statuses)
	return q
}

// ByInstances restricts q to the given instance ids.
func (q TaskQuery) ByInstances(instances ...int32) TaskQuery {
	q = q.clone()
	q.InstanceIDs = nonNil(instances)
	return q
}

// ByOwner restricts q to tasks owned by user.
func (q TaskQuery) ByOwner(user string) TaskQuery {
	q = q.clone()
	q.Owner = user
	return q
}

// ByTaskIDs restricts q to the given task ids.
func (q TaskQuery) ByTaskIDs(ids ...string) TaskQuery {
	q = q.clone()
	q.TaskIDs = nonNil(ids)
	return q
}

// Active restricts q to tasks in a non-terminal status.
func (q TaskQuery) Active() TaskQuery {
	return q.ByStatus(entity.ActiveStatuses...)
}

// Terminal restricts q to tasks in a terminal status.
func (q TaskQuery) Terminal() TaskQuery {
	return q.ByStatus(entity.TerminalStatuses...)
}

// IsEmptySet reports whether some set field is constrained to the empty set, in
// which case q matches nothing.
func (q TaskQuery) IsEmptySet() bool {
	return isEmpty(q.TaskIDs) || isEmpty(q.Statuses) || isEmpty(q.InstanceIDs) ||
		isEmpty(q.SlaveHosts) || isEmpty(q.JobKeys)
}

// Validate rejects queries that cannot match a well formed task: unknown
// statuses and malformed job keys.
func (q TaskQuery) Validate() error {
	for _, s := range q.Statuses {
		if !slices.Contains(entity.ActiveStatuses, s) && !s.IsTerminal() {
			return errors.Wrapf(ErrInvalidQuery, "unknown status %q", s)
		}
	}
	for _, k := range q.JobKeys {
		if err := k.Validate(); err != nil {
			return errors.Mark(errors.Wrap(err, "job key"), ErrInvalidQuery)
		}
	}
	return nil
}

// Matches reports whether task satisfies q.
func (q TaskQuery) Matches(task entity.ScheduledTask) bool {
	key := task.JobKey()
	switch {
	case q.Role != "" && key.Role != q.Role:
		return false
	case q.Environment != "" && key.Environment != q.Environment:
		return false
	case q.JobName != "" && key.Name != q.JobName:
		return false
	case q.Owner != "" && task.AssignedTask.Task.Owner.User != q.Owner:
		return false
	}
	return matchSet(q.TaskIDs, task.ID()) &&
		matchSet(q.Statuses, task.Status) &&
		matchSet(q.InstanceIDs, task.AssignedTask.InstanceID) &&
		matchSet(q.SlaveHosts, task.AssignedTask.SlaveHost) &&
		matchSet(q.JobKeys, key)
}

// String renders q for logs and CLI output.
func (q TaskQuery) String() string {
	var parts []string
	add := func(name string, v any) {
		parts = append(parts, fmt.Sprintf("%s=%v", name, v))
	}
	if q.Role != "" {
		add("role", q.Role)
	}
	if q.Environment != "" {
		add("environment", q.Environment)
	}
	if q.JobName != "" {
		add("job", q.JobName)
	}
	if q.Owner != "" {
		add("owner", q.Owner)
	}
	if q.TaskIDs != nil {
		add("ids", q.TaskIDs)
	}
	if q.Statuses != nil {
		add("statuses", q.Statuses)
	}
	if q.InstanceIDs != nil {
		add("instances", q.InstanceIDs)
	}
	if q.SlaveHosts != nil {
		add("hosts", q.SlaveHosts)
	}
	if q.JobKeys != nil {
		add("jobs", q.JobKeys)
	}
	if len(parts) == 0 {
		return "TaskQuery{*}"
	}
	return "TaskQuery{" + strings.Join(parts, " ") + "}"
}

func (q TaskQuery) clone() TaskQuery {
	q.TaskIDs = cloneSet(q.TaskIDs)
	q.Statuses = cloneSet(q.Statuses)
	q.InstanceIDs = cloneSet(q.InstanceIDs)
	q.SlaveHosts = cloneSet(q.SlaveHosts)
	q.JobKeys = cloneSet(q.JobKeys)
	return q
}

func matchSet[T comparable](set []T, v T) bool {
	return set == nil || slices.Contains(set, v)
}

func isEmpty[T any](set []T) bool {
	return set != nil && len(set) == 0
}

// cloneSet copies set, preserving the nil/empty distinction.
func cloneSet[T any](set []T) []T {
	if set == nil {
		return nil
	}
	return append(make([]T, 0, len(set)), set...)
}

// nonNil copies values into a non-nil slice: a builder called with no values
// constrains the field to the empty set.
func nonNil[T any](values []T) []T {
	return append(make([]T, 0, len(values)), values...)
}
