package entity

import "sort"

// ScheduleStatus is the lifecycle state of a task.
type ScheduleStatus string

const (
	StatusInit       ScheduleStatus = "INIT"
	StatusThrottled  ScheduleStatus = "THROTTLED"
	StatusPending    ScheduleStatus = "PENDING"
	StatusAssigned   ScheduleStatus = "ASSIGNED"
	StatusStarting   ScheduleStatus = "STARTING"
	StatusRunning    ScheduleStatus = "RUNNING"
	StatusPreempting ScheduleStatus = "PREEMPTING"
	StatusRestarting ScheduleStatus = "RESTARTING"
	StatusDraining   ScheduleStatus = "DRAINING"
	StatusKilling    ScheduleStatus = "KILLING"
	StatusFinished   ScheduleStatus = "FINISHED"
	StatusFailed     ScheduleStatus = "FAILED"
	StatusKilled     ScheduleStatus = "KILLED"
	StatusLost       ScheduleStatus = "LOST"
)

// TerminalStatuses are the statuses a task never leaves.
var TerminalStatuses = []ScheduleStatus{
	StatusFinished,
	StatusFailed,
	StatusKilled,
	StatusLost,
}

// ActiveStatuses are all statuses that are not terminal.
var ActiveStatuses = []ScheduleStatus{
	StatusInit,
	StatusThrottled,
	StatusPending,
	StatusAssigned,
	StatusStarting,
	StatusRunning,
	StatusPreempting,
	StatusRestarting,
	StatusDraining,
	StatusKilling,
}

// IsTerminal reports whether s is a terminal status.
func (s ScheduleStatus) IsTerminal() bool {
	for _, t := range TerminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// Metadata is a free-form key/value pair attached to a task configuration.
type Metadata struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// TaskConfig describes what a task runs and what it needs.
type TaskConfig struct {
	Job             JobKey     `json:"job"`
	Owner           Identity   `json:"owner"`
	IsService       bool       `json:"is_service"`
	Production      bool       `json:"production"`
	Priority        int32      `json:"priority"`
	MaxTaskFailures int32      `json:"max_task_failures"`
	NumCPUs         float64    `json:"num_cpus"`
	RAMMB           int64      `json:"ram_mb"`
	DiskMB          int64      `json:"disk_mb"`
	ContactEmail    string     `json:"contact_email,omitempty"`
	ExecutorName    string     `json:"executor_name,omitempty"`
	ExecutorData    string     `json:"executor_data,omitempty"`
	Metadata        []Metadata `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the configuration.
func (c TaskConfig) Clone() TaskConfig {
	if c.Metadata != nil {
		c.Metadata = append([]Metadata(nil), c.Metadata...)
	}
	return c
}

// AssignedTask is a task configuration bound to an instance and, once scheduled, a host.
type AssignedTask struct {
	TaskID        string           `json:"task_id"`
	SlaveID       string           `json:"slave_id,omitempty"`
	SlaveHost     string           `json:"slave_host,omitempty"`
	InstanceID    int32            `json:"instance_id"`
	Task          TaskConfig       `json:"task"`
	AssignedPorts map[string]int32 `json:"assigned_ports,omitempty"`
}

// Clone returns a deep copy of the assigned task.
func (a AssignedTask) Clone() AssignedTask {
	a.Task = a.Task.Clone()
	if a.AssignedPorts != nil {
		ports := make(map[string]int32, len(a.AssignedPorts))
		for name, port := range a.AssignedPorts {
			ports[name] = port
		}
		a.AssignedPorts = ports
	}
	return a
}

// TaskEvent records a status transition.
type TaskEvent struct {
	TimestampMs int64          `json:"timestamp_ms"`
	Status      ScheduleStatus `json:"status"`
	Message     string         `json:"message,omitempty"`
	Scheduler   string         `json:"scheduler,omitempty"`
}

// ScheduledTask is the scheduler's record of a single task.
type ScheduledTask struct {
	AssignedTask AssignedTask   `json:"assigned_task"`
	Status       ScheduleStatus `json:"status"`
	FailureCount int32          `json:"failure_count"`
	TaskEvents   []TaskEvent    `json:"task_events,omitempty"`
	AncestorID   string         `json:"ancestor_id,omitempty"`
}

// ID returns the task id.
func (t ScheduledTask) ID() string {
	return t.AssignedTask.TaskID
}

// JobKey returns the key of the job the task belongs to.
func (t ScheduledTask) JobKey() JobKey {
	return t.AssignedTask.Task.Job
}

// Clone returns a deep copy of the task.
func (t ScheduledTask) Clone() ScheduledTask {
	t.AssignedTask = t.AssignedTask.Clone()
	if t.TaskEvents != nil {
		t.TaskEvents = append([]TaskEvent(nil), t.TaskEvents...)
	}
	return t
}

// CloneTasks deep copies a slice of tasks.
func CloneTasks(tasks []ScheduledTask) []ScheduledTask {
	if tasks == nil {
		return nil
	}
	out := make([]ScheduledTask, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// TaskIDs returns the sorted, de-duplicated ids of tasks.
func TaskIDs(tasks []ScheduledTask) []string {
	seen := make(map[string]bool, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if seen[t.ID()] {
			continue
		}
		seen[t.ID()] = true
		ids = append(ids, t.ID())
	}
	sort.Strings(ids)
	return ids
}
