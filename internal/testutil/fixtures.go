// Package testutil holds deterministic helpers shared by package tests.
package testutil

import (
	"fmt"

	"github.com/roach88/schedstore/internal/entity"
)

var (
	// WebKey and BatchKey are job keys used across tests.
	WebKey   = entity.MustJobKey("www-data", "prod", "web")
	BatchKey = entity.MustJobKey("batch", "devel", "etl")
)

// TaskID returns the conventional id of an instance of key.
func TaskID(key entity.JobKey, instance int32) string {
	return fmt.Sprintf("%s-%s-%s-%d", key.Role, key.Environment, key.Name, instance)
}

// Task builds a scheduled task for instance of key.
func Task(key entity.JobKey, instance int32, status entity.ScheduleStatus) entity.ScheduledTask {
	return entity.ScheduledTask{
		AssignedTask: entity.AssignedTask{
			TaskID:     TaskID(key, instance),
			SlaveHost:  fmt.Sprintf("host-%d", instance%3),
			InstanceID: instance,
			Task:       TaskConfig(key),
		},
		Status:     status,
		TaskEvents: []entity.TaskEvent{{TimestampMs: DefaultEpochMs, Status: status}},
	}
}

// Tasks builds instances 0..n-1 of key.
func Tasks(key entity.JobKey, n int, status entity.ScheduleStatus) []entity.ScheduledTask {
	tasks := make([]entity.ScheduledTask, 0, n)
	for i := 0; i < n; i++ {
		tasks = append(tasks, Task(key, int32(i), status))
	}
	return tasks
}

// TaskConfig builds a small task configuration owned by the key's role.
func TaskConfig(key entity.JobKey) entity.TaskConfig {
	return entity.TaskConfig{
		Job:             key,
		Owner:           entity.Identity{Role: key.Role, User: key.Role + "-user"},
		MaxTaskFailures: 1,
		NumCPUs:         1,
		RAMMB:           256,
		DiskMB:          512,
	}
}

// Lock builds a lock on key.
func Lock(key entity.JobKey, token string) entity.Lock {
	return entity.Lock{
		Key:         entity.JobLockKey(key),
		Token:       token,
		User:        "testUser",
		TimestampMs: 12345,
		Message:     "test lock",
	}
}

// Job builds a job configuration for key with n instances.
func Job(key entity.JobKey, n int32) entity.JobConfiguration {
	return entity.JobConfiguration{
		Key:           key,
		Owner:         entity.Identity{Role: key.Role, User: key.Role + "-user"},
		TaskConfig:    TaskConfig(key),
		InstanceCount: n,
	}
}
