package entity

import "github.com/google/uuid"

// LockKey identifies the object a lock guards. Only job locks exist today.
type LockKey struct {
	Job JobKey `json:"job"`
}

// JobLockKey returns the lock key guarding a job.
func JobLockKey(job JobKey) LockKey {
	return LockKey{Job: job}
}

// String returns a readable form of the key.
func (k LockKey) String() string {
	return "job:" + k.Job.String()
}

// Lock is an administrative lock held on a key, typically for the duration of a
// job update.
type Lock struct {
	Key         LockKey `json:"key"`
	Token       string  `json:"token"`
	User        string  `json:"user"`
	TimestampMs int64   `json:"timestamp_ms"`
	Message     string  `json:"message,omitempty"`
}

// NewLockToken returns a fresh random lock token.
func NewLockToken() string {
	return uuid.NewString()
}
