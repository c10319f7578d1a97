package entity

import (
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidJobKey is returned by NewJobKey and ParseJobKey for malformed keys.
var ErrInvalidJobKey = errors.New("invalid job key")

// JobKey identifies a job by role, environment and name.
type JobKey struct {
	Role        string `json:"role"`
	Environment string `json:"environment"`
	Name        string `json:"name"`
}

// NewJobKey builds a JobKey from its components.
// Components are NFC normalized; empty components and components containing '/'
// are rejected.
func NewJobKey(role, environment, name string) (JobKey, error) {
	key := JobKey{
		Role:        norm.NFC.String(role),
		Environment: norm.NFC.String(environment),
		Name:        norm.NFC.String(name),
	}
	if err := key.Validate(); err != nil {
		return JobKey{}, err
	}
	return key, nil
}

// MustJobKey is like NewJobKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustJobKey(role, environment, name string) JobKey {
	key, err := NewJobKey(role, environment, name)
	if err != nil {
		panic(err)
	}
	return key
}

// ParseJobKey parses the "role/environment/name" form produced by String.
func ParseJobKey(s string) (JobKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return JobKey{}, errors.Wrapf(ErrInvalidJobKey, "%q: want role/environment/name", s)
	}
	return NewJobKey(parts[0], parts[1], parts[2])
}

// Validate reports whether every component is present and free of separators.
func (k JobKey) Validate() error {
	for _, part := range []struct{ name, value string }{
		{"role", k.Role},
		{"environment", k.Environment},
		{"name", k.Name},
	} {
		if part.value == "" {
			return errors.Wrapf(ErrInvalidJobKey, "empty %s", part.name)
		}
		if strings.Contains(part.value, "/") {
			return errors.Wrapf(ErrInvalidJobKey, "%s %q contains '/'", part.name, part.value)
		}
	}
	return nil
}

// String returns the key as "role/environment/name".
func (k JobKey) String() string {
	return k.Role + "/" + k.Environment + "/" + k.Name
}

// Identity is the owner of a job.
type Identity struct {
	Role string `json:"role"`
	User string `json:"user"`
}

// CronCollisionPolicy decides what happens when a cron run overlaps a previous one.
type CronCollisionPolicy string

const (
	KillExisting CronCollisionPolicy = "KILL_EXISTING"
	CancelNew    CronCollisionPolicy = "CANCEL_NEW"
	RunOverlap   CronCollisionPolicy = "RUN_OVERLAP"
)

// JobConfiguration is an accepted job, stored by the job store under the id of the
// job manager that owns it.
type JobConfiguration struct {
	Key                 JobKey              `json:"key"`
	Owner               Identity            `json:"owner"`
	CronSchedule        string              `json:"cron_schedule,omitempty"`
	CronCollisionPolicy CronCollisionPolicy `json:"cron_collision_policy,omitempty"`
	TaskConfig          TaskConfig          `json:"task_config"`
	InstanceCount       int32               `json:"instance_count"`
}

// Clone returns a deep copy of the configuration.
func (j JobConfiguration) Clone() JobConfiguration {
	j.TaskConfig = j.TaskConfig.Clone()
	return j
}
