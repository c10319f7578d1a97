// Package snapshot persists full copies of the entity store next to the log.
//
// A snapshot records the log position its state reflects. Once a snapshot is
// durable, log entries up to that position are redundant and may be truncated.
package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/roach88/schedstore/internal/entity"
	"github.com/roach88/schedstore/internal/log"
	"github.com/roach88/schedstore/internal/store"
)

// SchemaVersion is the snapshot format written by this package.
const SchemaVersion = 1

var (
	ErrCorruptedSnapshot   = errors.New("snapshot file is corrupted")
	ErrIncompatibleVersion = errors.New("snapshot schema version is incompatible")
)

// Snapshot is the entity store state as of a log position.
type Snapshot struct {
	ID            string      `json:"id"`
	Position      []byte      `json:"position"`
	TakenAtMs     int64       `json:"taken_at_ms"`
	SchemaVersion int         `json:"schema_version"`
	Digest        string      `json:"digest"`
	State         store.State `json:"state"`
}

// LogPosition decodes the position the snapshot was taken at.
func (s Snapshot) LogPosition() (log.Position, error) {
	return log.ParsePosition(s.Position)
}

// Manager reads and writes the snapshot file.
type Manager struct {
	path string
	mu   sync.Mutex
}

// NewManager returns a manager for the snapshot file at path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the snapshot file path.
func (m *Manager) Path() string {
	return m.path
}

// Write atomically replaces the snapshot file with a snapshot of state at pos.
//
// The file is written to a temporary sibling, synced, then renamed over the old
// snapshot, so a crash leaves either the old or the new snapshot intact.
func (m *Manager) Write(pos log.Position, takenAtMs int64, state store.State) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := normalize(state)
	if err != nil {
		return Snapshot{}, err
	}
	digest, err := entity.Digest(entity.DomainSnapshot, state)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "digest snapshot")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "snapshot id")
	}
	snap := Snapshot{
		ID:            id.String(),
		Position:      pos.Identity(),
		TakenAtMs:     takenAtMs,
		SchemaVersion: SchemaVersion,
		Digest:        digest,
		State:         state,
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "marshal snapshot")
	}
	if err := writeFileSync(m.path, data); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// normalize round-trips state through JSON so the digest is computed over
// exactly what Load will decode.
func normalize(state store.State) (store.State, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return store.State{}, errors.Wrap(err, "marshal snapshot state")
	}
	var out store.State
	if err := json.Unmarshal(data, &out); err != nil {
		return store.State{}, errors.Wrap(err, "unmarshal snapshot state")
	}
	return out, nil
}

func writeFileSync(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create snapshot dir")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp snapshot")
	}
	tmpPath := tmp.Name()
	cleanup := func() { os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return errors.Wrap(err, "write temp snapshot")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return errors.Wrap(err, "sync temp snapshot")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.Wrap(err, "close temp snapshot")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return errors.Wrap(err, "rename snapshot")
	}

	// Persist the rename itself.
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrap(err, "open snapshot dir")
	}
	defer d.Close()
	return errors.Wrap(d.Sync(), "sync snapshot dir")
}

// Load reads the snapshot file. found is false when no snapshot has been
// written yet.
func (m *Manager) Load() (snap Snapshot, found bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, errors.Wrap(err, "read snapshot")
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, errors.Mark(errors.Wrap(err, "decode snapshot"), ErrCorruptedSnapshot)
	}
	if snap.SchemaVersion != SchemaVersion {
		return Snapshot{}, false, errors.Wrapf(ErrIncompatibleVersion,
			"got %d, want %d", snap.SchemaVersion, SchemaVersion)
	}
	if _, err := snap.LogPosition(); err != nil {
		return Snapshot{}, false, errors.Mark(err, ErrCorruptedSnapshot)
	}

	digest, err := entity.Digest(entity.DomainSnapshot, snap.State)
	if err != nil {
		return Snapshot{}, false, errors.Wrap(err, "digest snapshot")
	}
	if digest != snap.Digest {
		return Snapshot{}, false, errors.Wrapf(ErrCorruptedSnapshot,
			"digest %s does not match contents %s", snap.Digest, digest)
	}
	return snap, true, nil
}

// Exists reports whether a snapshot file is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}
