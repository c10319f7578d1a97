package storage

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/roach88/schedstore/internal/snapshot"
)

// Snapshot persists the current entity state at the last applied position and
// then truncates the log up to that position. Writes wait until it finishes.
func (s *Storage) Snapshot(ctx context.Context) (snapshot.Snapshot, error) {
	if s.snapshots == nil {
		return snapshot.Snapshot{}, errors.WithStack(ErrNoSnapshots)
	}
	if err := s.available("snapshot"); err != nil {
		return snapshot.Snapshot{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.available("snapshot"); err != nil {
		return snapshot.Snapshot{}, err
	}
	return s.snapshotLocked(ctx)
}

// snapshotLocked takes a snapshot. Called with writeMu held, so no write is in
// flight and the store reflects exactly lastApplied.
func (s *Storage) snapshotLocked(ctx context.Context) (snapshot.Snapshot, error) {
	tx, err := s.store.BeginRead(ctx)
	if err != nil {
		return snapshot.Snapshot{}, newError(KindUnavailable, "snapshot", err)
	}
	state, err := tx.Dump(ctx)
	if rbErr := tx.Rollback(); rbErr != nil {
		s.logger.Warn("release snapshot transaction", "error", rbErr)
	}
	if err != nil {
		return snapshot.Snapshot{}, newError(KindUnavailable, "dump state", err)
	}

	pos := s.lastApplied
	snap, err := s.snapshots.Write(pos, s.clock.NowMs(), state)
	if err != nil {
		return snapshot.Snapshot{}, newError(KindUnavailable, "write snapshot", err)
	}
	s.writesSinceSnapshot = 0

	// A failed truncation leaves redundant entries; the snapshot stays valid.
	if !pos.IsBeginning() {
		if err := s.stream.TruncateTo(ctx, pos); err != nil {
			return snap, newError(KindUnavailable, "truncate log", err)
		}
	}
	retained, err := s.stream.Size(ctx)
	if err != nil {
		return snap, newError(KindUnavailable, "log size", err)
	}
	s.metrics.RecordSnapshot(retained)
	s.logger.Info("snapshot taken",
		"id", snap.ID,
		"position", pos.String(),
		"tasks", len(state.Tasks),
		"retained_entries", retained,
	)
	return snap, nil
}

func (s *Storage) maybeSnapshot(ctx context.Context) {
	if s.snapshots == nil || s.snapshotEvery <= 0 || s.writesSinceSnapshot < s.snapshotEvery {
		return
	}
	if _, err := s.snapshotLocked(ctx); err != nil {
		s.logger.Warn("automatic snapshot failed", "error", err)
	}
}
