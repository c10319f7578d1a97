package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/roach88/schedstore/internal/entity"
	"github.com/roach88/schedstore/internal/log"
	"github.com/roach88/schedstore/internal/snapshot"
	"github.com/roach88/schedstore/internal/store"
)

// recover replaces the entity store contents with the latest snapshot plus every
// log entry after it, in one transaction. Called with writeMu held.
func (s *Storage) recover(ctx context.Context, stream log.Stream) error {
	start := time.Now()

	tx, err := s.store.BeginWrite(ctx)
	if err != nil {
		return newError(KindUnavailable, "recover", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil {
			s.logger.Warn("rollback recovery", "error", err)
		}
	}()

	if err := tx.Reset(ctx); err != nil {
		return newError(KindUnavailable, "reset entity store", err)
	}

	after := stream.Beginning()
	restored, err := s.restoreSnapshot(ctx, tx)
	if err != nil {
		return err
	}
	if restored != nil {
		// Positions at or below the snapshot would be handed out again and
		// skipped by the next replay.
		end, err := stream.End(ctx)
		if err != nil {
			return newError(KindUnavailable, "read log end", err)
		}
		if end.Less(*restored) {
			return newError(KindRecoveryCorrupt, "restore snapshot",
				errors.Newf("snapshot at %s is ahead of log end %s", restored, end))
		}
		after = *restored
	}

	replayed := 0
	last := after
	for entry, err := range stream.ReadAfter(ctx, after) {
		if err != nil {
			return newError(KindUnavailable, "replay", err)
		}
		txn, err := DecodeTransaction(entry.Contents)
		if err != nil {
			return newError(KindRecoveryCorrupt, "replay",
				errors.Wrapf(err, "entry at %s", entry.Position))
		}
		if err := apply(ctx, tx, txn); err != nil {
			return replayError("replay", errors.Wrapf(err, "entry at %s", entry.Position))
		}
		last = entry.Position
		replayed++
	}

	if err := tx.Commit(); err != nil {
		return newError(KindUnavailable, "commit recovery", err)
	}

	s.lastApplied = last
	s.writesSinceSnapshot = 0

	elapsed := time.Since(start)
	s.metrics.SetRecovery(elapsed, replayed)
	s.logger.Info("recovery complete",
		"snapshot", restored != nil,
		"replayed", replayed,
		"last_applied", last.String(),
		"duration", elapsed,
	)
	return nil
}

// restoreSnapshot loads the latest snapshot into tx and returns its position, or
// nil when there is no snapshot.
func (s *Storage) restoreSnapshot(ctx context.Context, tx *store.Tx) (*log.Position, error) {
	if s.snapshots == nil {
		return nil, nil
	}
	snap, found, err := s.snapshots.Load()
	if err != nil {
		if errors.Is(err, snapshot.ErrCorruptedSnapshot) || errors.Is(err, snapshot.ErrIncompatibleVersion) {
			return nil, newError(KindRecoveryCorrupt, "load snapshot", err)
		}
		return nil, newError(KindUnavailable, "load snapshot", err)
	}
	if !found {
		return nil, nil
	}
	pos, err := snap.LogPosition()
	if err != nil {
		return nil, newError(KindRecoveryCorrupt, "load snapshot", err)
	}
	if err := tx.Restore(ctx, snap.State); err != nil {
		return nil, replayError("restore snapshot", err)
	}
	s.logger.Info("snapshot restored",
		"id", snap.ID,
		"position", pos.String(),
		"tasks", len(snap.State.Tasks),
		"locks", len(snap.State.Locks),
		"jobs", len(snap.State.Jobs),
	)
	return &pos, nil
}

// replayError classifies a failure to apply recovered state. Data the store
// rejects is corrupt; anything else is an I/O failure.
func replayError(op string, err error) error {
	if store.IsConstraint(err) || errors.Is(err, entity.ErrInvalidJobKey) {
		return newError(KindRecoveryCorrupt, op, err)
	}
	return newError(KindUnavailable, op, err)
}
