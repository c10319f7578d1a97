// Package storage coordinates the replicated log and the entity store.
//
// All access goes through work units. A read unit sees a consistent snapshot of
// locally committed state. A write unit runs inside one SQL transaction while
// every successful mutation is recorded as an Op; when the work returns nil the
// ops are appended to the log as one Transaction entry and only then is the SQL
// transaction committed. Anything else rolls the unit back, so either all of its
// mutations become visible or none do.
//
// Start rebuilds the entity store from the latest snapshot plus the log entries
// after it. Snapshot persists the current state and truncates the log prefix it
// covers.
//
// Basic usage:
//
//	s := storage.New(stream, db, storage.WithLogger(logger))
//	if err := s.Start(ctx); err != nil {
//		return err
//	}
//	defer s.Stop()
//
//	err := s.Write(ctx, func(ctx context.Context, p storage.MutableStoreProvider) error {
//		return p.MutableLocks().SaveLock(ctx, lock)
//	})
package storage
