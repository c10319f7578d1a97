package storage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/roach88/schedstore/internal/log"
	"github.com/roach88/schedstore/internal/metrics"
	"github.com/roach88/schedstore/internal/snapshot"
	"github.com/roach88/schedstore/internal/store"
)

// Clock supplies wall-clock milliseconds for snapshot timestamps.
type Clock interface {
	NowMs() int64
}

type systemClock struct{}

func (systemClock) NowMs() int64 {
	return time.Now().UnixMilli()
}

// Storage runs work units against the entity store and the log.
//
// Thread-safety model:
//   - Read: any number concurrently, alongside one writer
//   - Write, Snapshot, Start, Stop: serialized on writeMu
type Storage struct {
	log           log.Log
	store         *store.Store
	logger        *slog.Logger
	metrics       *metrics.Collector
	snapshots     *snapshot.Manager
	clock         Clock
	snapshotEvery int

	running  atomic.Bool
	degraded atomic.Bool

	// Guarded by writeMu.
	writeMu             sync.Mutex
	stream              log.Stream
	lastApplied         log.Position
	writesSinceSnapshot int
}

// Option configures a Storage.
type Option func(*Storage)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Storage) {
		s.logger = logger
	}
}

// WithMetrics records work unit, log and recovery metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Storage) {
		s.metrics = c
	}
}

// WithSnapshots enables Snapshot and snapshot-based recovery.
func WithSnapshots(m *snapshot.Manager) Option {
	return func(s *Storage) {
		s.snapshots = m
	}
}

// WithClock sets the clock used to timestamp snapshots.
func WithClock(c Clock) Option {
	return func(s *Storage) {
		s.clock = c
	}
}

// WithSnapshotEvery takes a snapshot after every n logged writes. Zero disables
// automatic snapshots. Requires WithSnapshots.
func WithSnapshotEvery(n int) Option {
	return func(s *Storage) {
		s.snapshotEvery = n
	}
}

// New creates a Storage over l and st. Call Start before running work units.
func New(l log.Log, st *store.Store, opts ...Option) *Storage {
	s := &Storage{
		log:    l,
		store:  st,
		logger: slog.Default(),
		clock:  systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the log stream and rebuilds the entity store from the snapshot
// and the log. A Storage that was stopped may be started again.
func (s *Storage) Start(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.running.Load() {
		return errors.New("storage already started")
	}
	stream, err := s.log.Open(ctx)
	if err != nil {
		return newError(KindUnavailable, "open log", err)
	}
	if err := s.recover(ctx, stream); err != nil {
		if closeErr := stream.Close(); closeErr != nil {
			s.logger.Warn("close log after failed recovery", "error", closeErr)
		}
		return err
	}

	s.stream = stream
	s.degraded.Store(false)
	s.running.Store(true)
	s.logger.Info("storage started", "last_applied", s.lastApplied.String())
	return nil
}

// Stop waits for the active write to finish and closes the log stream. The
// entity store stays open; its owner closes it.
func (s *Storage) Stop() error {
	s.running.Store(false)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.stream == nil {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	if err != nil {
		return newError(KindUnavailable, "close log", err)
	}
	s.logger.Info("storage stopped", "last_applied", s.lastApplied.String())
	return nil
}

// LastApplied returns the position of the last log entry reflected in the
// entity store.
func (s *Storage) LastApplied() log.Position {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.lastApplied
}

// LogSize returns the number of entries retained in the log.
func (s *Storage) LogSize(ctx context.Context) (int, error) {
	if err := s.available("log size"); err != nil {
		return 0, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.stream == nil {
		return 0, newError(KindUnavailable, "log size", ErrNotStarted)
	}
	n, err := s.stream.Size(ctx)
	if err != nil {
		return 0, newError(KindUnavailable, "log size", err)
	}
	return n, nil
}

// Degraded reports whether a commit failed after its entry reached the log.
func (s *Storage) Degraded() bool {
	return s.degraded.Load()
}

func (s *Storage) available(op string) error {
	if !s.running.Load() {
		return newError(KindUnavailable, op, ErrNotStarted)
	}
	if s.degraded.Load() {
		return newError(KindUnavailable, op, ErrDegraded)
	}
	return nil
}

// Read runs work against a consistent view of committed state. Inside another
// work unit it reuses that unit.
func (s *Storage) Read(ctx context.Context, work func(context.Context, StoreProvider) error) error {
	if u := unitFrom(ctx); u != nil && !u.closed.Load() {
		return work(ctx, readProvider{u})
	}
	if err := s.available("read"); err != nil {
		return err
	}

	tx, err := s.store.BeginRead(ctx)
	if err != nil {
		return classify("begin read", err)
	}
	u := &unit{tx: tx, logger: s.logger}
	defer func() {
		u.close()
		if err := tx.Rollback(); err != nil {
			s.logger.Warn("release read transaction", "error", err)
		}
	}()

	s.metrics.RecordRead()
	return work(withUnit(ctx, u), readProvider{u})
}

// Write runs work in a transaction. If work returns nil and no store operation
// failed, its mutations are logged and committed together; otherwise none of
// them take effect and the error is returned.
//
// Inside another write unit, Write joins it: the outer unit commits or aborts
// everything. Inside a read unit, Write fails with ErrNestedWrite.
func (s *Storage) Write(ctx context.Context, work func(context.Context, MutableStoreProvider) error) error {
	if u := unitFrom(ctx); u != nil && !u.closed.Load() {
		if !u.writable {
			return errors.WithStack(ErrNestedWrite)
		}
		if err := work(ctx, u); err != nil {
			u.fail(err)
			return err
		}
		return nil
	}
	if err := s.available("write"); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Stop may have run while we waited.
	if err := s.available("write"); err != nil {
		return err
	}
	return s.write(ctx, work)
}

// write runs one top-level write unit. Called with writeMu held.
func (s *Storage) write(ctx context.Context, work func(context.Context, MutableStoreProvider) error) error {
	// Once begun, the unit always reaches commit or rollback.
	wctx := context.WithoutCancel(ctx)
	begun := time.Now()

	tx, err := s.store.BeginWrite(wctx)
	if err != nil {
		err = classify("begin write", err)
		s.metrics.RecordAbort(abortKind(err))
		return err
	}
	abort := func(err error) error {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		s.metrics.RecordAbort(abortKind(err))
		return err
	}

	u := &unit{tx: tx, writable: true, logger: s.logger}
	returned := false
	defer func() {
		if returned {
			return
		}
		// work panicked. Release the writer connection before the panic
		// reaches the caller.
		u.close()
		if err := tx.Rollback(); err != nil {
			s.logger.Error("rollback failed", "error", err)
		}
		s.metrics.RecordAbort("panic")
	}()
	err = work(withUnit(ctx, u), u)
	returned = true
	u.close()

	ops, failure := u.recorded()
	if err == nil {
		err = failure
	}
	if err != nil {
		return abort(err)
	}
	if len(ops) == 0 {
		if err := tx.Rollback(); err != nil {
			s.logger.Warn("release empty write transaction", "error", err)
		}
		return nil
	}

	data, err := encodeTransaction(ops)
	if err != nil {
		return abort(newError(KindUnavailable, "encode transaction", err))
	}
	start := time.Now()
	pos, err := s.stream.Append(wctx, data)
	if err != nil {
		return abort(newError(KindUnavailable, "append", err))
	}
	s.metrics.RecordAppend(len(data), time.Since(start))

	if err := tx.Commit(); err != nil {
		// The entry is durable but the entity store does not reflect it. Only
		// recovery can reconcile the two.
		s.degraded.Store(true)
		s.logger.Error("commit failed after log append, storage degraded",
			"position", pos.String(),
			"error", err,
		)
		s.metrics.RecordAbort(string(KindUnavailable))
		return newError(KindUnavailable, "commit", err)
	}
	s.metrics.RecordCommit(time.Since(begun))

	s.lastApplied = pos
	s.writesSinceSnapshot++
	s.logger.Debug("write committed", "position", pos.String(), "ops", len(ops))

	s.maybeSnapshot(wctx)
	return nil
}

// abortKind labels an aborted write in metrics. Errors returned by the caller's
// own work are labelled "work".
func abortKind(err error) string {
	if kind, ok := kindOf(err); ok {
		return string(kind)
	}
	return "work"
}

// ReadValue runs a read unit that produces a value.
func ReadValue[R any](ctx context.Context, s *Storage, work func(context.Context, StoreProvider) (R, error)) (R, error) {
	var out R
	err := s.Read(ctx, func(ctx context.Context, p StoreProvider) error {
		var err error
		out, err = work(ctx, p)
		return err
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}

// WriteValue runs a write unit that produces a value. The value is returned
// only if the unit commits.
func WriteValue[R any](ctx context.Context, s *Storage, work func(context.Context, MutableStoreProvider) (R, error)) (R, error) {
	var out R
	err := s.Write(ctx, func(ctx context.Context, p MutableStoreProvider) error {
		var err error
		out, err = work(ctx, p)
		return err
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}
