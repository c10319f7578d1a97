package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/schedstore/internal/config"
	"github.com/roach88/schedstore/internal/log"
	"github.com/roach88/schedstore/internal/log/pebblelog"
	"github.com/roach88/schedstore/internal/log/sqlitelog"
	"github.com/roach88/schedstore/internal/metrics"
	"github.com/roach88/schedstore/internal/snapshot"
	"github.com/roach88/schedstore/internal/storage"
	"github.com/roach88/schedstore/internal/store"
)

// env is everything a command needs to work on a storage directory.
type env struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	log      log.Log
	registry *prometheus.Registry
	storage  *storage.Storage
}

// openEnv loads the config and opens the entity store. The storage is created
// but not started.
func openEnv(opts *RootOptions, cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError("failed to load config", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, opts)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, WrapExitError("failed to create data directory", err)
	}
	st, err := store.Open(cfg.EntitiesPath())
	if err != nil {
		return nil, WrapExitError("failed to open entity store", err)
	}

	l := openLog(cfg)
	reg := prometheus.NewRegistry()
	s := storage.New(l, st,
		storage.WithLogger(logger),
		storage.WithMetrics(metrics.NewCollector(reg)),
		storage.WithSnapshots(snapshot.NewManager(cfg.SnapshotPath())),
		storage.WithSnapshotEvery(cfg.Snapshot.EveryWrites),
	)
	logger.Debug("environment opened",
		"data_dir", cfg.DataDir,
		"log_backend", cfg.Log.Backend,
		"log_path", cfg.LogPath(),
		"entities", cfg.EntitiesPath(),
	)
	return &env{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		log:      l,
		registry: reg,
		storage:  s,
	}, nil
}

func openLog(cfg config.Config) log.Log {
	switch cfg.Log.Backend {
	case config.BackendPebble:
		return pebblelog.New(cfg.LogPath(), nil)
	default:
		return sqlitelog.New(cfg.LogPath())
	}
}

// start runs recovery.
func (e *env) start(ctx context.Context) error {
	if err := e.storage.Start(ctx); err != nil {
		return WrapExitError("failed to start storage", err)
	}
	return nil
}

func (e *env) Close() {
	if err := e.storage.Stop(); err != nil {
		e.logger.Warn("stop storage", "error", err)
	}
	if err := e.store.Close(); err != nil {
		e.logger.Warn("close entity store", "error", err)
	}
}

// newLogger builds the process logger. --verbose forces debug level; JSON
// output format selects the JSON handler.
func newLogger(w io.Writer, level string, opts *RootOptions) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if opts.Verbose {
		lvl = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	if opts.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
