package cli

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/roach88/schedstore/internal/metrics"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run storage and expose metrics until interrupted",
		Long: `Start storage, serve Prometheus metrics on metrics.addr and take periodic
snapshots every snapshot.interval until SIGINT or SIGTERM.

Endpoints:
  /metrics  - Prometheus metrics
  /healthz  - 200 while storage accepts work, 503 once degraded

Examples:
  schedstore serve --config schedstore.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.start(ctx); err != nil {
		return err
	}
	interval, err := e.cfg.SnapshotInterval()
	if err != nil {
		return WrapExitError("invalid snapshot interval", err)
	}

	ln, err := net.Listen("tcp", e.cfg.Metrics.Addr)
	if err != nil {
		return WrapExitError("failed to listen for metrics", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(e.registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if e.storage.Degraded() {
			http.Error(w, "storage degraded", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ln)
	}()
	e.logger.Info("serving metrics", "addr", ln.Addr().String(), "snapshot_interval", interval)

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				e.logger.Warn("metrics server shutdown", "error", err)
			}
			return nil
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return WrapExitError("metrics server failed", err)
		case <-tick:
			if _, err := e.storage.Snapshot(ctx); err != nil {
				e.logger.Error("periodic snapshot failed", "error", err)
			}
		}
	}
}
