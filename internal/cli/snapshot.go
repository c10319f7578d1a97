package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// SnapshotResult describes a snapshot written by the snapshot command.
type SnapshotResult struct {
	ID              string `json:"id"`
	Path            string `json:"path"`
	Position        string `json:"position"`
	TakenAtMs       int64  `json:"taken_at_ms"`
	Tasks           int    `json:"tasks"`
	Locks           int    `json:"locks"`
	Jobs            int    `json:"jobs"`
	RetainedEntries int    `json:"retained_entries"`
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Snapshot the entity store and truncate the log",
		Long: `Recover the store, write a snapshot of it at the last applied log position,
then truncate every log entry the snapshot covers.

Examples:
  schedstore snapshot --config schedstore.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(rootOpts, cmd)
		},
	}
}

func runSnapshot(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	e, err := openEnv(opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.start(ctx); err != nil {
		return err
	}
	snap, err := e.storage.Snapshot(ctx)
	if err != nil {
		return WrapExitError("failed to take snapshot", err)
	}
	pos, err := snap.LogPosition()
	if err != nil {
		return WrapExitError("failed to read snapshot position", err)
	}
	retained, err := e.storage.LogSize(ctx)
	if err != nil {
		return WrapExitError("failed to read log size", err)
	}

	result := SnapshotResult{
		ID:              snap.ID,
		Path:            e.cfg.SnapshotPath(),
		Position:        pos.String(),
		TakenAtMs:       snap.TakenAtMs,
		Tasks:           len(snap.State.Tasks),
		Locks:           len(snap.State.Locks),
		Jobs:            len(snap.State.Jobs),
		RetainedEntries: retained,
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s at position %s\n", color.GreenString("Snapshot"), result.ID, result.Position)
	fmt.Fprintf(&b, "  path: %s\n", result.Path)
	writeSummary(&b, StateSummary{Tasks: result.Tasks, Locks: result.Locks, Jobs: result.Jobs})
	fmt.Fprintf(&b, "  log entries retained: %d\n", result.RetainedEntries)
	return formatter(opts, cmd).Success(result, b.String())
}
