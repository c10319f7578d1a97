package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/schedstore/internal/query"
	"github.com/roach88/schedstore/internal/storage"
)

// StateSummary counts the entities in the store.
type StateSummary struct {
	LastApplied string `json:"last_applied"`
	FrameworkID string `json:"framework_id,omitempty"`
	Tasks       int    `json:"tasks"`
	Locks       int    `json:"locks"`
	Jobs        int    `json:"jobs"`
}

// NewRecoverCommand creates the recover command.
func NewRecoverCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Rebuild the entity store from the snapshot and the log",
		Long: `Rebuild the entity store from the latest snapshot plus every log entry
after it, then report what the store holds.

Exit codes:
  0 - Recovery succeeded
  1 - The log or snapshot is unusable, or storage is unavailable
  2 - Command error (bad config, etc.)

Examples:
  schedstore recover --config schedstore.yaml
  schedstore recover --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecover(rootOpts, cmd)
		},
	}
}

func runRecover(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	e, err := openEnv(opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.start(ctx); err != nil {
		return err
	}
	summary, err := summarize(ctx, e.storage)
	if err != nil {
		return WrapExitError("failed to read state", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s at position %s\n", color.GreenString("Recovered"), summary.LastApplied)
	writeSummary(&b, summary)
	return formatter(opts, cmd).Success(summary, b.String())
}

func summarize(ctx context.Context, s *storage.Storage) (StateSummary, error) {
	summary, err := storage.ReadValue(ctx, s, func(ctx context.Context, p storage.StoreProvider) (StateSummary, error) {
		var summary StateSummary
		ids, err := p.Tasks().FetchTaskIDs(ctx, query.Unscoped())
		if err != nil {
			return summary, err
		}
		summary.Tasks = len(ids)

		locks, err := p.Locks().FetchLocks(ctx)
		if err != nil {
			return summary, err
		}
		summary.Locks = len(locks)

		managers, err := p.Jobs().FetchManagerIDs(ctx)
		if err != nil {
			return summary, err
		}
		for _, m := range managers {
			jobs, err := p.Jobs().FetchJobs(ctx, m)
			if err != nil {
				return summary, err
			}
			summary.Jobs += len(jobs)
		}

		summary.FrameworkID, _, err = p.Scheduler().FetchFrameworkID(ctx)
		return summary, err
	})
	summary.LastApplied = s.LastApplied().String()
	return summary, err
}

func writeSummary(b *strings.Builder, s StateSummary) {
	if s.FrameworkID != "" {
		fmt.Fprintf(b, "  framework id: %s\n", s.FrameworkID)
	}
	fmt.Fprintf(b, "  tasks: %d\n  locks: %d\n  jobs:  %d\n", s.Tasks, s.Locks, s.Jobs)
}
