package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/schedstore/internal/entity"
	"github.com/roach88/schedstore/internal/storage"
)

// LockView is a lock as printed by the locks commands.
type LockView struct {
	Job       string `json:"job"`
	Token     string `json:"token"`
	User      string `json:"user"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message,omitempty"`
}

func lockView(l entity.Lock) LockView {
	return LockView{
		Job:       l.Key.String(),
		Token:     l.Token,
		User:      l.User,
		Timestamp: time.UnixMilli(l.TimestampMs).UTC().Format(time.RFC3339),
		Message:   l.Message,
	}
}

// NewLocksCommand creates the locks command group.
func NewLocksCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "List or release job locks",
	}
	cmd.AddCommand(newLocksListCommand(rootOpts))
	cmd.AddCommand(newLocksRemoveCommand(rootOpts))
	return cmd
}

func newLocksListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List held locks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocksList(rootOpts, cmd)
		},
	}
}

func newLocksRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ROLE/ENVIRONMENT/NAME",
		Short: "Release the lock held on a job",
		Long: `Release the lock held on a job. The removal is logged like any other
write.

Exit codes:
  0 - Lock released
  2 - Bad job key, or no lock is held on it

Examples:
  schedstore locks remove www-data/prod/web`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocksRemove(rootOpts, cmd, args[0])
		},
	}
}

func runLocksList(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	e, err := openEnv(opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.start(ctx); err != nil {
		return err
	}

	locks, err := storage.ReadValue(ctx, e.storage, func(ctx context.Context, p storage.StoreProvider) ([]entity.Lock, error) {
		return p.Locks().FetchLocks(ctx)
	})
	if err != nil {
		return WrapExitError("failed to fetch locks", err)
	}

	views := make([]LockView, 0, len(locks))
	for _, l := range locks {
		views = append(views, lockView(l))
	}
	return formatter(opts, cmd).Success(views, renderLocks(views))
}

func renderLocks(views []LockView) string {
	if len(views) == 0 {
		return "No locks held.\n"
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tUSER\tSINCE\tTOKEN\tMESSAGE")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v.Job, v.User, v.Timestamp, v.Token, v.Message)
	}
	w.Flush()
	return b.String()
}

func runLocksRemove(opts *RootOptions, cmd *cobra.Command, arg string) error {
	ctx := cmd.Context()
	key, err := entity.ParseJobKey(arg)
	if err != nil {
		return &ExitError{Code: ExitCommandError, ErrCode: ErrCodeInvalidArgument, Message: "invalid job key", Err: err}
	}
	lockKey := entity.JobLockKey(key)

	e, err := openEnv(opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.start(ctx); err != nil {
		return err
	}

	removed, err := storage.WriteValue(ctx, e.storage, func(ctx context.Context, p storage.MutableStoreProvider) (*entity.Lock, error) {
		lock, ok, err := p.Locks().FetchLock(ctx, lockKey)
		if err != nil || !ok {
			return nil, err
		}
		return &lock, p.MutableLocks().RemoveLock(ctx, lockKey)
	})
	if err != nil {
		return WrapExitError("failed to remove lock", err)
	}
	if removed == nil {
		return NewExitError(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no lock held on %s", key))
	}

	view := lockView(*removed)
	e.logger.Info("lock removed", "job", view.Job, "token", view.Token, "user", view.User)
	text := fmt.Sprintf("%s lock on %s held by %s\n", color.GreenString("Released"), view.Job, view.User)
	return formatter(opts, cmd).Success(view, text)
}
