package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/schedstore/internal/entity"
	"github.com/roach88/schedstore/internal/query"
	"github.com/roach88/schedstore/internal/storage"
)

// TasksOptions holds flags for the tasks command.
type TasksOptions struct {
	*RootOptions
	Role        string
	Environment string
	Job         string
	Owner       string
	IDs         []string
	Statuses    []string
	Instances   []int32
	Hosts       []string
	Active      bool
	Filter      string
}

// TaskView is the environment --filter expressions are evaluated against.
type TaskView struct {
	ID           string `expr:"id" json:"id"`
	Role         string `expr:"role" json:"role"`
	Environment  string `expr:"environment" json:"environment"`
	Job          string `expr:"job" json:"job"`
	Instance     int    `expr:"instance" json:"instance"`
	Status       string `expr:"status" json:"status"`
	Host         string `expr:"host" json:"host,omitempty"`
	User         string `expr:"user" json:"user"`
	Production   bool   `expr:"production" json:"production"`
	Priority     int    `expr:"priority" json:"priority"`
	FailureCount int    `expr:"failures" json:"failures"`
}

func viewOf(t entity.ScheduledTask) TaskView {
	cfg := t.AssignedTask.Task
	return TaskView{
		ID:           t.ID(),
		Role:         cfg.Job.Role,
		Environment:  cfg.Job.Environment,
		Job:          cfg.Job.Name,
		Instance:     int(t.AssignedTask.InstanceID),
		Status:       string(t.Status),
		Host:         t.AssignedTask.SlaveHost,
		User:         cfg.Owner.User,
		Production:   cfg.Production,
		Priority:     int(cfg.Priority),
		FailureCount: int(t.FailureCount),
	}
}

// NewTasksCommand creates the tasks command.
func NewTasksCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TasksOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Query stored tasks",
		Long: `List the tasks matching a query. Query flags are ANDed; list flags match
any of their values. --filter applies an expression to each result, with the
fields id, role, environment, job, instance, status, host, user, production,
priority and failures.

Examples:
  schedstore tasks --role www-data --env prod --job web
  schedstore tasks --status RUNNING --status PENDING --host host-1
  schedstore tasks --active --filter 'failures > 0 && production'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTasks(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Role, "role", "", "job role")
	cmd.Flags().StringVar(&opts.Environment, "env", "", "job environment")
	cmd.Flags().StringVar(&opts.Job, "job", "", "job name")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner user")
	cmd.Flags().StringSliceVar(&opts.IDs, "id", nil, "task id (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Statuses, "status", nil, "task status (repeatable)")
	cmd.Flags().Int32SliceVar(&opts.Instances, "instance", nil, "instance id (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Hosts, "host", nil, "slave host (repeatable)")
	cmd.Flags().BoolVar(&opts.Active, "active", false, "only non-terminal tasks")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "boolean expression over task fields")

	return cmd
}

func (o *TasksOptions) query(cmd *cobra.Command) query.TaskQuery {
	q := query.Unscoped()
	q.Role = o.Role
	q.Environment = o.Environment
	q.JobName = o.Job
	if o.Owner != "" {
		q = q.ByOwner(o.Owner)
	}
	if cmd.Flags().Changed("id") {
		q = q.ByTaskIDs(o.IDs...)
	}
	if cmd.Flags().Changed("status") {
		statuses := make([]entity.ScheduleStatus, 0, len(o.Statuses))
		for _, s := range o.Statuses {
			statuses = append(statuses, entity.ScheduleStatus(strings.ToUpper(s)))
		}
		q = q.ByStatus(statuses...)
	} else if o.Active {
		q = q.Active()
	}
	if cmd.Flags().Changed("instance") {
		q = q.ByInstances(o.Instances...)
	}
	if cmd.Flags().Changed("host") {
		q.SlaveHosts = append([]string{}, o.Hosts...)
	}
	return q
}

func compileFilter(filter string) (*vm.Program, error) {
	if filter == "" {
		return nil, nil
	}
	return expr.Compile(filter, expr.Env(TaskView{}), expr.AsBool())
}

func runTasks(opts *TasksOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	program, err := compileFilter(opts.Filter)
	if err != nil {
		return &ExitError{Code: ExitCommandError, ErrCode: ErrCodeInvalidArgument, Message: "invalid --filter", Err: err}
	}
	q := opts.query(cmd)

	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.start(ctx); err != nil {
		return err
	}

	tasks, err := storage.ReadValue(ctx, e.storage, func(ctx context.Context, p storage.StoreProvider) ([]entity.ScheduledTask, error) {
		return p.Tasks().FetchTasks(ctx, q)
	})
	if err != nil {
		return WrapExitError("failed to fetch tasks", err)
	}

	views := []TaskView{}
	for _, t := range tasks {
		view := viewOf(t)
		if program != nil {
			keep, err := expr.Run(program, view)
			if err != nil {
				return &ExitError{Code: ExitCommandError, ErrCode: ErrCodeInvalidArgument,
					Message: fmt.Sprintf("evaluate --filter on task %s", view.ID), Err: err}
			}
			if !keep.(bool) {
				continue
			}
		}
		views = append(views, view)
	}
	f := formatter(opts.RootOptions, cmd)
	f.VerboseLog("%s matched %d tasks, %d after filter", q, len(tasks), len(views))
	return f.Success(views, renderTasks(views))
}

func renderTasks(views []TaskView) string {
	if len(views) == 0 {
		return "No tasks match.\n"
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tJOB\tINSTANCE\tHOST\tSTATUS")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s/%s/%s\t%d\t%s\t%s\n",
			v.ID, v.Role, v.Environment, v.Job, v.Instance, v.Host, statusColor(v.Status))
	}
	w.Flush()
	return b.String()
}

func statusColor(status string) string {
	switch s := entity.ScheduleStatus(status); {
	case s == entity.StatusRunning || s == entity.StatusFinished:
		return color.GreenString("%s", status)
	case s.IsTerminal():
		return color.RedString("%s", status)
	default:
		return color.YellowString("%s", status)
	}
}
