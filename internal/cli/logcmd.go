package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/schedstore/internal/log"
	"github.com/roach88/schedstore/internal/storage"
)

// LogOptions holds flags for the log dump command.
type LogOptions struct {
	*RootOptions
	After uint64
	Limit int
}

// LogEntry is one decoded log entry.
type LogEntry struct {
	Position uint64   `json:"position"`
	Bytes    int      `json:"bytes"`
	Ops      []string `json:"ops,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// LogDump is the result of the log dump command.
type LogDump struct {
	Entries []LogEntry `json:"entries"`
	End     uint64     `json:"end"`
}

// NewLogCommand creates the log command group.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect the replicated log",
	}
	cmd.AddCommand(newLogDumpCommand(rootOpts))
	return cmd
}

func newLogDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print log entries and the operations they carry",
		Long: `Print retained log entries in position order. Entries that cannot be
decoded are reported rather than skipped.

The storage is not started, so the entity store is left untouched.

Examples:
  schedstore log dump
  schedstore log dump --after 120 --limit 10 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogDump(opts, cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.After, "after", 0, "only entries after this position")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum entries to print (0 = all)")

	return cmd
}

func runLogDump(opts *LogOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	stream, err := e.log.Open(ctx)
	if err != nil {
		return WrapExitError("failed to open log", err)
	}
	defer stream.Close()

	dump := LogDump{Entries: []LogEntry{}}
	for entry, err := range stream.ReadAfter(ctx, log.At(opts.After)) {
		if err != nil {
			return WrapExitError("failed to read log", err)
		}
		if opts.Limit > 0 && len(dump.Entries) == opts.Limit {
			break
		}
		dump.Entries = append(dump.Entries, describeEntry(entry))
	}
	end, err := stream.End(ctx)
	if err != nil {
		return WrapExitError("failed to read log end", err)
	}
	dump.End = end.Seq()

	var b strings.Builder
	if len(dump.Entries) == 0 {
		fmt.Fprintln(&b, "No log entries.")
	}
	for _, entry := range dump.Entries {
		if entry.Error != "" {
			fmt.Fprintf(&b, "%8d %6dB %s\n", entry.Position, entry.Bytes, color.RedString("corrupt: %s", entry.Error))
			continue
		}
		fmt.Fprintf(&b, "%8d %6dB %s\n", entry.Position, entry.Bytes, strings.Join(entry.Ops, ", "))
	}
	return formatter(opts.RootOptions, cmd).Success(dump, b.String())
}

func describeEntry(entry log.Entry) LogEntry {
	out := LogEntry{Position: entry.Position.Seq(), Bytes: len(entry.Contents)}
	txn, err := storage.DecodeTransaction(entry.Contents)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	for _, op := range txn.Ops {
		out.Ops = append(out.Ops, string(op.Kind))
	}
	return out
}
