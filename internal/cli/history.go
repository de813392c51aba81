package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vistamin/starrand/internal/history"
	"github.com/vistamin/starrand/internal/record"
)

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and maintain the draw history",
	}

	cmd.AddCommand(newHistoryListCommand(rootOpts))
	cmd.AddCommand(newHistoryShowCommand(rootOpts))
	cmd.AddCommand(newHistoryDeleteCommand(rootOpts))
	cmd.AddCommand(newHistoryClearCommand(rootOpts))
	cmd.AddCommand(newHistoryRebuildCommand(rootOpts))
	cmd.AddCommand(newHistoryStatsCommand(rootOpts))
	cmd.AddCommand(newHistoryEditCommand(rootOpts))

	return cmd
}

func newHistoryListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List recorded draw sessions, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer env.Close()

			store, err := env.Store(cmd.Context())
			if err != nil {
				return err
			}
			records, err := store.ListAll(cmd.Context())
			if err != nil {
				if errors.Is(err, history.ErrIndexCorrupt) {
					return WrapExitError(ExitFailure, "history index is corrupt; run 'starrand history rebuild'", err)
				}
				return WrapExitError(ExitCommandError, "listing history", err)
			}

			if rootOpts.Format == "json" {
				formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
				return formatter.Success(records)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-36s  %-19s  %5s  %s\n", "ID", "TIME", "COUNT", "NAME")
			for _, rec := range records {
				fmt.Fprintf(out, "%-36s  %-19s  %5d  %s\n",
					rec.ID, rec.Timestamp.Format("2006-01-02 15:04:05"), rec.TotalCount, rec.Name)
			}
			return nil
		},
	}
}

func newHistoryShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <id>",
		Short:         "Show one recorded session in full",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer env.Close()

			store, err := env.Store(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := store.GetRecord(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, history.ErrRecordNotFound) {
					return NewExitError(ExitFailure, fmt.Sprintf("record %s not found", args[0]))
				}
				return WrapExitError(ExitCommandError, "loading record", err)
			}

			if rootOpts.Format == "json" {
				formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
				return formatter.Success(rec)
			}
			printRecord(cmd, rec)
			return nil
		},
	}
}

func printRecord(cmd *cobra.Command, rec record.Record) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:      %s\n", rec.ID)
	fmt.Fprintf(out, "Name:    %s\n", rec.Name)
	fmt.Fprintf(out, "Time:    %s\n", rec.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Group:   %s\n", rec.GroupName)
	fmt.Fprintf(out, "Winners: %s\n", strings.Join(rec.Results, ", "))
	if rec.EditProtected {
		fmt.Fprintln(out, "Edits:   password protected")
	}
}

func newHistoryDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete one recorded session",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer env.Close()

			store, err := env.Store(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.DeleteRecord(cmd.Context(), args[0]); err != nil {
				return WrapExitError(ExitCommandError, "deleting record", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newHistoryClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:           "clear",
		Short:         "Delete the entire history",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "refusing to clear history without --yes")
			}
			env, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer env.Close()

			store, err := env.Store(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Clear(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, "clearing history", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the clear")

	return cmd
}

func newHistoryRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the history index from partition files",
		Long: `Rebuild the history index by scanning every partition.

The rebuilt index holds every record found, newest first, ignoring the
index cap. Records evicted from a capped index become listable again.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer env.Close()

			store, err := env.Store(cmd.Context())
			if err != nil {
				return err
			}
			n, err := store.RebuildIndex(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "rebuilding index", err)
			}
			if rootOpts.Format == "json" {
				formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
				return formatter.Success(map[string]int{"records": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "index rebuilt: %d records\n", n)
			return nil
		},
	}
}

func newHistoryStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Summarize the recorded history",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer env.Close()

			store, err := env.Store(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "computing stats", err)
			}

			if rootOpts.Format == "json" {
				formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
				return formatter.Success(stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tasks:   %d\n", stats.TotalTasks)
			fmt.Fprintf(out, "winners: %d\n", stats.TotalResults)
			fmt.Fprintf(out, "years:   %v\n", stats.Years)
			return nil
		},
	}
}

// HistoryEditOptions holds flags for history edit.
type HistoryEditOptions struct {
	*RootOptions
	Results      []string
	PasswordHash string
}

func newHistoryEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryEditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "edit <id>",
		Short:         "Replace the winners of a recorded session",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(opts.RootOptions)
			if err != nil {
				return err
			}
			defer env.Close()

			store, err := env.Store(cmd.Context())
			if err != nil {
				return err
			}
			err = store.EditResults(cmd.Context(), args[0], opts.PasswordHash, opts.Results)
			switch {
			case errors.Is(err, history.ErrRecordNotFound):
				return NewExitError(ExitFailure, fmt.Sprintf("record %s not found", args[0]))
			case errors.Is(err, history.ErrEditRejected):
				return NewExitError(ExitFailure, "edit rejected: wrong password")
			case err != nil:
				return WrapExitError(ExitCommandError, "editing record", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&opts.Results, "results", nil, "replacement winner list")
	cmd.Flags().StringVar(&opts.PasswordHash, "password-hash", "", "hash of the edit password, for protected records")

	return cmd
}
