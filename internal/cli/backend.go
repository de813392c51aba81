package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vistamin/starrand/internal/backend"
	"github.com/vistamin/starrand/internal/history"
)

// NewBackendCommand creates the backend command group.
func NewBackendCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Inspect and switch the history storage backend",
	}

	cmd.AddCommand(newBackendStatusCommand(rootOpts))
	cmd.AddCommand(newBackendUseCommand(rootOpts))

	return cmd
}

// backendStatus is the status payload for both output formats.
type backendStatus struct {
	Active     backend.Method `json:"active"`
	Degraded   bool           `json:"degraded"`
	AppVersion string         `json:"app_version,omitempty"`
	UpdatedAt  string         `json:"updated_at,omitempty"`
}

func newBackendStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show which backend holds the history",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer env.Close()

			method := env.Selector.ActiveMethod(cmd.Context())
			flag := env.Selector.Flag()
			status := backendStatus{
				Active:     method,
				Degraded:   env.Selector.Degraded(),
				AppVersion: flag.AppVersion,
			}
			if !flag.UpdatedTime.IsZero() {
				status.UpdatedAt = flag.UpdatedTime.Format("2006-01-02 15:04:05")
			}

			if rootOpts.Format == "json" {
				formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
				return formatter.Success(status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "active:   %s\n", status.Active)
			if status.Degraded {
				fmt.Fprintln(out, "degraded: yes (in-memory, nothing persists)")
			}
			if status.UpdatedAt != "" {
				fmt.Fprintf(out, "updated:  %s\n", status.UpdatedAt)
			}
			return nil
		},
	}
}

// BackendUseOptions holds flags for backend use.
type BackendUseOptions struct {
	*RootOptions
	NoMigrate bool
}

func newBackendUseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackendUseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "use <method>",
		Short: "Switch the history to another backend",
		Long: `Switch the authoritative history backend and migrate existing
records into it. Methods: directoryBackend, flatKeyedBackend.

Records are copied, not moved; the previous backend keeps its data until
it is cleared by hand.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackendUse(opts, backend.Method(args[0]), cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoMigrate, "no-migrate", false, "switch without copying existing records")

	return cmd
}

func runBackendUse(opts *BackendUseOptions, method backend.Method, cmd *cobra.Command) error {
	if !method.Valid() {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("unknown storage method %q: must be %s or %s",
				method, backend.MethodDirectory, backend.MethodFlatKeyed))
	}

	env, err := openEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	previous, next, err := env.Selector.SetActive(cmd.Context(), method)
	if err != nil {
		return WrapExitError(ExitCommandError, "switching backend", err)
	}

	migrated := 0
	if !opts.NoMigrate && previous != nil && previous.Method() != next.Method() {
		n, err := history.Migrate(cmd.Context(), env.storeOver(previous), env.storeOver(next))
		if err != nil {
			return WrapExitError(ExitCommandError, "migrating records", err)
		}
		migrated = n
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(map[string]interface{}{
			"active":   method,
			"migrated": migrated,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "active backend: %s (%d records migrated)\n", method, migrated)
	return nil
}
