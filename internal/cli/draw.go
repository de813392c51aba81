package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vistamin/starrand/internal/config"
	"github.com/vistamin/starrand/internal/draw"
	"github.com/vistamin/starrand/internal/parse"
	"github.com/vistamin/starrand/internal/record"
)

// DrawOptions holds flags for the draw command.
type DrawOptions struct {
	*RootOptions
	Count       int
	Mode        string
	AllowRepeat bool
	Name        string
	Group       string
	NoSave      bool
	NoAnimate   bool
}

// NewDrawCommand creates the draw command.
func NewDrawCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DrawOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "draw <list-file>",
		Short: "Draw winners from a candidate list",
		Long: `Draw winners from a candidate list file (csv, txt, or json).

Weighted mode picks proportionally to each candidate's weight; equal mode
ignores weights. Unless --allow-repeat is set, each winner is excluded
from the rest of the session.

Example:
  starrand draw students.csv --count 3 --mode weighted --name "Friday raffle"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraw(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 0, "number of winners (default from settings)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "draw mode: equal or weighted (default from settings)")
	cmd.Flags().BoolVar(&opts.AllowRepeat, "allow-repeat", false, "allow the same candidate to win more than once")
	cmd.Flags().StringVar(&opts.Name, "name", "", "session name stored with the record")
	cmd.Flags().StringVar(&opts.Group, "group", "", "group name stored with the record (default: list file name)")
	cmd.Flags().BoolVar(&opts.NoSave, "no-save", false, "do not record the session in history")
	cmd.Flags().BoolVar(&opts.NoAnimate, "no-animate", false, "skip the roll animation")

	return cmd
}

// drawResult is the success payload for JSON output.
type drawResult struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name"`
	Group   string   `json:"group"`
	Mode    string   `json:"mode"`
	Results []string `json:"results"`
}

func runDraw(opts *DrawOptions, listPath string, cmd *cobra.Command) error {
	env, err := openEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	content, err := os.ReadFile(listPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading candidate list", err)
	}
	names, weights, err := parse.Parse(content, parse.DetectFormat(listPath))
	if err != nil {
		return WrapExitError(ExitCommandError, "parsing candidate list", err)
	}

	engine := draw.New()
	if err := engine.LoadData(names, weights); err != nil {
		return WrapExitError(ExitFailure, "loading candidates", err)
	}

	count := opts.Count
	if count <= 0 {
		count = env.Config.Draw.Count
	}
	mode := opts.Mode
	if mode == "" {
		mode = env.Config.Draw.Mode
	}
	if mode != config.ModeEqual && mode != config.ModeWeighted {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid mode %q: must be equal or weighted", mode))
	}
	allowRepeat := opts.AllowRepeat
	if !cmd.Flags().Changed("allow-repeat") {
		allowRepeat = env.Config.Draw.AllowRepeat
	}

	if env.Config.Animation.Enabled && !opts.NoAnimate && opts.Format == "text" {
		out := cmd.OutOrStdout()
		draw.Roll(cmd.Context(), engine.RollRand(), draw.RollConfig{
			Duration: time.Duration(env.Config.Animation.DurationMS) * time.Millisecond,
			FPS:      env.Config.Animation.FPS,
			Pool:     engine.Available(),
			OnTick: func(value string) {
				fmt.Fprintf(out, "\r%-50s", value)
			},
		})
		fmt.Fprintf(out, "\r%-50s\r", "")
	}

	results, err := engine.DrawMultiple(count, mode == config.ModeWeighted, allowRepeat)
	if err != nil {
		return WrapExitError(ExitFailure, "drawing", err)
	}
	if len(results) == 0 {
		return NewExitError(ExitFailure, "no candidates available to draw")
	}

	now := time.Now()
	name := opts.Name
	if name == "" {
		name = "draw-" + now.Format("20060102-150405")
	}
	group := opts.Group
	if group == "" {
		group = strings.TrimSuffix(filepath.Base(listPath), filepath.Ext(listPath))
	}

	res := drawResult{Name: name, Group: group, Mode: mode, Results: results}

	if !opts.NoSave {
		store, err := env.Store(cmd.Context())
		if err != nil {
			return err
		}
		rec := record.Record{
			ID:         record.NewID(),
			Name:       name,
			Timestamp:  now,
			Results:    results,
			TotalCount: len(results),
			GroupName:  group,
		}
		if err := store.SaveRecord(cmd.Context(), rec); err != nil {
			return WrapExitError(ExitCommandError, "saving history record", err)
		}
		res.ID = rec.ID
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return formatter.Success(res)
	}
	for _, winner := range results {
		fmt.Fprintln(cmd.OutOrStdout(), winner)
	}
	return nil
}
