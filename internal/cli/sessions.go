package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temps-sh/replaykit/internal/api"
)

// SessionsOptions holds flags for the sessions command.
type SessionsOptions struct {
	*RootOptions
	BasePath string
	Page     int
	PerPage  int
}

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions on the collector",
		Long: `List recorded session replays from the collector, newest first.

Example:
  replaykit sessions --base-path https://collector.example.com/_temps
  replaykit sessions --base-path http://localhost:8080 --page 2 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.BasePath, "base-path", "", "collector base path (required)")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&opts.PerPage, "per-page", 20, "sessions per page")
	_ = cmd.MarkFlagRequired("base-path")

	return cmd
}

func runSessions(opts *SessionsOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client := api.New(opts.BasePath)
	sessions, err := client.ListSessions(ctx, opts.Page, opts.PerPage)
	if err != nil {
		_ = formatter.Error(ErrCodeCollector, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to list sessions", err)
	}

	if opts.Format == "json" {
		return formatter.JSON(sessions)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(formatter.Writer, "No sessions recorded.")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(formatter.Writer, "%s  %s  %-24s %s\n",
			s.SessionID, s.CreatedAt, formatDurationMs(s.DurationMs), s.URL)
	}
	return nil
}

func formatDurationMs(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}
