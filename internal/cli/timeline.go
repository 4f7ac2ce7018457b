package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temps-sh/replaykit/internal/api"
	"github.com/temps-sh/replaykit/internal/event"
	"github.com/temps-sh/replaykit/internal/replay"
	"github.com/temps-sh/replaykit/internal/store"
)

// TimelineOptions holds flags for the timeline command.
type TimelineOptions struct {
	*RootOptions
	BasePath string
	Cache    string
	Offline  bool
}

// NewTimelineCommand creates the timeline command.
func NewTimelineCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TimelineOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "timeline <session-id>",
		Short: "Build the grouped timeline for a recorded session",
		Long: `Fetch a session's full event stream and collapse it into a grouped
timeline: contiguous incremental events of the same kind (mouse moves,
mutations, scrolls) merge into one entry with a count and time span.

With --cache, fetched streams are stored in a local SQLite database;
--offline rebuilds the timeline from that cache without touching the
collector.

Example:
  replaykit timeline --base-path http://localhost:8080 0193e5a1-...
  replaykit timeline --cache replays.db --offline 0193e5a1-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTimeline(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.BasePath, "base-path", "", "collector base path")
	cmd.Flags().StringVar(&opts.Cache, "cache", "", "path to local SQLite cache")
	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "use only the local cache")

	return cmd
}

func runTimeline(opts *TimelineOptions, sessionID string, cmd *cobra.Command) error {
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

	events, err := loadEvents(ctx, opts, sessionID, formatter)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		_ = formatter.Error(ErrCodeNotFound, "session has no events", nil)
		return NewExitError(ExitFailure, "session has no events")
	}

	timeline := replay.BuildTimeline(sessionID, events)

	if opts.Format == "json" {
		return formatter.JSON(timeline)
	}
	renderTimeline(formatter, timeline)
	return nil
}

// loadEvents resolves the event stream from the cache or the collector,
// writing through to the cache when one is configured.
func loadEvents(ctx context.Context, opts *TimelineOptions, sessionID string, formatter *OutputFormatter) ([]event.Raw, error) {
	if opts.Offline {
		if opts.Cache == "" {
			return nil, NewExitError(ExitCommandError, "--offline requires --cache")
		}
		st, err := store.Open(opts.Cache)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open cache", err)
		}
		defer st.Close()

		events, err := st.Events(ctx, sessionID)
		if err != nil {
			return nil, WrapExitError(ExitFailure, "failed to read cache", err)
		}
		formatter.VerboseLog("Loaded %d events from cache", len(events))
		return events, nil
	}

	if opts.BasePath == "" {
		return nil, NewExitError(ExitCommandError, "--base-path is required unless --offline")
	}

	client := api.New(opts.BasePath)
	events, err := client.GetSessionEvents(ctx, sessionID)
	if err != nil {
		if errors.Is(err, api.ErrSessionNotFound) {
			return nil, WrapExitError(ExitFailure, "session not found on collector", err)
		}
		return nil, WrapExitError(ExitFailure, "failed to fetch events", err)
	}
	formatter.VerboseLog("Fetched %d events from collector", len(events))

	if opts.Cache != "" {
		st, err := store.Open(opts.Cache)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open cache", err)
		}
		defer st.Close()

		info := api.SessionInfo{SessionID: sessionID}
		if len(events) > 0 {
			info.DurationMs = events[len(events)-1].Timestamp - events[0].Timestamp
		}
		if err := st.SaveSession(ctx, info); err != nil {
			return nil, WrapExitError(ExitFailure, "failed to cache session", err)
		}
		if err := st.SaveEvents(ctx, sessionID, events); err != nil {
			return nil, WrapExitError(ExitFailure, "failed to cache events", err)
		}
		formatter.VerboseLog("Cached session %s", sessionID)
	}

	return events, nil
}

func renderTimeline(formatter *OutputFormatter, t replay.Timeline) {
	fmt.Fprintf(formatter.Writer, "Session %s  (%s, %d groups)\n",
		t.SessionID, replay.FormatRelative(t.Duration), len(t.Groups))
	for _, g := range t.Groups {
		line := fmt.Sprintf("%s  %s", replay.FormatRelative(t.RelativeTime(g.StartTime)), g.Label())
		if g.Count > 1 {
			line += fmt.Sprintf(" x%d (%s)", g.Count, replay.FormatRelative(g.DurationMs()))
		}
		fmt.Fprintln(formatter.Writer, line)
	}
}
