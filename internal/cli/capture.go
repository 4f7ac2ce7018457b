package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/temps-sh/replaykit/internal/api"
	"github.com/temps-sh/replaykit/internal/capture"
	"github.com/temps-sh/replaykit/internal/config"
	"github.com/temps-sh/replaykit/internal/event"
)

// CaptureOptions holds flags for the capture command.
type CaptureOptions struct {
	*RootOptions
	Config    string
	VisitorID string
	URL       string
	Path      string
	UserAgent string
}

// NewCaptureCommand creates the capture command.
func NewCaptureCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CaptureOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "capture <events.ndjson>",
		Short: "Run the capture pipeline against a collector",
		Long: `Run the full capture pipeline: admission, session init handshake,
batching, and delivery. Raw events are read as NDJSON from the given file
("-" for stdin), one {"type":..,"timestamp":..,"data":..} record per line,
standing in for the page-side recording engine.

The pipeline stops when the input is exhausted or on Ctrl-C; either way a
final bounded force-flush delivers whatever is still buffered.

Example:
  replaykit capture --config replay.yaml ./events.ndjson
  recorder | replaykit capture --config replay.yaml -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to YAML capture config (required)")
	cmd.Flags().StringVar(&opts.VisitorID, "visitor", "", "visitor id (defaults to a new UUID)")
	cmd.Flags().StringVar(&opts.URL, "url", "", "page URL recorded on the session")
	cmd.Flags().StringVar(&opts.Path, "path", "/", "request path checked against excluded-path patterns")
	cmd.Flags().StringVar(&opts.UserAgent, "user-agent", "replaykit-cli", "user agent recorded on the session")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runCapture(opts *CaptureOptions, eventsFile string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	visitorID := opts.VisitorID
	if visitorID == "" {
		visitorID = uuid.NewString()
	}

	client := api.New(cfg.BasePath)
	snapshot := func() capture.Metadata {
		return capture.Metadata{
			VisitorID:   visitorID,
			UserAgent:   opts.UserAgent,
			URL:         opts.URL,
			RequestPath: opts.Path,
		}
	}
	mgr := capture.NewManager(cfg, client, snapshot, capture.Options{Logger: logger})
	sched := capture.NewScheduler(cfg, mgr, client, logger)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping capture", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if !mgr.Activate(ctx) {
		// Admission rejection is a silent no-op by design, not an error.
		fmt.Fprintln(cmd.OutOrStdout(), "Session not admitted; nothing captured.")
		return nil
	}
	if mgr.State() != capture.StateSucceeded {
		return NewExitError(ExitFailure, "session init failed")
	}

	runErr := make(chan error, 1)
	go func() { runErr <- sched.Run(ctx) }()

	fed, err := feedEvents(ctx, eventsFile, sched)
	if err != nil && !errors.Is(err, context.Canceled) {
		cancel()
		<-runErr
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	// Input exhausted: stop the loop, which force-flushes the remainder.
	cancel()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "capture pipeline error", err)
	}

	sess, _ := mgr.Current()
	fmt.Fprintf(cmd.OutOrStdout(), "Captured %d events under session %s\n", fed, sess.ID)
	return nil
}

// feedEvents streams NDJSON records into the scheduler until EOF or
// cancellation. Returns the number of events enqueued.
func feedEvents(ctx context.Context, filename string, sched *capture.Scheduler) (int, error) {
	var r io.Reader
	if filename == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(filename)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		r = f
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024) // full snapshots are large

	fed := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return fed, ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev event.Raw
		if err := json.Unmarshal(line, &ev); err != nil {
			return fed, fmt.Errorf("line %d: %w", fed+1, err)
		}
		sched.Enqueue(ev)
		fed++
	}
	return fed, scanner.Err()
}
