package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/temps-sh/replaykit/internal/api"
	"github.com/temps-sh/replaykit/internal/config"
	"github.com/temps-sh/replaykit/internal/event"
)

// forceFlushTimeout bounds the final flush on teardown so stopping a page
// never hangs on a stuck collector.
const forceFlushTimeout = 2 * time.Second

// Scheduler accumulates events and flushes them on a recurring timer or
// when the batch size threshold is reached.
//
// Delivery is at-most-once: a batch that fails to encode or deliver is
// dropped and logged, never queued for retry. A 404 from the events
// endpoint additionally triggers session reinitialization through the
// Manager; the in-flight batch is still dropped because its relative
// timestamps cannot be replayed against a new session.
type Scheduler struct {
	cfg    config.Config
	mgr    *Manager
	client *api.Client
	buf    *buffer
	logger *slog.Logger

	flushCh chan struct{} // threshold signal, buffered 1 to coalesce

	mu       sync.Mutex
	inFlight bool
	pending  bool
}

// NewScheduler creates a flush scheduler bound to a session manager and
// delivery client. Pass a nil logger for slog.Default().
func NewScheduler(cfg config.Config, mgr *Manager, client *api.Client, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		mgr:     mgr,
		client:  client,
		buf:     newBuffer(),
		logger:  logger,
		flushCh: make(chan struct{}, 1),
	}
}

// Enqueue appends one event to the buffer. Events arriving outside an
// active session window are dropped, never queued: nothing is transmitted
// before init succeeds.
func (s *Scheduler) Enqueue(ev event.Raw) {
	if s.mgr.State() != StateSucceeded {
		return
	}
	if s.buf.append(ev) >= s.cfg.BatchSize {
		// Non-blocking - buffer of 1 coalesces multiple signals.
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}
}

// Buffered returns the number of events awaiting flush.
func (s *Scheduler) Buffered() int {
	return s.buf.len()
}

// Run drives the flush loop until ctx is cancelled. On cancellation it
// performs one bounded best-effort flush of whatever remains, then returns
// ctx.Err(). The ticker is released on every exit path.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.FlushInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.ForceFlush(ctx)
			return ctx.Err()
		case <-ticker.C:
			s.Flush(ctx)
		case <-s.flushCh:
			s.Flush(ctx)
		}
	}
}

// Flush delivers the current buffer contents, if any. A call arriving
// while a flush is in flight coalesces into exactly one pending flush
// instead of a parallel send of the same generation.
func (s *Scheduler) Flush(ctx context.Context) {
	s.mu.Lock()
	if s.inFlight {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	for {
		s.flushOnce(ctx)

		s.mu.Lock()
		if s.pending {
			s.pending = false
			s.mu.Unlock()
			continue
		}
		s.inFlight = false
		s.mu.Unlock()
		return
	}
}

// ForceFlush makes one best-effort delivery of remaining buffered events,
// bounded by forceFlushTimeout. Called on stop/unload; never blocks
// teardown indefinitely and survives an already-cancelled ctx.
func (s *Scheduler) ForceFlush(ctx context.Context) {
	bounded, cancel := context.WithTimeout(context.WithoutCancel(ctx), forceFlushTimeout)
	defer cancel()
	s.Flush(bounded)
}

// flushOnce swaps the buffer and delivers the swapped-out batch.
//
// At-most-once policy: encode failures and transient delivery failures
// drop the batch. Completeness loses to bounded memory here.
func (s *Scheduler) flushOnce(ctx context.Context) {
	sessionID := s.mgr.SessionID()
	if sessionID == "" {
		return
	}

	events := s.buf.swap()
	if len(events) == 0 {
		return
	}

	encoded, err := event.Encode(events)
	if err != nil {
		s.logger.Warn("dropping batch: encode failed",
			"events", len(events), "error", err)
		return
	}

	resp, err := s.client.SendEvents(ctx, sessionID, encoded)
	switch {
	case err == nil:
		s.logger.Debug("batch delivered",
			"session_id", sessionID, "events", len(events), "added", resp.EventsAdded)
	case errors.Is(err, api.ErrSessionNotFound):
		// Server-side TTL expiry. The batch is unreplayable under a new
		// session id; drop it and start a fresh session.
		s.logger.Warn("session expired on collector, reinitializing",
			"session_id", sessionID, "dropped_events", len(events))
		if rerr := s.mgr.Reinitialize(ctx); rerr != nil {
			s.logger.Debug("reinitialize failed", "error", rerr)
		}
	default:
		// Transient network/5xx. Low severity: single-batch loss is
		// expected under flaky networks and must not spam logs.
		s.logger.Debug("dropping batch: delivery failed",
			"session_id", sessionID, "events", len(events), "error", err)
	}
}
