package store

import (
	"context"
	"fmt"
	"time"

	"github.com/temps-sh/replaykit/internal/api"
	"github.com/temps-sh/replaykit/internal/event"
)

// SaveSession upserts one session's listing metadata. Re-fetching a
// session refreshes its row rather than duplicating it.
func (s *Store) SaveSession(ctx context.Context, info api.SessionInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, visitor_id, created_at, user_agent, url, duration_ms, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			visitor_id  = excluded.visitor_id,
			created_at  = excluded.created_at,
			user_agent  = excluded.user_agent,
			url         = excluded.url,
			duration_ms = excluded.duration_ms,
			fetched_at  = excluded.fetched_at
	`,
		info.SessionID,
		info.VisitorID,
		info.CreatedAt,
		info.UserAgent,
		info.URL,
		info.DurationMs,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SaveEvents replaces the cached event stream for a session. The delete
// and inserts run in one transaction so the cache never holds a partial
// stream.
func (s *Store) SaveEvents(ctx context.Context, sessionID string, events []event.Raw) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save events: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("save events: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (session_id, type, timestamp, data)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("save events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, sessionID, int(ev.Type), ev.Timestamp, string(ev.Data)); err != nil {
			return fmt.Errorf("save events: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save events: commit: %w", err)
	}
	return nil
}
