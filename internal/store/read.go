package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/temps-sh/replaykit/internal/api"
	"github.com/temps-sh/replaykit/internal/event"
)

// ErrNotCached is returned when a session has no cached row.
var ErrNotCached = errors.New("session not cached")

// Session returns the cached metadata for one session.
func (s *Store) Session(ctx context.Context, sessionID string) (api.SessionInfo, error) {
	var info api.SessionInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, visitor_id, created_at, user_agent, url, duration_ms
		FROM sessions
		WHERE session_id = ?
	`, sessionID).Scan(
		&info.SessionID,
		&info.VisitorID,
		&info.CreatedAt,
		&info.UserAgent,
		&info.URL,
		&info.DurationMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return api.SessionInfo{}, fmt.Errorf("%s: %w", sessionID, ErrNotCached)
	}
	if err != nil {
		return api.SessionInfo{}, fmt.Errorf("read session: %w", err)
	}
	return info, nil
}

// Sessions returns all cached sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]api.SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, visitor_id, created_at, user_agent, url, duration_ms
		FROM sessions
		ORDER BY created_at DESC, session_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []api.SessionInfo{}
	for rows.Next() {
		var info api.SessionInfo
		if err := rows.Scan(
			&info.SessionID,
			&info.VisitorID,
			&info.CreatedAt,
			&info.UserAgent,
			&info.URL,
			&info.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Events returns the cached event stream for a session in timeline order
// (timestamp, then insertion order for equal timestamps).
func (s *Store) Events(ctx context.Context, sessionID string) ([]event.Raw, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, timestamp, data
		FROM events
		WHERE session_id = ?
		ORDER BY timestamp ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []event.Raw{}
	for rows.Next() {
		var (
			typ  int
			ts   int64
			data sql.NullString
		)
		if err := rows.Scan(&typ, &ts, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev := event.Raw{Type: event.Type(typ), Timestamp: ts}
		if data.Valid && data.String != "" {
			ev.Data = json.RawMessage(data.String)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
