// Package api implements the HTTP client for the temps session-replay
// collector: the capture-side init and events endpoints, and the
// replay-side session retrieval endpoints.
//
// The client never panics and never retries; delivery policy (drop,
// reinitialize) belongs to the capture scheduler.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/temps-sh/replaykit/internal/event"
)

// ErrSessionNotFound is returned when the collector no longer knows the
// session (server-side TTL expiry). The caller must reinitialize with a
// fresh session id; the in-flight batch cannot be replayed.
var ErrSessionNotFound = errors.New("session not found")

// StatusError reports a non-2xx collector response that is not a
// session-not-found condition.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: collector returned status %d", e.Endpoint, e.Code)
}

// Client talks to one collector base path.
type Client struct {
	basePath string
	http     *http.Client
}

// New creates a client for the given collector base path. The base path is
// everything before "/session-replay/...", e.g. "https://example.com/_temps".
func New(basePath string) *Client {
	return &Client{
		basePath: strings.TrimRight(basePath, "/"),
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// NewWithHTTPClient creates a client with a caller-supplied http.Client,
// used by tests and by hosts that need custom transports.
func NewWithHTTPClient(basePath string, hc *http.Client) *Client {
	c := New(basePath)
	if hc != nil {
		c.http = hc
	}
	return c
}

// InitRequest is the session handshake payload.
type InitRequest struct {
	SessionID      string `json:"sessionId"`
	VisitorID      string `json:"visitorId"`
	UserAgent      string `json:"userAgent"`
	Language       string `json:"language"`
	Timezone       string `json:"timezone"`
	ScreenWidth    int    `json:"screenWidth"`
	ScreenHeight   int    `json:"screenHeight"`
	ColorDepth     int    `json:"colorDepth"`
	ViewportWidth  int    `json:"viewportWidth"`
	ViewportHeight int    `json:"viewportHeight"`
	URL            string `json:"url"`
	Timestamp      string `json:"timestamp"`
	Domain         string `json:"domain"`
	RequestPath    string `json:"requestPath"`
	RequestQuery   string `json:"requestQuery"`
	Referrer       string `json:"referrer"`
	StartedAt      string `json:"startedAt"`
}

// Init registers a new capture session with the collector.
func (c *Client) Init(ctx context.Context, req InitRequest) error {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	return c.post(ctx, "/session-replay/init", req, &resp)
}

// EventsResponse is the collector's acknowledgment for a delivered batch.
type EventsResponse struct {
	EventsAdded int `json:"events_added"`
}

// SendEvents delivers one encoded batch under the given session id.
// Returns ErrSessionNotFound on 404; the batch must then be dropped and the
// session reinitialized.
func (c *Client) SendEvents(ctx context.Context, sessionID, encoded string) (EventsResponse, error) {
	req := struct {
		SessionID string `json:"sessionId"`
		Events    string `json:"events"`
	}{SessionID: sessionID, Events: encoded}

	var resp EventsResponse
	if err := c.post(ctx, "/session-replay/events", req, &resp); err != nil {
		return EventsResponse{}, err
	}
	return resp, nil
}

// SessionInfo is one recorded session as listed by the collector.
type SessionInfo struct {
	SessionID  string `json:"sessionId"`
	VisitorID  string `json:"visitorId"`
	CreatedAt  string `json:"createdAt"`
	UserAgent  string `json:"userAgent"`
	URL        string `json:"url"`
	DurationMs int64  `json:"duration"`
}

// ListSessions returns one page of recorded sessions, newest first.
func (c *Client) ListSessions(ctx context.Context, page, perPage int) ([]SessionInfo, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(perPage))

	var resp struct {
		Sessions []SessionInfo `json:"sessions"`
	}
	if err := c.get(ctx, "/session-replays?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// GetSessionEvents returns the full time-ordered event stream for a session.
func (c *Client) GetSessionEvents(ctx context.Context, sessionID string) ([]event.Raw, error) {
	var resp struct {
		SessionID string      `json:"sessionId"`
		Events    []event.Raw `json:"events"`
	}
	path := "/session-replays/" + url.PathEscape(sessionID) + "/events"
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.basePath+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, endpoint, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.basePath+endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	return c.do(req, endpoint, out)
}

func (c *Client) do(req *http.Request, endpoint string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: %w", endpoint, ErrSessionNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return nil
}
