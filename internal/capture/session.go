package capture

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/temps-sh/replaykit/internal/api"
	"github.com/temps-sh/replaykit/internal/config"
)

// InitState is the session initialization state.
type InitState int

const (
	// StateNotStarted means no init handshake has been issued. Admission
	// rejection leaves the manager here permanently for the activation.
	StateNotStarted InitState = iota
	// StateAttempting means at least one handshake failed and the attempt
	// budget is not yet exhausted. Retries are opportunistic: any external
	// trigger may call AttemptInit again.
	StateAttempting
	// StateSucceeded means the session is registered and batching may run.
	StateSucceeded
	// StatePermanentlyFailed means the attempt budget is exhausted.
	// Terminal: no transition leaves this state.
	StatePermanentlyFailed
)

// String returns the state name for logs.
func (s InitState) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StatePermanentlyFailed:
		return "permanently-failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// maxInitAttempts bounds handshake attempts per session lifetime.
const maxInitAttempts = 3

// IDGenerator produces session and visitor identifiers.
// Implemented by UUIDv7Generator (production) and testutil.FixedIDGenerator.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers, so session
// ids order by creation time in collector storage.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Metadata is the environment snapshot taken when a session initializes.
type Metadata struct {
	VisitorID      string
	UserAgent      string
	Language       string
	Timezone       string
	ScreenWidth    int
	ScreenHeight   int
	ColorDepth     int
	ViewportWidth  int
	ViewportHeight int
	URL            string
	RequestPath    string
	RequestQuery   string
	Referrer       string
}

// Session is the immutable identity of one successful capture session.
type Session struct {
	ID        string
	VisitorID string
	Domain    string
	StartedAt time.Time
	Metadata  Metadata
}

// Options carries optional Manager dependencies. Zero value selects
// production defaults.
type Options struct {
	// IDs overrides the session id generator. Nil defaults to UUIDv7Generator.
	IDs IDGenerator
	// Draw overrides the uniform [0,1) sample draw. Nil defaults to rand.Float64.
	Draw func() float64
	// Logger overrides the logger. Nil defaults to slog.Default().
	Logger *slog.Logger
	// Now overrides the wall clock. Nil defaults to time.Now.
	Now func() time.Time
}

// Manager owns session identity and the init handshake state machine.
//
// Thread-safety: all exported methods are safe for concurrent use. The
// handshake itself is non-concurrent: AttemptInit while a handshake is in
// flight is a no-op.
type Manager struct {
	cfg      config.Config
	client   *api.Client
	snapshot func() Metadata
	ids      IDGenerator
	draw     func() float64
	now      func() time.Time
	logger   *slog.Logger

	mu            sync.Mutex
	state         InitState
	attempts      int
	inFlight      bool
	admissionDone bool
	admitted      bool
	session       Session
}

// NewManager creates a session manager. snapshot is called once per
// handshake attempt to capture current environment metadata.
func NewManager(cfg config.Config, client *api.Client, snapshot func() Metadata, opts Options) *Manager {
	if opts.IDs == nil {
		opts.IDs = UUIDv7Generator{}
	}
	if opts.Draw == nil {
		opts.Draw = rand.Float64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		cfg:      cfg,
		client:   client,
		snapshot: snapshot,
		ids:      opts.IDs,
		draw:     opts.Draw,
		now:      opts.Now,
		logger:   opts.Logger,
	}
}

// Activate evaluates admission rules and, on admission, issues the first
// init handshake. Any rejection is silent, permanent for this activation,
// and makes zero network calls. Returns whether the session was admitted.
func (m *Manager) Activate(ctx context.Context) bool {
	m.mu.Lock()
	if m.admissionDone {
		admitted := m.admitted
		m.mu.Unlock()
		return admitted
	}
	m.admissionDone = true

	switch {
	case !m.cfg.Enabled:
		m.logger.Debug("capture disabled, session not started")
	case m.cfg.PathExcluded(m.snapshot().RequestPath):
		m.logger.Debug("path excluded, session not started", "path", m.snapshot().RequestPath)
	case m.draw() > m.cfg.SessionSampleRate:
		m.logger.Debug("session not sampled", "rate", m.cfg.SessionSampleRate)
	default:
		m.admitted = true
	}

	admitted := m.admitted
	m.mu.Unlock()

	if admitted {
		_ = m.AttemptInit(ctx)
	}
	return admitted
}

// AttemptInit issues one init handshake if the session is admitted, not yet
// initialized, and the attempt budget is not exhausted.
//
// Idempotent and safe to invoke opportunistically from any external
// trigger: a call while a handshake is in flight, or after success, or
// after permanent failure, is a no-op returning nil.
func (m *Manager) AttemptInit(ctx context.Context) error {
	m.mu.Lock()
	if !m.admitted || m.inFlight ||
		m.state == StateSucceeded || m.state == StatePermanentlyFailed {
		m.mu.Unlock()
		return nil
	}

	m.state = StateAttempting
	m.attempts++
	attempt := m.attempts
	m.inFlight = true

	// Fresh identity and environment snapshot per handshake. Only a
	// successful handshake pins the session.
	sessionID := m.ids.Generate()
	meta := m.snapshot()
	startedAt := m.now()
	m.mu.Unlock()

	err := m.client.Init(ctx, m.initRequest(sessionID, meta, startedAt))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false

	if err != nil {
		if m.attempts >= maxInitAttempts {
			m.state = StatePermanentlyFailed
			// The single terminal diagnostic for this session lifetime.
			m.logger.Error("session init permanently failed",
				"attempts", m.attempts, "error", err)
		} else {
			m.logger.Debug("session init failed",
				"attempt", attempt, "error", err)
		}
		return fmt.Errorf("init session: %w", err)
	}

	m.state = StateSucceeded
	m.session = Session{
		ID:        sessionID,
		VisitorID: meta.VisitorID,
		Domain:    m.cfg.Domain,
		StartedAt: startedAt,
		Metadata:  meta,
	}
	m.logger.Info("session initialized", "session_id", sessionID, "attempt", attempt)
	return nil
}

// Reinitialize handles session loss reported by the delivery path: the
// state machine resets and a handshake runs under a fresh session id. The
// attempt budget resets with the new session lifetime.
//
// No-op after permanent failure; that state is terminal.
func (m *Manager) Reinitialize(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StatePermanentlyFailed || !m.admitted || m.inFlight {
		m.mu.Unlock()
		return nil
	}
	m.state = StateNotStarted
	m.attempts = 0
	m.session = Session{}
	m.mu.Unlock()

	return m.AttemptInit(ctx)
}

// State returns the current initialization state.
func (m *Manager) State() InitState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the active session id, or "" before a successful init.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateSucceeded {
		return ""
	}
	return m.session.ID
}

// Current returns the active session and whether one exists.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, m.state == StateSucceeded
}

// Attempts returns the handshake attempts consumed in this session lifetime.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Reset returns the manager to its pre-activation state. Test isolation
// hook; production code tears the manager down instead.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateNotStarted
	m.attempts = 0
	m.inFlight = false
	m.admissionDone = false
	m.admitted = false
	m.session = Session{}
}

func (m *Manager) initRequest(sessionID string, meta Metadata, startedAt time.Time) api.InitRequest {
	return api.InitRequest{
		SessionID:      sessionID,
		VisitorID:      meta.VisitorID,
		UserAgent:      meta.UserAgent,
		Language:       normalizeLanguage(meta.Language),
		Timezone:       meta.Timezone,
		ScreenWidth:    meta.ScreenWidth,
		ScreenHeight:   meta.ScreenHeight,
		ColorDepth:     meta.ColorDepth,
		ViewportWidth:  meta.ViewportWidth,
		ViewportHeight: meta.ViewportHeight,
		URL:            meta.URL,
		Timestamp:      startedAt.UTC().Format(time.RFC3339),
		Domain:         m.cfg.Domain,
		RequestPath:    meta.RequestPath,
		RequestQuery:   meta.RequestQuery,
		Referrer:       meta.Referrer,
		StartedAt:      startedAt.UTC().Format(time.RFC3339),
	}
}

// normalizeLanguage canonicalizes a BCP 47 tag ("en-us" -> "en-US").
// Unparseable tags pass through unchanged; the collector tolerates them.
func normalizeLanguage(tag string) string {
	if tag == "" {
		return tag
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	return parsed.String()
}
