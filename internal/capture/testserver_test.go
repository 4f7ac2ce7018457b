package capture

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temps-sh/replaykit/internal/config"
	"github.com/temps-sh/replaykit/internal/event"
)

// receivedBatch is one decoded events-endpoint delivery.
type receivedBatch struct {
	sessionID string
	events    []event.Raw
}

// fakeCollector is an in-process collector for pipeline tests. It records
// every init and events call so tests can assert exact network behavior.
type fakeCollector struct {
	t *testing.T

	mu           sync.Mutex
	initCalls    int
	initFailures int // fail this many init calls with 500 before succeeding
	initIDs      []string
	eventCalls   int
	eventsStatus int             // non-zero forces this status on events
	notFound     map[string]bool // session ids answered with 404
	batches      []receivedBatch

	blockEvents chan struct{} // when non-nil, events handler waits on it
	active      int
	maxActive   int
}

func newFakeCollector(t *testing.T) (*fakeCollector, *httptest.Server) {
	t.Helper()
	fc := &fakeCollector{t: t, notFound: map[string]bool{}}
	srv := httptest.NewServer(http.HandlerFunc(fc.handle))
	t.Cleanup(srv.Close)
	return fc, srv
}

func (fc *fakeCollector) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	require.NoError(fc.t, err)

	switch r.URL.Path {
	case "/session-replay/init":
		var req struct {
			SessionID string `json:"sessionId"`
		}
		require.NoError(fc.t, json.Unmarshal(body, &req))

		fc.mu.Lock()
		fc.initCalls++
		fc.initIDs = append(fc.initIDs, req.SessionID)
		fail := fc.initFailures > 0
		if fail {
			fc.initFailures--
		}
		fc.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"session_id": req.SessionID})

	case "/session-replay/events":
		fc.mu.Lock()
		fc.active++
		if fc.active > fc.maxActive {
			fc.maxActive = fc.active
		}
		block := fc.blockEvents
		fc.mu.Unlock()

		if block != nil {
			<-block
		}

		var req struct {
			SessionID string `json:"sessionId"`
			Events    string `json:"events"`
		}
		require.NoError(fc.t, json.Unmarshal(body, &req))

		fc.mu.Lock()
		fc.eventCalls++
		fc.active--
		status := fc.eventsStatus
		if fc.notFound[req.SessionID] {
			status = http.StatusNotFound
		}
		var added int
		if status == 0 {
			events, err := event.Decode(req.Events)
			require.NoError(fc.t, err)
			fc.batches = append(fc.batches, receivedBatch{sessionID: req.SessionID, events: events})
			added = len(events)
		}
		fc.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(map[string]int{"events_added": added})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (fc *fakeCollector) snapshot() (initCalls, eventCalls int, batches []receivedBatch) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.initCalls, fc.eventCalls, append([]receivedBatch(nil), fc.batches...)
}

func (fc *fakeCollector) totalRequests() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.initCalls + fc.eventCalls
}

// testConfig returns a config pointed at the fake collector.
func testConfig(srv *httptest.Server) config.Config {
	cfg := config.Default()
	cfg.BasePath = srv.URL
	cfg.Domain = "example.com"
	return cfg
}

func testMetadata() Metadata {
	return Metadata{
		VisitorID:      "visitor-1",
		UserAgent:      "test-agent",
		Language:       "en-us",
		Timezone:       "UTC",
		ScreenWidth:    1920,
		ScreenHeight:   1080,
		ColorDepth:     24,
		ViewportWidth:  1200,
		ViewportHeight: 800,
		URL:            "https://example.com/",
		RequestPath:    "/",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// incremental builds an incremental event with the given source subtype.
func incremental(ts int64, src event.Source) event.Raw {
	data, _ := json.Marshal(map[string]any{"source": src})
	return event.Raw{Type: event.TypeIncremental, Timestamp: ts, Data: data}
}
