package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temps-sh/replaykit/internal/api"
	"github.com/temps-sh/replaykit/internal/event"
	"github.com/temps-sh/replaykit/internal/testutil"
)

// newTestPipeline returns an initialized manager and scheduler wired to a
// fake collector, with the session already succeeded.
func newTestPipeline(t *testing.T) (*Scheduler, *Manager, *fakeCollector) {
	t.Helper()
	fc, srv := newFakeCollector(t)
	cfg := testConfig(srv)
	cfg.BatchSize = 100 // size threshold off unless a test lowers it
	cfg.FlushIntervalMs = 60_000

	client := api.New(srv.URL)
	mgr := NewManager(cfg, client, testMetadata, Options{
		IDs:    testutil.NewSequenceIDGenerator(""),
		Draw:   testutil.FixedDraw(0.0),
		Logger: discardLogger(),
	})
	require.True(t, mgr.Activate(context.Background()))
	require.Equal(t, StateSucceeded, mgr.State())

	sched := NewScheduler(cfg, mgr, client, discardLogger())
	return sched, mgr, fc
}

func TestEnqueue_DroppedBeforeInit(t *testing.T) {
	fc, srv := newFakeCollector(t)
	cfg := testConfig(srv)

	client := api.New(srv.URL)
	mgr := NewManager(cfg, client, testMetadata, Options{Logger: discardLogger()})
	sched := NewScheduler(cfg, mgr, client, discardLogger())

	// No successful init: events outside the active window are dropped,
	// never queued.
	sched.Enqueue(incremental(1000, event.SourceMouseMove))
	assert.Zero(t, sched.Buffered())

	sched.Flush(context.Background())
	_, eventCalls, _ := fc.snapshot()
	assert.Zero(t, eventCalls)
}

func TestFlush_SingleBatchInOrder(t *testing.T) {
	sched, mgr, fc := newTestPipeline(t)

	const n = 5
	for i := 0; i < n; i++ {
		sched.Enqueue(incremental(int64(1000+i), event.SourceMouseMove))
	}
	require.Equal(t, n, sched.Buffered())

	sched.Flush(context.Background())

	_, eventCalls, batches := fc.snapshot()
	require.Equal(t, 1, eventCalls, "one flush, one send")
	require.Len(t, batches, 1)
	assert.Equal(t, mgr.SessionID(), batches[0].sessionID)
	require.Len(t, batches[0].events, n)
	for i, ev := range batches[0].events {
		assert.Equal(t, int64(1000+i), ev.Timestamp, "insertion order preserved")
	}
	assert.Zero(t, sched.Buffered(), "handoff empties the buffer atomically")
}

func TestFlush_EmptyBufferSendsNothing(t *testing.T) {
	sched, _, fc := newTestPipeline(t)

	sched.Flush(context.Background())

	_, eventCalls, _ := fc.snapshot()
	assert.Zero(t, eventCalls)
}

func TestFlush_TransientFailureDropsBatch(t *testing.T) {
	sched, _, fc := newTestPipeline(t)
	fc.eventsStatus = 500

	sched.Enqueue(incremental(1000, event.SourceScroll))
	sched.Flush(context.Background())

	// At-most-once: the batch is gone, not queued for retry.
	assert.Zero(t, sched.Buffered())

	fc.mu.Lock()
	fc.eventsStatus = 0
	fc.mu.Unlock()

	sched.Flush(context.Background())
	_, eventCalls, batches := fc.snapshot()
	assert.Equal(t, 1, eventCalls, "empty buffer after drop, nothing resent")
	assert.Empty(t, batches)
}

func TestFlush_SessionNotFound_ReinitializesAndDropsBatch(t *testing.T) {
	sched, mgr, fc := newTestPipeline(t)

	stale := mgr.SessionID()
	fc.mu.Lock()
	fc.notFound[stale] = true
	fc.mu.Unlock()

	sched.Enqueue(incremental(1000, event.SourceInput))
	sched.Flush(context.Background())

	fresh := mgr.SessionID()
	assert.NotEmpty(t, fresh)
	assert.NotEqual(t, stale, fresh, "exactly one reinit cycle with a new session id")
	assert.Equal(t, StateSucceeded, mgr.State())

	// The dropped batch is never retransmitted under any id.
	initCalls, eventCalls, batches := fc.snapshot()
	assert.Equal(t, 2, initCalls)
	assert.Equal(t, 1, eventCalls)
	assert.Empty(t, batches)

	// Subsequent events deliver under the fresh session.
	sched.Enqueue(incremental(2000, event.SourceInput))
	sched.Flush(context.Background())

	_, _, batches = fc.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, fresh, batches[0].sessionID)
	require.Len(t, batches[0].events, 1)
	assert.Equal(t, int64(2000), batches[0].events[0].Timestamp)
}

func TestFlush_CoalescesConcurrentTriggers(t *testing.T) {
	sched, _, fc := newTestPipeline(t)

	release := make(chan struct{})
	fc.mu.Lock()
	fc.blockEvents = release
	fc.mu.Unlock()

	sched.Enqueue(incremental(1000, event.SourceMouseMove))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Flush(context.Background())
	}()

	// Wait for the first send to be in flight on the collector.
	require.Eventually(t, func() bool {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		return fc.active == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Triggers arriving mid-flight coalesce into one pending flush.
	sched.Enqueue(incremental(1010, event.SourceMouseMove))
	sched.Enqueue(incremental(1020, event.SourceMouseMove))
	sched.Flush(context.Background())
	sched.Flush(context.Background())

	close(release)
	wg.Wait()

	_, eventCalls, batches := fc.snapshot()
	assert.Equal(t, 2, eventCalls, "in-flight send plus exactly one coalesced flush")
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].events, 1)
	assert.Len(t, batches[1].events, 2)

	fc.mu.Lock()
	maxActive := fc.maxActive
	fc.mu.Unlock()
	assert.Equal(t, 1, maxActive, "never parallel sends of the same session")
}

func TestRun_SizeThresholdTriggersImmediateFlush(t *testing.T) {
	fc, srv := newFakeCollector(t)
	cfg := testConfig(srv)
	cfg.BatchSize = 3
	cfg.FlushIntervalMs = 60_000 // timer effectively off

	client := api.New(srv.URL)
	mgr := NewManager(cfg, client, testMetadata, Options{
		Draw:   testutil.FixedDraw(0.0),
		Logger: discardLogger(),
	})
	require.True(t, mgr.Activate(context.Background()))

	sched := NewScheduler(cfg, mgr, client, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	for i := 0; i < 3; i++ {
		sched.Enqueue(incremental(int64(1000+i), event.SourceMouseMove))
	}

	require.Eventually(t, func() bool {
		_, eventCalls, _ := fc.snapshot()
		return eventCalls >= 1
	}, 2*time.Second, 5*time.Millisecond, "threshold flush must not wait for the timer")

	cancel()
	<-done

	_, _, batches := fc.snapshot()
	require.NotEmpty(t, batches)
	assert.Len(t, batches[0].events, 3)
}

func TestRun_TimerFlush(t *testing.T) {
	fc, srv := newFakeCollector(t)
	cfg := testConfig(srv)
	cfg.BatchSize = 1000
	cfg.FlushIntervalMs = 100

	client := api.New(srv.URL)
	mgr := NewManager(cfg, client, testMetadata, Options{
		Draw:   testutil.FixedDraw(0.0),
		Logger: discardLogger(),
	})
	require.True(t, mgr.Activate(context.Background()))

	sched := NewScheduler(cfg, mgr, client, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	sched.Enqueue(incremental(1000, event.SourceScroll))

	require.Eventually(t, func() bool {
		_, eventCalls, _ := fc.snapshot()
		return eventCalls >= 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestForceFlush_SurvivesCancelledContext(t *testing.T) {
	sched, _, fc := newTestPipeline(t)

	sched.Enqueue(incremental(1000, event.SourceInput))
	sched.Enqueue(incremental(1010, event.SourceInput))

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // teardown path: parent context already gone

	sched.ForceFlush(ctx)

	_, eventCalls, batches := fc.snapshot()
	require.Equal(t, 1, eventCalls)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].events, 2)
}

func TestRun_CancellationForceFlushesRemainder(t *testing.T) {
	sched, _, fc := newTestPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	sched.Enqueue(incremental(1000, event.SourceMutation))
	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	_, _, batches := fc.snapshot()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].events, 1)
}
