package capture

import (
	"sync"

	"github.com/temps-sh/replaykit/internal/event"
)

// buffer accumulates raw events between flushes.
//
// Handoff is an atomic swap: the flusher takes the whole slice and the
// buffer starts empty, so a batch is either fully handed off or fully
// retained, never split.
//
// Thread-safety: append may be called from any goroutine while the
// scheduler swaps.
type buffer struct {
	mu     sync.Mutex
	events []event.Raw
}

func newBuffer() *buffer {
	return &buffer{
		events: make([]event.Raw, 0, 64), // Pre-allocate for typical bursts
	}
}

// append adds one event and returns the new length, so the caller can
// check the size threshold under the same observation.
func (b *buffer) append(ev event.Raw) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return len(b.events)
}

// swap atomically takes the accumulated events, leaving the buffer empty.
// Returns nil when nothing accumulated.
func (b *buffer) swap() []event.Raw {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	out := b.events
	b.events = make([]event.Raw, 0, 64)
	return out
}

// len returns the current buffered event count.
func (b *buffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
