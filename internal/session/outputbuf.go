package session

import (
	"sync"
	"time"

	"github.com/akiselev/debugger-cli/internal/syncmap"
)

// OutputEvent is one chunk of captured debuggee output.
type OutputEvent struct {
	// Seq is the event's ordinal; strictly increasing for the lifetime of
	// the buffer, surviving eviction.
	Seq int `json:"seq"`

	// Category is the adapter's output category (stdout, stderr, console).
	Category string `json:"category"`

	// Output is the raw text, newlines included.
	Output string `json:"output"`

	// Timestamp records when the event was buffered.
	Timestamp time.Time `json:"timestamp"`
}

// OutputBuffer is a bounded, evicting store of debuggee output captured while
// no caller is attached. It enforces two limits, a maximum event count and a
// maximum total byte size; inserting past either evicts oldest-first until
// both hold again. Live subscribers receive every appended event in addition
// to the buffering.
type OutputBuffer struct {
	mu         sync.Mutex
	events     []OutputEvent
	totalBytes int
	nextSeq    int

	maxEvents int
	maxBytes  int

	subscribers syncmap.Map[int, chan OutputEvent]
	nextSubID   int
}

// NewOutputBuffer creates a buffer with the given limits. Non-positive limits
// disable the corresponding bound.
func NewOutputBuffer(maxEvents, maxBytes int) *OutputBuffer {
	return &OutputBuffer{
		maxEvents: maxEvents,
		maxBytes:  maxBytes,
	}
}

// Append buffers one output chunk, evicting oldest events as needed, and
// fans it out to subscribers. A subscriber that cannot keep up misses events
// rather than blocking the event path.
func (b *OutputBuffer) Append(category, output string) OutputEvent {
	b.mu.Lock()
	ev := OutputEvent{
		Seq:       b.nextSeq,
		Category:  category,
		Output:    output,
		Timestamp: time.Now(),
	}
	b.nextSeq++

	b.events = append(b.events, ev)
	b.totalBytes += len(output)
	b.evictLocked()
	b.mu.Unlock()

	b.subscribers.Range(func(_ int, ch chan OutputEvent) bool {
		select {
		case ch <- ev:
		default:
		}
		return true
	})

	return ev
}

// evictLocked drops oldest events until both limits hold.
func (b *OutputBuffer) evictLocked() {
	drop := 0
	bytes := b.totalBytes
	for drop < len(b.events) {
		overCount := b.maxEvents > 0 && len(b.events)-drop > b.maxEvents
		overBytes := b.maxBytes > 0 && bytes > b.maxBytes
		if !overCount && !overBytes {
			break
		}
		bytes -= len(b.events[drop].Output)
		drop++
	}
	if drop > 0 {
		b.events = append([]OutputEvent(nil), b.events[drop:]...)
		b.totalBytes = bytes
	}
}

// Drain returns all buffered events in insertion order and clears the buffer.
// Limits are unaffected.
func (b *OutputBuffer) Drain() []OutputEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.events
	b.events = nil
	b.totalBytes = 0
	return out
}

// Tail returns the last n events without clearing. n <= 0 returns everything.
func (b *OutputBuffer) Tail(n int) []OutputEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.events
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return append([]OutputEvent(nil), events...)
}

// Len returns the number of buffered events.
func (b *OutputBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Bytes returns the total byte size of buffered output.
func (b *OutputBuffer) Bytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalBytes
}

// Subscribe registers a live event channel and returns the currently buffered
// events plus a cancel func. The subscription is registered before the
// snapshot is taken, so together they cover every event without gaps; an
// event appended during registration can show up on both paths, and Seq lets
// the consumer skip the overlap.
func (b *OutputBuffer) Subscribe(buffer int) (snapshot []OutputEvent, ch <-chan OutputEvent, cancel func()) {
	if buffer <= 0 {
		buffer = 256
	}
	eventCh := make(chan OutputEvent, buffer)

	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subscribers.Store(id, eventCh)
	snapshot = append([]OutputEvent(nil), b.events...)
	b.mu.Unlock()

	cancel = func() {
		b.subscribers.Delete(id)
	}
	return snapshot, eventCh, cancel
}
