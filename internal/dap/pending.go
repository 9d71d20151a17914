package dap

import (
	"sync"

	"github.com/google/go-dap"
)

// pendingRequest tracks a request that is awaiting a response.
type pendingRequest struct {
	// seq is the sequence number assigned to the outbound request.
	seq int

	// responseChan receives the matching response. Buffered with capacity 1
	// so the reader never blocks delivering it.
	responseChan chan dap.ResponseMessage

	// command is the request command (for error reporting).
	command string
}

// pendingTable is a thread-safe table of pending requests keyed by sequence
// number. The completion slot for a request must be added here before the
// request bytes are written to the transport; adding it afterwards races with
// a fast adapter's response.
type pendingTable struct {
	mu       sync.Mutex
	requests map[int]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		requests: make(map[int]*pendingRequest),
	}
}

// Add registers a pending request.
func (m *pendingTable) Add(req *pendingRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.seq] = req
}

// Take retrieves and removes a pending request. Returns nil if no request is
// registered for the sequence number, which is how late responses for
// already-timed-out requests end up silently discarded.
func (m *pendingTable) Take(seq int) *pendingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[seq]
	if !ok {
		return nil
	}

	delete(m.requests, seq)
	return req
}

// Remove drops a pending request without completing it (timeout or write
// failure). Returns false if the slot was already consumed.
func (m *pendingTable) Remove(seq int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[seq]; !ok {
		return false
	}
	delete(m.requests, seq)
	return true
}

// Len returns the number of pending requests.
func (m *pendingTable) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Drain closes every response channel and clears the table. Used when the
// transport dies so all waiters observe termination instead of hanging.
func (m *pendingTable) Drain() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, req := range m.requests {
		close(req.responseChan)
	}

	m.requests = make(map[int]*pendingRequest)
}

// sequenceCounter provides thread-safe sequence number generation.
type sequenceCounter struct {
	mu  sync.Mutex
	seq int
}

func newSequenceCounter() *sequenceCounter {
	return &sequenceCounter{seq: 0}
}

// Next returns the next sequence number. Sequence numbers start at 1 and are
// strictly increasing for the lifetime of the client.
func (c *sequenceCounter) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *sequenceCounter) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}
