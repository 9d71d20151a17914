package dap

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"
)

// DefaultRequestTimeout bounds a request's wait for its response when the
// caller's context carries no deadline of its own.
const DefaultRequestTimeout = 30 * time.Second

// eventQueueWarnDepth is the queue depth above which the reader starts
// complaining. The queue itself never rejects events; the warning is the
// "monitored" half of unbounded-but-monitored.
const eventQueueWarnDepth = 1024

// ClientConfig contains configuration for creating a Client.
type ClientConfig struct {
	// Transport carries DAP messages to and from the adapter.
	Transport Transport

	// RequestTimeout is the default bounded wait per request. Zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// Logger for client operations.
	Logger logr.Logger
}

// Client is a DAP protocol client: it correlates requests to responses by
// sequence number and surfaces out-of-band events on an ordered queue fed by
// a dedicated background reader. The reader's sole job is to decode one
// message at a time and either complete a pending request or enqueue an
// event; it never blocks on session logic.
type Client struct {
	transport Transport
	log       logr.Logger

	seqCounter *sequenceCounter
	pending    *pendingTable

	requestTimeout time.Duration

	// events delivers adapter events in arrival order. Closed when the
	// reader exits; a closed channel is how consumers observe adapter death.
	events chan dap.EventMessage

	// queue buffers events between the reader and the events channel so the
	// reader never blocks on a slow consumer.
	queueMu   sync.Mutex
	queue     []dap.EventMessage
	queueCond chan struct{}

	// initializedCh is closed when the adapter's initialized event arrives.
	initializedCh   chan struct{}
	initializedOnce sync.Once

	// done is closed when the reader exits for any reason.
	done     chan struct{}
	doneOnce sync.Once

	// readErr records why the reader stopped.
	readErrMu sync.Mutex
	readErr   error

	// capabilities is populated by Initialize.
	capsMu       sync.Mutex
	capabilities dap.Capabilities
}

// NewClient creates a Client over the given transport and starts its
// background reader.
func NewClient(config ClientConfig) *Client {
	log := config.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	c := &Client{
		transport:      config.Transport,
		log:            log,
		seqCounter:     newSequenceCounter(),
		pending:        newPendingTable(),
		requestTimeout: timeout,
		events:         make(chan dap.EventMessage),
		queueCond:      make(chan struct{}, 1),
		initializedCh:  make(chan struct{}),
		done:           make(chan struct{}),
	}

	go c.readLoop()
	go c.pumpEvents()

	return c
}

// Events returns the ordered adapter event stream. The channel is closed when
// the adapter connection ends, after all buffered events have been delivered.
func (c *Client) Events() <-chan dap.EventMessage {
	return c.events
}

// Done returns a channel closed when the background reader has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the reader stopped. It is nil until Done is closed, and
// ErrAdapterExited when the adapter closed its stream without a disconnect.
func (c *Client) Err() error {
	c.readErrMu.Lock()
	defer c.readErrMu.Unlock()
	return c.readErr
}

// Capabilities returns the adapter capabilities from the initialize handshake.
func (c *Client) Capabilities() dap.Capabilities {
	c.capsMu.Lock()
	defer c.capsMu.Unlock()
	return c.capabilities
}

// PendingRequests returns the number of requests currently awaiting a
// response.
func (c *Client) PendingRequests() int {
	return c.pending.Len()
}

// Close force-closes the transport. Safe to call more than once.
func (c *Client) Close() error {
	return c.transport.Close()
}

// readLoop continuously decodes messages and routes them: responses complete
// pending slots, events go to the queue.
func (c *Client) readLoop() {
	defer func() {
		c.pending.Drain()
		c.closeQueue()
	}()

	for {
		msg, readErr := c.transport.ReadMessage()
		if readErr != nil {
			c.recordReadErr(readErr)
			return
		}

		switch m := msg.(type) {
		case dap.ResponseMessage:
			resp := m.GetResponse()
			if waiter := c.pending.Take(resp.RequestSeq); waiter != nil {
				waiter.responseChan <- m
			} else {
				// Late response for a request that already timed out or was
				// abandoned. Per protocol it is dropped, never an error.
				c.log.V(1).Info("Discarding response with no waiter",
					"requestSeq", resp.RequestSeq,
					"command", resp.Command)
			}

		case dap.EventMessage:
			if _, ok := m.(*dap.InitializedEvent); ok {
				c.initializedOnce.Do(func() { close(c.initializedCh) })
				continue
			}
			c.enqueueEvent(m)

		default:
			// Reverse requests and unknown kinds are outside this client's
			// contract; log and keep reading.
			c.log.V(1).Info("Ignoring unexpected DAP message", "seq", msg.GetSeq())
		}
	}
}

func (c *Client) recordReadErr(readErr error) {
	c.readErrMu.Lock()
	defer c.readErrMu.Unlock()

	if errors.Is(readErr, io.EOF) || errors.Is(readErr, ErrTransportClosed) {
		c.readErr = ErrAdapterExited
		c.log.V(1).Info("Adapter stream ended", "cause", readErr.Error())
		return
	}

	c.readErr = readErr
	c.log.Error(readErr, "Adapter read failed")
}

// enqueueEvent appends to the unbounded queue and nudges the pump.
func (c *Client) enqueueEvent(ev dap.EventMessage) {
	c.queueMu.Lock()
	c.queue = append(c.queue, ev)
	depth := len(c.queue)
	c.queueMu.Unlock()

	if depth == eventQueueWarnDepth {
		c.log.Info("Adapter event queue is backing up", "depth", depth)
	}

	select {
	case c.queueCond <- struct{}{}:
	default:
	}
}

func (c *Client) closeQueue() {
	c.doneOnce.Do(func() { close(c.done) })
}

// pumpEvents drains the queue into the events channel in order, then closes
// the channel once the reader is done and the queue is empty.
func (c *Client) pumpEvents() {
	for {
		c.queueMu.Lock()
		var next dap.EventMessage
		if len(c.queue) > 0 {
			next = c.queue[0]
			c.queue = c.queue[1:]
		}
		c.queueMu.Unlock()

		if next != nil {
			c.events <- next
			continue
		}

		select {
		case <-c.queueCond:
		case <-c.done:
			// Reader is gone; deliver anything it enqueued last.
			c.queueMu.Lock()
			remaining := c.queue
			c.queue = nil
			c.queueMu.Unlock()
			for _, ev := range remaining {
				c.events <- ev
			}
			close(c.events)
			return
		}
	}
}

// roundTrip sends a request and waits for the matching response, the request
// timeout, the caller's context, or transport death, whichever happens first.
func (c *Client) roundTrip(ctx context.Context, req dap.RequestMessage) (dap.ResponseMessage, error) {
	select {
	case <-c.done:
		return nil, ErrSessionTerminated
	default:
	}

	request := req.GetRequest()
	request.Type = "request"
	seq := c.seqCounter.Next()
	request.Seq = seq

	pending := &pendingRequest{
		seq:          seq,
		responseChan: make(chan dap.ResponseMessage, 1),
		command:      request.Command,
	}

	// The slot must exist before the bytes hit the wire: a fast adapter can
	// answer before WriteMessage returns.
	c.pending.Add(pending)

	if writeErr := c.transport.WriteMessage(req); writeErr != nil {
		c.pending.Remove(seq)
		return nil, writeErr
	}

	waitCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	select {
	case resp, ok := <-pending.responseChan:
		if !ok {
			return nil, ErrSessionTerminated
		}
		response := resp.GetResponse()
		if !response.Success {
			return nil, &ProtocolError{
				Command: request.Command,
				Message: responseErrorMessage(resp),
			}
		}
		return resp, nil

	case <-waitCtx.Done():
		c.pending.Remove(seq)
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			c.log.V(1).Info("Request timed out", "command", request.Command, "seq", seq)
			return nil, ErrRequestTimeout
		}
		return nil, waitCtx.Err()
	}
}

// responseErrorMessage extracts the most specific failure message a response
// carries: the structured error body when present, otherwise the response's
// short message.
func responseErrorMessage(resp dap.ResponseMessage) string {
	if errResp, ok := resp.(*dap.ErrorResponse); ok {
		if errResp.Body.Error != nil && errResp.Body.Error.Format != "" {
			return errResp.Body.Error.Format
		}
	}
	return resp.GetResponse().Message
}

// send transmits a request without registering a waiter. Used for disconnect,
// where the adapter may exit before answering.
func (c *Client) send(req dap.RequestMessage) error {
	request := req.GetRequest()
	request.Type = "request"
	request.Seq = c.seqCounter.Next()
	return c.transport.WriteMessage(req)
}
