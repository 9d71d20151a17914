package dap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
)

// Transport provides an abstraction for DAP message I/O over different
// connection types. Implementations must be safe for concurrent use by
// multiple goroutines for reading and writing, but individual reads and
// writes may not be concurrent with each other.
type Transport interface {
	// ReadMessage reads the next DAP protocol message from the transport.
	// This method blocks until a complete message is available.
	ReadMessage() (dap.Message, error)

	// WriteMessage writes a DAP protocol message to the transport.
	WriteMessage(msg dap.Message) error

	// Close closes the transport, releasing any associated resources.
	// After Close is called, any blocked ReadMessage or WriteMessage calls
	// should return with an error.
	Close() error
}

// connTransport implements Transport over any net.Conn (TCP or an in-memory
// pipe in tests).
type connTransport struct {
	conn   net.Conn
	reader *bufio.Reader

	// writeMu protects concurrent writes to the connection
	writeMu sync.Mutex

	// closed indicates whether the transport has been closed
	closed bool
	mu     sync.Mutex
}

// NewConnTransport creates a new Transport backed by a network connection.
func NewConnTransport(conn net.Conn) Transport {
	return &connTransport{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// DialTCP establishes a TCP connection to the specified address and returns a
// Transport.
func DialTCP(ctx context.Context, address string) (Transport, error) {
	var d net.Dialer
	conn, dialErr := d.DialContext(ctx, "tcp", address)
	if dialErr != nil {
		return nil, fmt.Errorf("failed to dial TCP %s: %w", address, dialErr)
	}

	return NewConnTransport(conn), nil
}

func (t *connTransport) ReadMessage() (dap.Message, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	return ReadMessage(t.reader)
}

func (t *connTransport) WriteMessage(msg dap.Message) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	return WriteMessage(t.conn, msg)
}

func (t *connTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	t.closed = true
	return t.conn.Close()
}

// stdioTransport implements Transport over the stdin/stdout pipes of a
// spawned adapter process. Note the naming is from the adapter's point of
// view: we read from its stdout and write to its stdin.
type stdioTransport struct {
	reader *bufio.Reader
	stdout io.ReadCloser
	stdin  io.WriteCloser

	// writeMu protects concurrent writes
	writeMu sync.Mutex

	// closed indicates whether the transport has been closed
	closed bool
	mu     sync.Mutex
}

// NewStdioTransport creates a new Transport reading adapter output from
// stdout and writing requests to stdin.
func NewStdioTransport(stdout io.ReadCloser, stdin io.WriteCloser) Transport {
	return &stdioTransport{
		reader: bufio.NewReader(stdout),
		stdout: stdout,
		stdin:  stdin,
	}
}

func (t *stdioTransport) ReadMessage() (dap.Message, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	return ReadMessage(t.reader)
}

func (t *stdioTransport) WriteMessage(msg dap.Message) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	return WriteMessage(t.stdin, msg)
}

func (t *stdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	t.closed = true

	var firstErr error
	if closeErr := t.stdin.Close(); closeErr != nil {
		firstErr = fmt.Errorf("failed to close adapter stdin: %w", closeErr)
	}
	if closeErr := t.stdout.Close(); closeErr != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close adapter stdout: %w", closeErr)
	}

	return firstErr
}
