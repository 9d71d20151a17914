package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// ErrDaemonNotRunning is returned when no session host is reachable on the
// socket. Callers treat this as "spawn one", not as a session failure.
var ErrDaemonNotRunning = errors.New("no debug session host is running")

// spawnWaitTimeout bounds how long ConnectOrSpawn waits for a freshly
// spawned host to come up.
const spawnWaitTimeout = 5 * time.Second

// Client is the caller's connection to the session host. One request, one
// response, ordered per connection.
type Client struct {
	conn net.Conn
	log  logr.Logger
}

// Connect dials an already-running session host.
func Connect(socketPath string, log logr.Logger) (*Client, error) {
	conn, dialErr := Dial(socketPath)
	if dialErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonNotRunning, dialErr)
	}
	return &Client{conn: conn, log: log}, nil
}

// ConnectOrSpawn dials the session host, spawning one via spawn when none is
// reachable and polling until it accepts connections.
func ConnectOrSpawn(ctx context.Context, socketPath string, spawn func() error, log logr.Logger) (*Client, error) {
	if client, connectErr := Connect(socketPath, log); connectErr == nil {
		return client, nil
	}

	log.V(1).Info("No session host reachable, spawning one", "socket", socketPath)
	if spawnErr := spawn(); spawnErr != nil {
		return nil, fmt.Errorf("failed to spawn session host: %w", spawnErr)
	}

	waitCtx, cancel := context.WithTimeout(ctx, spawnWaitTimeout)
	defer cancel()

	conn, dialErr := retry.DoWithData(
		func() (net.Conn, error) {
			return Dial(socketPath)
		},
		retry.Context(waitCtx),
		retry.Attempts(0),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if dialErr != nil {
		return nil, fmt.Errorf("%w: spawned host never came up: %v", ErrDaemonNotRunning, dialErr)
	}

	return &Client{conn: conn, log: log}, nil
}

// Call sends one command and waits for its response. Failures reported by
// the host come back as *Error with the host's code and message.
func (c *Client) Call(cmd Command) (json.RawMessage, error) {
	req := Request{
		ID:      uuid.NewString(),
		Command: cmd,
	}

	if writeErr := WriteFrame(c.conn, req); writeErr != nil {
		return nil, writeErr
	}

	var resp Response
	if readErr := ReadFrame(c.conn, &resp); readErr != nil {
		return nil, fmt.Errorf("session host connection failed: %w", readErr)
	}

	if resp.ID != req.ID {
		return nil, fmt.Errorf("response correlation mismatch: sent %s, got %s", req.ID, resp.ID)
	}

	if !resp.Success {
		if resp.Error != nil {
			return nil, resp.Error
		}
		return nil, &Error{Code: CodeInternalError, Message: "host reported failure without details"}
	}

	return resp.Result, nil
}

// ReadEvent reads one streamed frame after a subscribe-style Call switched
// the connection to streaming mode.
func (c *Client) ReadEvent(v any) error {
	return ReadFrame(c.conn, v)
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ErrorCode extracts the structured code from an error returned by Call, or
// "" when err carries none.
func ErrorCode(err error) string {
	var ipcErr *Error
	if errors.As(err, &ipcErr) {
		return ipcErr.Code
	}
	return ""
}
