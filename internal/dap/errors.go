package dap

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportClosed is returned when attempting to use a closed transport.
	ErrTransportClosed = errors.New("transport is closed")

	// ErrRequestTimeout is returned when a request's bounded wait expires
	// before the matching response arrives. The adapter and transport are
	// left intact; only this request fails.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrSessionTerminated is returned for requests that were still pending
	// when the adapter connection ended, and for requests issued afterwards.
	ErrSessionTerminated = errors.New("session terminated")

	// ErrAdapterExited is the reader's verdict when the adapter closes its
	// output stream: end-of-file with no terminated event is an unexpected
	// adapter death, not a protocol exchange.
	ErrAdapterExited = errors.New("adapter exited unexpectedly")

	// ErrAdapterConnectionTimeout is returned when a TCP-mode adapter fails
	// to become reachable within the connection timeout.
	ErrAdapterConnectionTimeout = errors.New("debug adapter connection timeout")
)

// ProtocolError is an adapter-level failure: the adapter answered the request
// with success=false. The session stays usable; the adapter's own message is
// carried to the caller.
type ProtocolError struct {
	// Command is the DAP command that failed.
	Command string

	// Message is the adapter's error message.
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("DAP request %q failed", e.Command)
	}
	return fmt.Sprintf("DAP request %q failed: %s", e.Command, e.Message)
}

// IsProtocolError reports whether err carries an adapter success=false reply.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
