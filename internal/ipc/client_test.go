package ipc

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost answers each request on conn with the response produced by
// answer.
func fakeHost(t *testing.T, conn net.Conn, answer func(Request) Response) {
	t.Helper()
	go func() {
		defer conn.Close()
		for {
			var req Request
			if readErr := ReadFrame(conn, &req); readErr != nil {
				return
			}
			if writeErr := WriteFrame(conn, answer(req)); writeErr != nil {
				return
			}
		}
	}()
}

func newPipeClient(t *testing.T, answer func(Request) Response) *Client {
	t.Helper()
	callerSide, hostSide := net.Pipe()
	fakeHost(t, hostSide, answer)
	client := &Client{conn: callerSide, log: testr.New(t)}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCallRoundTrip(t *testing.T) {
	t.Parallel()

	client := newPipeClient(t, func(req Request) Response {
		assert.Equal(t, CommandStatus, req.Command.Type)
		return SuccessResponse(req.ID, map[string]string{"state": "Idle"})
	})

	result, callErr := client.Call(Command{Type: CommandStatus})
	require.NoError(t, callErr)
	assert.JSONEq(t, `{"state":"Idle"}`, string(result))
}

func TestCallSurfacesHostError(t *testing.T) {
	t.Parallel()

	client := newPipeClient(t, func(req Request) Response {
		return ErrorResponse(req.ID, CodeInvalidState, "cannot continue in state Idle")
	})

	_, callErr := client.Call(Command{Type: CommandContinue})
	require.Error(t, callErr)
	assert.Equal(t, CodeInvalidState, ErrorCode(callErr))
	assert.Contains(t, callErr.Error(), "cannot continue")
}

func TestCallRejectsCorrelationMismatch(t *testing.T) {
	t.Parallel()

	client := newPipeClient(t, func(Request) Response {
		return SuccessResponse("some-other-id", nil)
	})

	_, callErr := client.Call(Command{Type: CommandStatus})
	require.Error(t, callErr)
	assert.Contains(t, callErr.Error(), "correlation mismatch")
}

func TestConnectFailsCleanlyWithoutHost(t *testing.T) {
	t.Parallel()

	_, connectErr := Connect(filepath.Join(t.TempDir(), "nope.sock"), testr.New(t))
	assert.ErrorIs(t, connectErr, ErrDaemonNotRunning)
}

func TestErrorCodeOnForeignError(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ErrorCode(assert.AnError))
}
