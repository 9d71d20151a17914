package ipc

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	req := Request{
		ID: "req-1",
		Command: Command{
			Type:     CommandBreakpointAdd,
			Location: "main.go:10",
			HitCount: 3,
		},
	}

	require.NoError(t, WriteFrame(&buf, req))

	var decoded Request
	require.NoError(t, ReadFrame(&buf, &decoded))
	assert.Equal(t, req, decoded)
}

func TestFrameCleanEOF(t *testing.T) {
	t.Parallel()

	var decoded Request
	readErr := ReadFrame(bytes.NewReader(nil), &decoded)
	assert.ErrorIs(t, readErr, io.EOF)
}

func TestFrameTornPayload(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], 100)
	buf.Write(header[:])
	buf.WriteString(`{"id":`)

	var decoded Request
	readErr := ReadFrame(&buf, &decoded)
	require.Error(t, readErr)
	assert.NotErrorIs(t, readErr, io.EOF)
}

func TestFrameTooLarge(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], maxFrameSize+1)
	buf.Write(header[:])

	var decoded Request
	readErr := ReadFrame(&buf, &decoded)
	assert.ErrorIs(t, readErr, ErrFrameTooLarge)
}

func TestResponseBuilders(t *testing.T) {
	t.Parallel()

	ok := SuccessResponse("abc", map[string]int{"threads": 2})
	assert.True(t, ok.Success)
	assert.JSONEq(t, `{"threads":2}`, string(ok.Result))
	assert.Nil(t, ok.Error)

	empty := SuccessResponse("abc", nil)
	assert.True(t, empty.Success)
	assert.JSONEq(t, `{}`, string(empty.Result))

	fail := ErrorResponse("abc", CodeSessionNotActive, "no active session")
	assert.False(t, fail.Success)
	require.NotNil(t, fail.Error)
	assert.Equal(t, CodeSessionNotActive, fail.Error.Code)
}

func TestListenRemovesStaleSocket(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "debugger.sock")

	// A leftover socket file from a crashed host: exists but nobody accepts.
	require.NoError(t, os.WriteFile(socketPath, nil, 0o600))

	listener, listenErr := Listen(socketPath)
	require.NoError(t, listenErr)
	defer listener.Close()
}

func TestListenRejectsLiveSocket(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "debugger.sock")

	live, listenErr := Listen(socketPath)
	require.NoError(t, listenErr)
	defer live.Close()

	go func() {
		for {
			conn, acceptErr := live.Accept()
			if acceptErr != nil {
				return
			}
			conn.Close()
		}
	}()

	_, secondErr := Listen(socketPath)
	assert.Error(t, secondErr)
}
