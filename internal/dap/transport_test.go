package dap

import (
	"bufio"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnTransport(t *testing.T) {
	t.Parallel()

	t.Run("round trip over pipe", func(t *testing.T) {
		t.Parallel()

		clientConn, serverConn := net.Pipe()
		clientTransport := NewConnTransport(clientConn)
		serverTransport := NewConnTransport(serverConn)
		defer clientTransport.Close()
		defer serverTransport.Close()

		request := &dap.InitializeRequest{
			Request: dap.Request{
				ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"},
				Command:         "initialize",
			},
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			writeErr := clientTransport.WriteMessage(request)
			assert.NoError(t, writeErr)
		}()

		msg, readErr := serverTransport.ReadMessage()
		require.NoError(t, readErr)
		wg.Wait()

		decoded, ok := msg.(*dap.InitializeRequest)
		require.True(t, ok)
		assert.Equal(t, "initialize", decoded.Command)
	})

	t.Run("closed transport rejects IO", func(t *testing.T) {
		t.Parallel()

		clientConn, serverConn := net.Pipe()
		defer serverConn.Close()

		transport := NewConnTransport(clientConn)
		closeErr := transport.Close()
		require.NoError(t, closeErr)

		writeErr := transport.WriteMessage(&dap.InitializeRequest{})
		assert.ErrorIs(t, writeErr, ErrTransportClosed)

		_, readErr := transport.ReadMessage()
		assert.ErrorIs(t, readErr, ErrTransportClosed)

		// Double close should not panic
		assert.NoError(t, transport.Close())
	})
}

func TestStdioTransport(t *testing.T) {
	t.Parallel()

	t.Run("round trip over pipes", func(t *testing.T) {
		t.Parallel()

		// adapterIn is what the adapter reads; adapterOut is what it writes.
		adapterInReader, adapterInWriter := io.Pipe()
		adapterOutReader, adapterOutWriter := io.Pipe()

		transport := NewStdioTransport(adapterOutReader, adapterInWriter)
		defer transport.Close()

		request := &dap.ThreadsRequest{
			Request: dap.Request{
				ProtocolMessage: dap.ProtocolMessage{Seq: 3, Type: "request"},
				Command:         "threads",
			},
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			writeErr := transport.WriteMessage(request)
			assert.NoError(t, writeErr)
		}()

		// The "adapter" reads the request off its stdin...
		received := readOneMessage(t, adapterInReader)
		wg.Wait()
		assert.Equal(t, 3, received.GetSeq())

		// ...and answers on its stdout.
		wg.Add(1)
		go func() {
			defer wg.Done()
			writeErr := WriteMessage(adapterOutWriter, &dap.ThreadsResponse{
				Response: dap.Response{
					ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "response"},
					Command:         "threads",
					RequestSeq:      3,
					Success:         true,
				},
			})
			assert.NoError(t, writeErr)
		}()

		msg, readErr := transport.ReadMessage()
		require.NoError(t, readErr)
		wg.Wait()

		resp, ok := msg.(*dap.ThreadsResponse)
		require.True(t, ok)
		assert.Equal(t, 3, resp.RequestSeq)
	})

	t.Run("closed transport rejects IO", func(t *testing.T) {
		t.Parallel()

		stdoutReader, _ := io.Pipe()
		_, stdinWriter := io.Pipe()

		transport := NewStdioTransport(stdoutReader, stdinWriter)
		closeErr := transport.Close()
		require.NoError(t, closeErr)

		writeErr := transport.WriteMessage(&dap.InitializeRequest{})
		assert.ErrorIs(t, writeErr, ErrTransportClosed)

		// Double close should be safe
		assert.NoError(t, transport.Close())
	})
}

func readOneMessage(t *testing.T, r io.Reader) dap.Message {
	t.Helper()

	msg, readErr := ReadMessage(bufio.NewReader(r))
	require.NoError(t, readErr)
	return msg
}
