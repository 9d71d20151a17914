package dap_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	godap "github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akiselev/debugger-cli/internal/dap"
	"github.com/akiselev/debugger-cli/internal/daptest"
)

func newTestClient(t *testing.T) (*dap.Client, *daptest.Adapter) {
	t.Helper()

	adapter, transport := daptest.New()
	client := dap.NewClient(dap.ClientConfig{
		Transport:      transport,
		RequestTimeout: 5 * time.Second,
		Logger:         testr.New(t),
	})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, adapter
}

func TestClientHandshake(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	ctx := context.Background()

	caps, initErr := client.Initialize(ctx, "mock")
	require.NoError(t, initErr)
	assert.True(t, caps.SupportsConfigurationDoneRequest)
	assert.Equal(t, caps, client.Capabilities())

	launchErr := client.Launch(ctx, json.RawMessage(`{"program":"/bin/true"}`))
	require.NoError(t, launchErr)

	waitErr := client.WaitInitialized(ctx)
	require.NoError(t, waitErr)

	bps, bpErr := client.SetBreakpoints(ctx, "/src/main.go", []godap.SourceBreakpoint{{Line: 10}, {Line: 20}})
	require.NoError(t, bpErr)
	require.Len(t, bps, 2)
	assert.True(t, bps[0].Verified)
	assert.Equal(t, 10, bps[0].Line)

	configErr := client.ConfigurationDone(ctx)
	require.NoError(t, configErr)
}

func TestClientRequestTimeoutKeepsSessionAlive(t *testing.T) {
	t.Parallel()

	adapter, transport := daptest.New()
	client := dap.NewClient(dap.ClientConfig{
		Transport:      transport,
		RequestTimeout: 100 * time.Millisecond,
		Logger:         testr.New(t),
	})
	defer client.Close()

	adapter.StallCommand("threads")

	ctx := context.Background()
	_, threadsErr := client.Threads(ctx)
	assert.ErrorIs(t, threadsErr, dap.ErrRequestTimeout)

	// The timed-out request's slot is gone.
	assert.Equal(t, 0, client.PendingRequests())

	// The session itself is still usable.
	_, initErr := client.Initialize(ctx, "mock")
	assert.NoError(t, initErr)
}

func TestClientProtocolError(t *testing.T) {
	t.Parallel()

	client, adapter := newTestClient(t)
	adapter.FailCommand("evaluate", "could not evaluate expression")

	_, evalErr := client.Evaluate(context.Background(), "x+1", 1000, "repl")
	require.Error(t, evalErr)
	assert.True(t, dap.IsProtocolError(evalErr))
	assert.Contains(t, evalErr.Error(), "could not evaluate expression")

	// An adapter-level failure does not poison the connection.
	_, threadsErr := client.Threads(context.Background())
	assert.NoError(t, threadsErr)
}

func TestClientEventsArriveInOrder(t *testing.T) {
	t.Parallel()

	client, adapter := newTestClient(t)

	adapter.EmitOutput("stdout", "one\n")
	adapter.EmitOutput("stdout", "two\n")
	adapter.EmitOutput("stderr", "three\n")

	var outputs []string
	for len(outputs) < 3 {
		select {
		case ev := <-client.Events():
			outputEv, ok := ev.(*godap.OutputEvent)
			require.True(t, ok, "expected OutputEvent, got %T", ev)
			outputs = append(outputs, outputEv.Body.Output)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for output events")
		}
	}

	assert.Equal(t, []string{"one\n", "two\n", "three\n"}, outputs)
}

func TestClientAdapterDeath(t *testing.T) {
	t.Parallel()

	client, adapter := newTestClient(t)

	adapter.CloseAbruptly()

	select {
	case <-client.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not observe adapter death")
	}

	assert.ErrorIs(t, client.Err(), dap.ErrAdapterExited)

	// The event channel closes once the buffered events are delivered.
	select {
	case _, open := <-client.Events():
		assert.False(t, open, "event channel should be closed")
	case <-time.After(5 * time.Second):
		t.Fatal("event channel never closed")
	}

	// New requests fail fast.
	_, threadsErr := client.Threads(context.Background())
	assert.ErrorIs(t, threadsErr, dap.ErrSessionTerminated)
}

func TestClientPendingRequestsFailOnAdapterDeath(t *testing.T) {
	t.Parallel()

	adapter, transport := daptest.New()
	client := dap.NewClient(dap.ClientConfig{
		Transport:      transport,
		RequestTimeout: 10 * time.Second,
		Logger:         testr.New(t),
	})
	defer client.Close()

	adapter.StallCommand("threads")

	errCh := make(chan error, 1)
	go func() {
		_, threadsErr := client.Threads(context.Background())
		errCh <- threadsErr
	}()

	// Let the request reach the adapter, then kill it.
	require.Eventually(t, func() bool {
		return client.PendingRequests() == 1
	}, 5*time.Second, 10*time.Millisecond)
	adapter.CloseAbruptly()

	select {
	case threadsErr := <-errCh:
		assert.ErrorIs(t, threadsErr, dap.ErrSessionTerminated)
	case <-time.After(5 * time.Second):
		t.Fatal("pending request never failed")
	}
}

func TestClientDisconnect(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	ctx := context.Background()

	_, initErr := client.Initialize(ctx, "mock")
	require.NoError(t, initErr)

	disconnectErr := client.Disconnect(ctx, true, 2*time.Second)
	assert.NoError(t, disconnectErr)

	select {
	case <-client.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not shut down after disconnect")
	}
}

func TestClientResumeAndStop(t *testing.T) {
	t.Parallel()

	client, adapter := newTestClient(t)
	ctx := context.Background()

	adapter.StopOnResume(&daptest.StopScript{Reason: "step", ThreadID: 1})

	stepErr := client.Next(ctx, 1)
	require.NoError(t, stepErr)

	select {
	case ev := <-client.Events():
		stopped, ok := ev.(*godap.StoppedEvent)
		require.True(t, ok, "expected StoppedEvent, got %T", ev)
		assert.Equal(t, "step", stopped.Body.Reason)
		assert.Equal(t, 1, stopped.Body.ThreadId)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stopped event")
	}
}

// newRawClient pairs a client with the server end of an in-memory pipe,
// letting a test answer requests out of band instead of through the mock
// adapter's serve loop.
func newRawClient(t *testing.T, timeout time.Duration) (*dap.Client, dap.Transport) {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	client := dap.NewClient(dap.ClientConfig{
		Transport:      dap.NewConnTransport(clientConn),
		RequestTimeout: timeout,
		Logger:         testr.New(t),
	})
	server := dap.NewConnTransport(serverConn)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func okFor(r *godap.Request) godap.Response {
	return godap.Response{
		ProtocolMessage: godap.ProtocolMessage{Seq: r.Seq, Type: "response"},
		Command:         r.Command,
		RequestSeq:      r.Seq,
		Success:         true,
	}
}

func TestClientCorrelatesOutOfOrderResponses(t *testing.T) {
	t.Parallel()

	client, server := newRawClient(t, 5*time.Second)

	// Collect both in-flight requests, then answer them in reverse arrival
	// order: the first request's response reaches the client last.
	go func() {
		var reqs []*godap.Request
		for len(reqs) < 2 {
			msg, readErr := server.ReadMessage()
			if readErr != nil {
				return
			}
			if req, ok := msg.(godap.RequestMessage); ok {
				reqs = append(reqs, req.GetRequest())
			}
		}
		for i := len(reqs) - 1; i >= 0; i-- {
			r := reqs[i]
			switch r.Command {
			case "threads":
				_ = server.WriteMessage(&godap.ThreadsResponse{
					Response: okFor(r),
					Body: godap.ThreadsResponseBody{
						Threads: []godap.Thread{{Id: 1, Name: "main"}},
					},
				})
			case "stackTrace":
				_ = server.WriteMessage(&godap.StackTraceResponse{
					Response: okFor(r),
					Body: godap.StackTraceResponseBody{
						StackFrames: []godap.StackFrame{{Id: 100, Name: "main.main"}},
						TotalFrames: 1,
					},
				})
			}
		}
	}()

	threadsCh := make(chan []godap.Thread, 1)
	threadsErrCh := make(chan error, 1)
	go func() {
		threads, threadsErr := client.Threads(context.Background())
		threadsCh <- threads
		threadsErrCh <- threadsErr
	}()

	frames, _, traceErr := client.StackTrace(context.Background(), 1, 0, 0)
	require.NoError(t, traceErr)
	require.Len(t, frames, 1)
	assert.Equal(t, "main.main", frames[0].Name)

	select {
	case threadsErr := <-threadsErrCh:
		require.NoError(t, threadsErr)
		threads := <-threadsCh
		require.Len(t, threads, 1)
		assert.Equal(t, "main", threads[0].Name)
	case <-time.After(5 * time.Second):
		t.Fatal("threads request never completed")
	}

	assert.Equal(t, 0, client.PendingRequests())
}

func TestClientDropsResponseArrivingAfterTimeout(t *testing.T) {
	t.Parallel()

	client, server := newRawClient(t, 150*time.Millisecond)

	requests := make(chan *godap.Request, 2)
	go func() {
		for {
			msg, readErr := server.ReadMessage()
			if readErr != nil {
				return
			}
			if req, ok := msg.(godap.RequestMessage); ok {
				requests <- req.GetRequest()
			}
		}
	}()

	// No answer within the timeout: the caller gives up and the slot is
	// reclaimed.
	_, threadsErr := client.Threads(context.Background())
	assert.ErrorIs(t, threadsErr, dap.ErrRequestTimeout)
	assert.Equal(t, 0, client.PendingRequests())

	var stale *godap.Request
	select {
	case stale = <-requests:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the adapter side")
	}

	// The answer shows up after the caller has given up. The client reads and
	// discards it; the write completing proves the reader consumed the frame.
	writeErr := server.WriteMessage(&godap.ThreadsResponse{
		Response: okFor(stale),
		Body: godap.ThreadsResponseBody{
			Threads: []godap.Thread{{Id: 1, Name: "main"}},
		},
	})
	require.NoError(t, writeErr)
	assert.Equal(t, 0, client.PendingRequests())

	// The connection is unaffected: a fresh request with a prompt answer
	// succeeds, and the stale response never surfaces as its result.
	answered := make(chan struct{})
	go func() {
		defer close(answered)
		select {
		case req := <-requests:
			_ = server.WriteMessage(&godap.ThreadsResponse{
				Response: okFor(req),
				Body: godap.ThreadsResponseBody{
					Threads: []godap.Thread{{Id: 2, Name: "worker"}},
				},
			})
		case <-time.After(5 * time.Second):
		}
	}()

	threads, retryErr := client.Threads(context.Background())
	require.NoError(t, retryErr)
	require.Len(t, threads, 1)
	assert.Equal(t, "worker", threads[0].Name)
	assert.Equal(t, 0, client.PendingRequests())

	select {
	case <-answered:
	case <-time.After(5 * time.Second):
		t.Fatal("retry was never answered")
	}
}
