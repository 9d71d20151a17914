package daemon

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akiselev/debugger-cli/internal/ipc"
	"github.com/akiselev/debugger-cli/internal/session"
)

func TestStreamOutputSkipsSnapshotOverlap(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	snapshot := []session.OutputEvent{
		{Seq: 0, Category: "stdout", Output: "one\n"},
		{Seq: 1, Category: "stdout", Output: "two\n"},
	}

	// An event appended while the subscription was registered arrives on
	// both the snapshot and the live channel.
	live := make(chan session.OutputEvent, 2)
	live <- session.OutputEvent{Seq: 1, Category: "stdout", Output: "two\n"}
	live <- session.OutputEvent{Seq: 2, Category: "stdout", Output: "three\n"}
	close(live)

	done := make(chan struct{})
	go func() {
		defer close(done)
		streamOutput(&connection{conn: server}, snapshot, live, make(chan struct{}))
	}()

	var seqs []int
	for i := 0; i < 3; i++ {
		var ev session.OutputEvent
		require.NoError(t, ipc.ReadFrame(client, &ev))
		seqs = append(seqs, ev.Seq)
	}
	assert.Equal(t, []int{0, 1, 2}, seqs)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish after the live channel closed")
	}
}

func TestStreamOutputStopsOnShutdown(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	live := make(chan session.OutputEvent)
	stop := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		streamOutput(&connection{conn: server}, []session.OutputEvent{{Seq: 0, Output: "hi\n"}}, live, stop)
	}()

	var ev session.OutputEvent
	require.NoError(t, ipc.ReadFrame(client, &ev))
	assert.Equal(t, "hi\n", ev.Output)

	close(stop)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop on shutdown")
	}
}
