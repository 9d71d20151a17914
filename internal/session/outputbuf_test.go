package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputBufferCountLimitEvictsOldest(t *testing.T) {
	t.Parallel()

	buf := NewOutputBuffer(3, 0)
	for i := 1; i <= 5; i++ {
		buf.Append("stdout", fmt.Sprintf("line %d\n", i))
	}

	assert.Equal(t, 3, buf.Len())

	events := buf.Drain()
	require.Len(t, events, 3)
	assert.Equal(t, "line 3\n", events[0].Output)
	assert.Equal(t, "line 4\n", events[1].Output)
	assert.Equal(t, "line 5\n", events[2].Output)

	// Ordinals survive eviction.
	assert.Equal(t, 2, events[0].Seq)
	assert.Equal(t, 4, events[2].Seq)
}

func TestOutputBufferByteLimitEvictsOldest(t *testing.T) {
	t.Parallel()

	buf := NewOutputBuffer(0, 10)
	buf.Append("stdout", "aaaa") // 4 bytes
	buf.Append("stdout", "bbbb") // 8 bytes
	buf.Append("stdout", "cccc") // 12 -> evict "aaaa"

	assert.Equal(t, 2, buf.Len())
	assert.Equal(t, 8, buf.Bytes())

	events := buf.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, "bbbb", events[0].Output)
	assert.Equal(t, "cccc", events[1].Output)
}

func TestOutputBufferSingleOversizedEvent(t *testing.T) {
	t.Parallel()

	buf := NewOutputBuffer(0, 4)
	buf.Append("stdout", "toolongforthebuffer")

	// An event larger than the whole budget cannot be kept.
	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, 0, buf.Bytes())
}

func TestOutputBufferDrainClearsAndPreservesOrder(t *testing.T) {
	t.Parallel()

	buf := NewOutputBuffer(100, 0)
	buf.Append("stdout", "one\n")
	buf.Append("stderr", "two\n")

	events := buf.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, "stdout", events[0].Category)
	assert.Equal(t, "stderr", events[1].Category)
	assert.True(t, events[0].Seq < events[1].Seq)

	assert.Empty(t, buf.Drain())
	assert.Equal(t, 0, buf.Bytes())

	// The buffer keeps working after a drain.
	buf.Append("stdout", "three\n")
	assert.Equal(t, 1, buf.Len())
}

func TestOutputBufferTail(t *testing.T) {
	t.Parallel()

	buf := NewOutputBuffer(10, 0)
	for i := 1; i <= 5; i++ {
		buf.Append("stdout", fmt.Sprintf("line %d\n", i))
	}

	tail := buf.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "line 4\n", tail[0].Output)
	assert.Equal(t, "line 5\n", tail[1].Output)

	// Tail does not clear.
	assert.Equal(t, 5, buf.Len())

	assert.Len(t, buf.Tail(0), 5)
	assert.Len(t, buf.Tail(100), 5)
}

func TestOutputBufferSubscribe(t *testing.T) {
	t.Parallel()

	buf := NewOutputBuffer(10, 0)
	buf.Append("stdout", "before\n")

	snapshot, ch, cancel := buf.Subscribe(16)
	defer cancel()

	require.Len(t, snapshot, 1)
	assert.Equal(t, "before\n", snapshot[0].Output)

	buf.Append("stdout", "after\n")

	select {
	case ev := <-ch:
		assert.Equal(t, "after\n", ev.Output)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the live event")
	}

	cancel()
	buf.Append("stdout", "ignored\n")
	select {
	case ev := <-ch:
		t.Fatalf("cancelled subscriber received %q", ev.Output)
	default:
	}
}
