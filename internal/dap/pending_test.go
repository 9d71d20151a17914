package dap

import (
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingTableAddTakeRemove(t *testing.T) {
	t.Parallel()

	table := newPendingTable()

	req1 := &pendingRequest{seq: 10, responseChan: make(chan dap.ResponseMessage, 1), command: "continue"}
	req2 := &pendingRequest{seq: 11, responseChan: make(chan dap.ResponseMessage, 1), command: "threads"}

	table.Add(req1)
	table.Add(req2)
	assert.Equal(t, 2, table.Len())

	got := table.Take(10)
	require.NotNil(t, got)
	assert.Equal(t, "continue", got.command)
	assert.Equal(t, 1, table.Len())

	// Take consumes the slot: a second response for the same seq finds nobody.
	assert.Nil(t, table.Take(10))

	assert.True(t, table.Remove(11))
	assert.False(t, table.Remove(11))
	assert.Equal(t, 0, table.Len())
}

func TestPendingTableTakeUnknownSeq(t *testing.T) {
	t.Parallel()

	table := newPendingTable()
	assert.Nil(t, table.Take(999))
}

func TestPendingTableDrain(t *testing.T) {
	t.Parallel()

	table := newPendingTable()
	req := &pendingRequest{seq: 1, responseChan: make(chan dap.ResponseMessage, 1), command: "next"}
	table.Add(req)

	table.Drain()
	assert.Equal(t, 0, table.Len())

	// Waiters observe the closed channel instead of hanging.
	_, ok := <-req.responseChan
	assert.False(t, ok)
}

func TestSequenceCounter(t *testing.T) {
	t.Parallel()

	counter := newSequenceCounter()
	assert.Equal(t, 0, counter.Current())

	assert.Equal(t, 1, counter.Next())
	assert.Equal(t, 2, counter.Next())
	assert.Equal(t, 3, counter.Next())
	assert.Equal(t, 3, counter.Current())
}

func TestSequenceCounterConcurrent(t *testing.T) {
	t.Parallel()

	counter := newSequenceCounter()

	const goroutines = 10
	const perGoroutine = 100

	done := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < perGoroutine; j++ {
				counter.Next()
			}
		}()
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}

	assert.Equal(t, goroutines*perGoroutine, counter.Current())
}
