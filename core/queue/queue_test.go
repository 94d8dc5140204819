// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrder(t *testing.T) {
	require := require.New(t)

	q := New(8)
	for i := 0; i < 5; i++ {
		require.NoError(q.Enqueue(&Entry{Class: ClassKeyboard, Value: i}))
	}
	for i := 0; i < 5; i++ {
		e, err := q.Dequeue()
		require.NoError(err)
		require.Equal(i, e.Value)
	}
}

func TestQueueDropsOldestPointerFirst(t *testing.T) {
	require := require.New(t)

	q := New(3)
	require.NoError(q.Enqueue(&Entry{Class: ClassPointer, Value: "move0"}))
	require.NoError(q.Enqueue(&Entry{Class: ClassKeyboard, Value: "key0"}))
	require.NoError(q.Enqueue(&Entry{Class: ClassPointer, Value: "move1"}))

	// Queue is full: the oldest pointer move is evicted, never the key
	// event enqueued after it.
	require.NoError(q.Enqueue(&Entry{Class: ClassPointer, Value: "move2"}))

	var got []interface{}
	for i := 0; i < 3; i++ {
		e, err := q.Dequeue()
		require.NoError(err)
		got = append(got, e.Value)
	}
	require.Equal([]interface{}{"key0", "move1", "move2"}, got)
}

func TestQueuePointerLosesToUndroppable(t *testing.T) {
	require := require.New(t)

	q := New(2)
	require.NoError(q.Enqueue(&Entry{Class: ClassControl, Value: "ctl"}))
	require.NoError(q.Enqueue(&Entry{Class: ClassKeyboard, Value: "key"}))

	// No pointer entry to evict; the new pointer event is discarded
	// without blocking.
	require.NoError(q.Enqueue(&Entry{Class: ClassPointer, Value: "move"}))
	require.Equal(2, q.Len())

	e, err := q.Dequeue()
	require.NoError(err)
	require.Equal("ctl", e.Value)
}

func TestQueueKeyboardBackpressure(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	q := New(1)
	require.NoError(q.Enqueue(&Entry{Class: ClassKeyboard, Value: "key0"}))

	enqueued := make(chan error, 1)
	go func() {
		enqueued <- q.Enqueue(&Entry{Class: ClassKeyboard, Value: "key1"})
	}()

	select {
	case <-enqueued:
		t.Fatal("keyboard enqueue did not block on a full queue")
	case <-time.After(50 * time.Millisecond):
	}

	e, err := q.Dequeue()
	require.NoError(err)
	assert.Equal("key0", e.Value)
	require.NoError(<-enqueued)

	e, err = q.Dequeue()
	require.NoError(err)
	assert.Equal("key1", e.Value)
}

func TestQueueClose(t *testing.T) {
	require := require.New(t)

	q := New(1)
	require.NoError(q.Enqueue(&Entry{Class: ClassControl, Value: "ctl"}))

	blocked := make(chan error, 1)
	go func() {
		blocked <- q.Enqueue(&Entry{Class: ClassKeyboard, Value: "key"})
	}()
	time.Sleep(20 * time.Millisecond)
	q.Close()
	require.Equal(ErrClosed, <-blocked)

	q.Close() // idempotent

	// Entries already queued drain before the closed error surfaces.
	e, err := q.Dequeue()
	require.NoError(err)
	require.Equal("ctl", e.Value)

	_, err = q.Dequeue()
	require.Equal(ErrClosed, err)
}
