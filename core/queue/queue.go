// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package queue implements the bounded outbound event queue.
package queue

import (
	"errors"
	"sync"
)

// ErrClosed is the error returned when operating on a closed queue.
var ErrClosed = errors.New("queue: closed")

// Class is the scheduling class of a queued event.
type Class uint8

const (
	// ClassPointer is the class of coalescible pointer events.  Entries of
	// this class may be dropped, oldest first, when the queue is full.
	ClassPointer Class = iota

	// ClassKeyboard is the class of keyboard events.  Entries of this class
	// are never dropped, the producer is blocked instead.
	ClassKeyboard

	// ClassControl is the class of window/session control events.  Entries
	// of this class are never dropped, the producer is blocked instead.
	ClassControl
)

// Entry is an event queue entry.
type Entry struct {
	Class Class
	Value interface{}
}

// Queue is a bounded FIFO event queue with per-class overflow behavior.
type Queue struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	entries  []*Entry
	capacity int
	closed   bool
}

// Enqueue appends e to the queue in arrival order.  When the queue is full,
// the oldest ClassPointer entry is discarded to make room.  If no such
// entry exists, a ClassPointer e is discarded outright, while other classes
// block until room is available or the queue is closed.
func (q *Queue) Enqueue(e *Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed {
			return ErrClosed
		}
		if len(q.entries) < q.capacity {
			break
		}
		if q.dropOldestPointer() {
			continue
		}
		if e.Class == ClassPointer {
			// Full of undroppable entries, the pointer event loses.
			return nil
		}
		q.notFull.Wait()
	}

	q.entries = append(q.entries, e)
	q.notEmpty.Signal()
	return nil
}

// Dequeue removes and returns the oldest entry, blocking until one is
// available or the queue is closed.
func (q *Queue) Dequeue() (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.entries) == 0 {
		if q.closed {
			return nil, ErrClosed
		}
		q.notEmpty.Wait()
	}

	e := q.entries[0]
	copy(q.entries, q.entries[1:])
	q.entries[len(q.entries)-1] = nil
	q.entries = q.entries[:len(q.entries)-1]
	q.notFull.Signal()
	return e, nil
}

// Len returns the current queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close marks the queue closed and wakes all blocked producers and
// consumers.  Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// dropOldestPointer discards the oldest ClassPointer entry, returning true
// if one was found.  The caller must hold q.mu.
func (q *Queue) dropOldestPointer() bool {
	for i, e := range q.entries {
		if e.Class == ClassPointer {
			copy(q.entries[i:], q.entries[i+1:])
			q.entries[len(q.entries)-1] = nil
			q.entries = q.entries[:len(q.entries)-1]
			return true
		}
	}
	return false
}

// New creates a new Queue with the given capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		panic("queue: invalid capacity")
	}
	q := &Queue{
		entries:  make([]*Entry, 0, capacity),
		capacity: capacity,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}
