// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package ui decouples the session core from frame presentation.  The
// session core hands decoded display updates and state transitions to an
// Adapter and never blocks on the frontend.
package ui

import (
	"fmt"
	"sync"
)

// Frame is a decoded display update.
type Frame struct {
	// X and Y are the update region origin in display coordinates.
	X, Y uint32

	// Width and Height are the update region dimensions.
	Width, Height uint32

	// Encoding identifies the payload pixel encoding.
	Encoding string

	// Payload is the encoded pixel data.
	Payload []byte
}

// String returns a string representation of the Frame.
func (f *Frame) String() string {
	return fmt.Sprintf("Frame: %dx%d+%d+%d %v (%v bytes)", f.Width, f.Height, f.X, f.Y, f.Encoding, len(f.Payload))
}

// Adapter is the interface the session core delivers output through.
// Implementations must not block, slow consumers buffer or drop on their
// side of the boundary.
type Adapter interface {
	// HandleFrame delivers a display update.
	HandleFrame(f *Frame)

	// OnStateChange delivers a session state transition.  reason is the
	// terminal error that forced the transition, or nil when it was a
	// normal progression or user requested.
	OnStateChange(oldState, newState string, reason error)
}

// Simple is a callback based Adapter for frontends that render inline.
// Nil callbacks are skipped.
type Simple struct {
	// OnFrameFn, if set, is called for each display update.
	OnFrameFn func(f *Frame)

	// OnStateFn, if set, is called for each state transition.
	OnStateFn func(oldState, newState string, reason error)
}

// HandleFrame implements Adapter.
func (a *Simple) HandleFrame(f *Frame) {
	if a.OnFrameFn != nil {
		a.OnFrameFn(f)
	}
}

// OnStateChange implements Adapter.
func (a *Simple) OnStateChange(oldState, newState string, reason error) {
	if a.OnStateFn != nil {
		a.OnStateFn(oldState, newState, reason)
	}
}

// Event is the generic event sent over the event listener channel.
type Event interface {
	// String returns a string representation of the Event.
	String() string
}

// FrameEvent is the event sent when a display update arrives.
type FrameEvent struct {
	// Frame is the decoded display update.
	Frame *Frame
}

// String returns a string representation of the FrameEvent.
func (e *FrameEvent) String() string {
	return e.Frame.String()
}

// StateChangeEvent is the event sent when the session state changes.
type StateChangeEvent struct {
	// OldState is the state being left.
	OldState string

	// NewState is the state being entered.
	NewState string

	// Reason is the terminal error that forced the transition, or nil.
	Reason error
}

// String returns a string representation of the StateChangeEvent.
func (e *StateChangeEvent) String() string {
	if e.Reason != nil {
		return fmt.Sprintf("StateChange: %v -> %v (%v)", e.OldState, e.NewState, e.Reason)
	}
	return fmt.Sprintf("StateChange: %v -> %v", e.OldState, e.NewState)
}

const defaultEventBuffer = 64

// EventBased is a channel based Adapter for frontends that run their own
// event loop.  Frame events are dropped when the consumer falls behind,
// state change events evict the oldest buffered event instead.
type EventBased struct {
	sync.Mutex

	events chan Event
	closed bool
}

// NewEventBased creates an EventBased adapter with the given event buffer
// capacity, or the default capacity if 0.
func NewEventBased(capacity int) *EventBased {
	if capacity <= 0 {
		capacity = defaultEventBuffer
	}
	return &EventBased{
		events: make(chan Event, capacity),
	}
}

// EventSink returns the channel events are delivered on.  The channel is
// closed when the adapter is closed.
func (a *EventBased) EventSink() <-chan Event {
	return a.events
}

// HandleFrame implements Adapter.
func (a *EventBased) HandleFrame(f *Frame) {
	a.deliver(&FrameEvent{Frame: f}, false)
}

// OnStateChange implements Adapter.
func (a *EventBased) OnStateChange(oldState, newState string, reason error) {
	a.deliver(&StateChangeEvent{OldState: oldState, NewState: newState, Reason: reason}, true)
}

func (a *EventBased) deliver(e Event, mustDeliver bool) {
	a.Lock()
	defer a.Unlock()
	if a.closed {
		return
	}
	for {
		select {
		case a.events <- e:
			return
		default:
		}
		if !mustDeliver {
			return
		}
		// Evict the oldest buffered event to make room.
		select {
		case <-a.events:
		default:
		}
	}
}

// Close closes the adapter and its event channel.  Calling Close more
// than once is a no-op.
func (a *EventBased) Close() {
	a.Lock()
	defer a.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	close(a.events)
}
