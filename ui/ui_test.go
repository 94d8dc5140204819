// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

package ui

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimpleAdapter(t *testing.T) {
	require := require.New(t)

	var gotFrame *Frame
	var gotOld, gotNew string
	var gotReason error
	a := &Simple{
		OnFrameFn: func(f *Frame) { gotFrame = f },
		OnStateFn: func(oldState, newState string, reason error) {
			gotOld, gotNew, gotReason = oldState, newState, reason
		},
	}

	f := &Frame{X: 1, Y: 2, Width: 3, Height: 4, Encoding: "raw"}
	a.HandleFrame(f)
	require.Equal(f, gotFrame)

	a.OnStateChange("Connecting", "Active", nil)
	require.Equal("Connecting", gotOld)
	require.Equal("Active", gotNew)
	require.NoError(gotReason)

	failure := errors.New("keepalive timed out")
	a.OnStateChange("Active", "Disconnecting", failure)
	require.Equal(failure, gotReason)

	// Nil callbacks must not panic.
	empty := &Simple{}
	empty.HandleFrame(f)
	empty.OnStateChange("Active", "Disconnecting", nil)
}

func TestEventBasedDelivery(t *testing.T) {
	require := require.New(t)

	a := NewEventBased(4)
	defer a.Close()

	a.HandleFrame(&Frame{Encoding: "raw", Payload: []byte{0x01}})
	a.OnStateChange("Disconnected", "Connecting", nil)
	failure := errors.New("connection refused")
	a.OnStateChange("Connecting", "Failed", failure)

	ev := <-a.EventSink()
	fe, ok := ev.(*FrameEvent)
	require.True(ok)
	require.Equal("raw", fe.Frame.Encoding)

	ev = <-a.EventSink()
	se, ok := ev.(*StateChangeEvent)
	require.True(ok)
	require.Equal("Connecting", se.NewState)
	require.NoError(se.Reason)

	se = (<-a.EventSink()).(*StateChangeEvent)
	require.Equal("Failed", se.NewState)
	require.Equal(failure, se.Reason)
}

func TestEventBasedDropsFramesWhenFull(t *testing.T) {
	require := require.New(t)

	a := NewEventBased(2)
	defer a.Close()

	for i := 0; i < 5; i++ {
		a.HandleFrame(&Frame{Encoding: fmt.Sprintf("raw-%d", i)})
	}

	// Only the first two fit, the rest were dropped without blocking.
	require.Len(a.events, 2)
	fe := (<-a.EventSink()).(*FrameEvent)
	require.Equal("raw-0", fe.Frame.Encoding)
	fe = (<-a.EventSink()).(*FrameEvent)
	require.Equal("raw-1", fe.Frame.Encoding)
}

func TestEventBasedStateChangeEvicts(t *testing.T) {
	require := require.New(t)

	a := NewEventBased(2)
	defer a.Close()

	a.HandleFrame(&Frame{Encoding: "raw-0"})
	a.HandleFrame(&Frame{Encoding: "raw-1"})
	a.OnStateChange("Active", "Disconnecting", nil)

	// The oldest frame was evicted for the state change.
	fe := (<-a.EventSink()).(*FrameEvent)
	require.Equal("raw-1", fe.Frame.Encoding)
	se := (<-a.EventSink()).(*StateChangeEvent)
	require.Equal("Disconnecting", se.NewState)
}

func TestEventBasedClose(t *testing.T) {
	require := require.New(t)

	a := NewEventBased(2)
	a.Close()
	a.Close()

	// Delivery after close is discarded.
	a.HandleFrame(&Frame{Encoding: "raw"})
	a.OnStateChange("Active", "Disconnected", nil)

	_, ok := <-a.EventSink()
	require.False(ok)
}
