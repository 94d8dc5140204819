// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

package client

// State is the session lifecycle state.  All transitions are serialized
// through the connection worker.
type State uint8

const (
	// StateDisconnected is the initial state, and the state after an
	// orderly teardown.
	StateDisconnected State = iota

	// StateConnecting covers transport establishment and the protocol
	// handshake.
	StateConnecting

	// StateAuthenticating covers the credential exchange.
	StateAuthenticating

	// StateActive is the established session, display updates flow and
	// input events are accepted.
	StateActive

	// StateDisconnecting is an orderly teardown in progress.
	StateDisconnecting

	// StateFailed is entered when a connect or authentication attempt
	// fails.  A new Connect() call leaves this state.
	StateFailed
)

// String returns a string representation of the State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateAuthenticating:
		return "Authenticating"
	case StateActive:
		return "Active"
	case StateDisconnecting:
		return "Disconnecting"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
