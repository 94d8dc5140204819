// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is the error returned when a Session operation is
	// attempted in a state that does not permit it.
	ErrInvalidState = errors.New("wire/session: invalid state")

	// ErrMessageSize is the error returned when a frame violates the
	// message size bounds.
	ErrMessageSize = errors.New("wire/session: invalid message size")

	// ErrUnexpectedSequence is the error returned when an inbound command
	// does not carry the expected sequence number.
	ErrUnexpectedSequence = errors.New("wire/session: unexpected sequence number")

	// ErrSessionMismatch is the error returned when an inbound command
	// carries a foreign session identifier.
	ErrSessionMismatch = errors.New("wire/session: session identifier mismatch")

	// ErrUnsupportedVersion is the error returned when the peer speaks an
	// incompatible protocol version.
	ErrUnsupportedVersion = errors.New("wire/session: unsupported protocol version")
)

// TransportError is the error used to indicate a transport level failure,
// such as an unreachable host, a dial timeout, or a failed TLS handshake.
type TransportError struct {
	// Err is the original error that caused the transport failure.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("wire/transport: %v", e.Err)
}

// Unwrap returns the wrapped error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

func newTransportError(f string, a ...interface{}) error {
	return &TransportError{Err: fmt.Errorf(f, a...)}
}

// HandshakeRejectedError is the error returned when the peer refuses the
// session handshake.
type HandshakeRejectedError struct {
	// Reason is the reason sent by the peer, if any.
	Reason string
}

// Error implements the error interface.
func (e *HandshakeRejectedError) Error() string {
	if e.Reason == "" {
		return "wire/session: handshake rejected by peer"
	}
	return fmt.Sprintf("wire/session: handshake rejected by peer: %v", e.Reason)
}
