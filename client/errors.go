// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is the error returned when an operation fails due to
	// the client not currently being connected to the server.
	ErrNotConnected = errors.New("client/conn: not connected to the server")

	// ErrShutdown is the error returned when the connection is closed due
	// to a call to Shutdown().
	ErrShutdown = errors.New("shutdown requested")

	// ErrKeepaliveTimeout is the error used to indicate that the server
	// stopped answering keepalive probes.
	ErrKeepaliveTimeout = errors.New("client/conn: keepalive timed out")

	errDisconnectRequested = errors.New("disconnect requested")
)

// ConnectError is the error used to indicate that a connect attempt has
// failed.
type ConnectError struct {
	// Err is the original error that caused the connect attempt to fail.
	Err error
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("client/conn: connect error: %v", e.Err)
}

// Unwrap returns the wrapped error.
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ProtocolError is the error used to indicate that the connection was
// closed due to wire protocol related reasons.
type ProtocolError struct {
	// Err is the original error that triggered connection termination.
	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("client/conn: protocol error: %v", e.Err)
}

// Unwrap returns the wrapped error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func newProtocolError(f string, a ...interface{}) error {
	return &ProtocolError{Err: fmt.Errorf(f, a...)}
}
