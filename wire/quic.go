// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"context"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// alpnRCP is the ALPN protocol identifier used on the QUIC transport.
const alpnRCP = "rcp/1"

// QuicConn wraps a QUIC connection and a single stream and implements
// net.Conn.
type QuicConn struct {
	Stream *quic.Stream
	Conn   *quic.Conn
}

var _ net.Conn = (*QuicConn)(nil)

// LocalAddr implements net.Conn.
func (q *QuicConn) LocalAddr() net.Addr {
	return q.Conn.LocalAddr()
}

// RemoteAddr implements net.Conn.
func (q *QuicConn) RemoteAddr() net.Addr {
	return q.Conn.RemoteAddr()
}

// SetDeadline implements net.Conn.
func (q *QuicConn) SetDeadline(t time.Time) error {
	return q.Stream.SetDeadline(t)
}

// SetReadDeadline implements net.Conn.
func (q *QuicConn) SetReadDeadline(t time.Time) error {
	return q.Stream.SetReadDeadline(t)
}

// SetWriteDeadline implements net.Conn.
func (q *QuicConn) SetWriteDeadline(t time.Time) error {
	return q.Stream.SetWriteDeadline(t)
}

// Close implements net.Conn.
func (q *QuicConn) Close() error {
	return q.Stream.Close()
}

// Read implements net.Conn.
func (q *QuicConn) Read(b []byte) (n int, err error) {
	return q.Stream.Read(b)
}

// Write implements net.Conn.
func (q *QuicConn) Write(b []byte) (n int, err error) {
	return q.Stream.Write(b)
}

func dialQUIC(ctx context.Context, t *Target) (net.Conn, error) {
	tlsCfg, err := t.tlsConfig()
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	tlsCfg.NextProtos = []string{alpnRCP}

	conn, err := quic.DialAddr(ctx, t.String(), tlsCfg, nil)
	if err != nil {
		return nil, newTransportError("QUIC dial failed: %v", err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "stream open failed")
		return nil, newTransportError("QUIC stream open failed: %v", err)
	}
	return &QuicConn{Conn: conn, Stream: stream}, nil
}
