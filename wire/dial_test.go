// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDialTCP(t *testing.T) {
	require := require.New(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	defer l.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	addr := l.Addr().(*net.TCPAddr)
	target := &Target{Address: "127.0.0.1", Port: uint16(addr.Port)}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, target)
	require.NoError(err)
	defer conn.Close()

	// A freshly dialed connection accepts the first write.
	_, err = conn.Write([]byte("hello"))
	require.NoError(err)

	peer := <-accepted
	defer peer.Close()
	buf := make([]byte, 5)
	_, err = peer.Read(buf)
	require.NoError(err)
	require.Equal([]byte("hello"), buf)
}

func TestDialUnreachable(t *testing.T) {
	require := require.New(t)

	// Grab a port and close the listener so the dial is refused.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(l.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = Dial(ctx, &Target{Address: "127.0.0.1", Port: uint16(addr.Port)})
	require.Error(err)
	var tErr *TransportError
	require.ErrorAs(err, &tErr)
}

func TestDialUnknownTransport(t *testing.T) {
	require := require.New(t)

	_, err := Dial(context.Background(), &Target{Address: "127.0.0.1", Port: 1, Transport: "carrier-pigeon"})
	require.Error(err)
	var tErr *TransportError
	require.ErrorAs(err, &tErr)
}
