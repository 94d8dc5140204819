// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
)

const (
	// TransportTCP is the TCP (optionally TLS wrapped) transport.
	TransportTCP = "tcp"

	// TransportQUIC is the QUIC transport.
	TransportQUIC = "quic"
)

// Target describes the remote endpoint of a connection attempt.  A Target
// is immutable once a dial has started.
type Target struct {
	// Address is the server host name or IP address.
	Address string

	// Port is the server port.
	Port uint16

	// Transport selects the transport, TransportTCP or TransportQUIC.
	// An empty value means TransportTCP.
	Transport string

	// UseTLS enables TLS on the TCP transport.  QUIC is always TLS.
	UseTLS bool

	// VerifyServer controls server certificate validation.
	VerifyServer bool

	// ClientCertPath and ClientKeyPath optionally point to a client
	// certificate/key pair presented to the server.
	ClientCertPath string
	ClientKeyPath  string
}

// String returns the host:port representation of the Target.
func (t *Target) String() string {
	return net.JoinHostPort(t.Address, strconv.Itoa(int(t.Port)))
}

func (t *Target) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         t.Address,
		InsecureSkipVerify: !t.VerifyServer,
		MinVersion:         tls.VersionTLS12,
	}
	if t.ClientCertPath != "" && t.ClientKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(t.ClientCertPath, t.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load client keypair: %v", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// Dial establishes the transport for the given Target.  Failures are
// returned as a TransportError.  The returned net.Conn is ready for a
// Session handshake.
func Dial(ctx context.Context, t *Target) (net.Conn, error) {
	switch t.Transport {
	case "", TransportTCP:
	case TransportQUIC:
		return dialQUIC(ctx, t)
	default:
		return nil, newTransportError("unknown transport: %v", t.Transport)
	}

	d := new(net.Dialer)
	conn, err := d.DialContext(ctx, "tcp", t.String())
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if !t.UseTLS {
		return conn, nil
	}

	tlsCfg, err := t.tlsConfig()
	if err != nil {
		conn.Close()
		return nil, &TransportError{Err: err}
	}
	tlsConn := tls.Client(conn, tlsCfg)
	if err = tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, newTransportError("TLS handshake failed: %v", err)
	}
	return tlsConn, nil
}
