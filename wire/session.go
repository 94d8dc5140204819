// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package wire implements the RCP wire protocol transport framing.
package wire

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openrcp/rcpclient/wire/commands"
)

const (
	// MaxMsgLen is the maximum length of a framed wire protocol message.
	MaxMsgLen = 1048576

	frameOverhead = 4
)

const (
	stateInit        uint32 = 0
	stateEstablished uint32 = 1
	stateInvalid     uint32 = 2
)

// Session is a wire protocol session bound to a single transport
// connection.  Exactly one reader duty and one writer duty may use a
// Session concurrently; each direction owns its own sequence counter.
type Session struct {
	conn net.Conn

	id          commands.SessionID
	clientName  string
	authMethods []string

	// Each mutex serializes one direction of frame traffic.
	txMutex sync.Mutex
	rxMutex sync.Mutex

	txSeq uint64
	rxSeq uint64

	state       uint32
	isInitiator bool
	closeOnce   sync.Once
}

// SessionConfig is the configuration used to create new Sessions.
type SessionConfig struct {
	// ClientName is the client identifier sent in the handshake.
	ClientName string

	// AuthMethods is the list of authentication methods the client is
	// prepared to use, most preferred first.
	AuthMethods []string
}

// NewSession creates a new Session with a freshly generated session
// identifier.
func NewSession(cfg *SessionConfig, isInitiator bool) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("wire/session: missing SessionConfig")
	}

	s := &Session{
		clientName:  cfg.ClientName,
		authMethods: cfg.AuthMethods,
		state:       stateInit,
		isInitiator: isInitiator,
	}
	if isInitiator {
		var err error
		if s.id, err = commands.NewSessionID(rand.Reader); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SessionID returns the session identifier.
func (s *Session) SessionID() commands.SessionID {
	return s.id
}

// Initialize takes an established net.Conn, binds it to the Session, and
// conducts the protocol version handshake.
func (s *Session) Initialize(conn net.Conn) error {
	if atomic.LoadUint32(&s.state) != stateInit {
		return ErrInvalidState
	}
	s.conn = conn

	var err error
	if s.isInitiator {
		err = s.handshakeInitiator()
	} else {
		err = s.handshakeResponder()
	}
	if err != nil {
		atomic.StoreUint32(&s.state, stateInvalid)
		return err
	}
	atomic.StoreUint32(&s.state, stateEstablished)
	return nil
}

func (s *Session) handshakeInitiator() error {
	req := &commands.HandshakeRequest{
		Version:    commands.ProtocolVersion,
		ClientName: s.clientName,
		Methods:    s.authMethods,
	}
	if err := s.sendCommandImpl(req); err != nil {
		return err
	}

	raw, err := s.recvCommandImpl()
	if err != nil {
		return err
	}
	resp, ok := raw.(*commands.HandshakeResponse)
	if !ok {
		return ErrInvalidState
	}
	if resp.Version != commands.ProtocolVersion {
		return ErrUnsupportedVersion
	}
	if !resp.Accepted {
		return &HandshakeRejectedError{Reason: resp.Reason}
	}
	return nil
}

// handshakeResponder accepts a session from the initiator, adopting the
// initiator's session identifier.  This is exercised by the test fakes and
// by diagnostic tooling; the client is always the initiator.
func (s *Session) handshakeResponder() error {
	raw, err := s.recvCommandImpl()
	if err != nil {
		return err
	}
	req, ok := raw.(*commands.HandshakeRequest)
	if !ok {
		return ErrInvalidState
	}
	s.id = req.SessionID

	resp := &commands.HandshakeResponse{
		Version:  commands.ProtocolVersion,
		Accepted: req.Version == commands.ProtocolVersion,
	}
	if !resp.Accepted {
		resp.Reason = "unsupported protocol version"
	}
	if err = s.sendCommandImpl(resp); err != nil {
		return err
	}
	if !resp.Accepted {
		return ErrUnsupportedVersion
	}
	return nil
}

// SendCommand stamps the session identifier and the next tx sequence number
// onto cmd, and sends it as a single frame.
func (s *Session) SendCommand(cmd commands.Command) error {
	if atomic.LoadUint32(&s.state) != stateEstablished {
		return ErrInvalidState
	}
	if err := s.sendCommandImpl(cmd); err != nil {
		// All write errors are fatal to the session.
		atomic.StoreUint32(&s.state, stateInvalid)
		return err
	}
	return nil
}

func (s *Session) sendCommandImpl(cmd commands.Command) error {
	s.txMutex.Lock()
	defer s.txMutex.Unlock()

	hdr := cmd.Hdr()
	hdr.SessionID = s.id
	hdr.Sequence = s.txSeq

	pt, err := cmd.ToBytes()
	if err != nil {
		return err
	}
	if len(pt)+frameOverhead > MaxMsgLen {
		return ErrMessageSize
	}

	frame := make([]byte, frameOverhead, frameOverhead+len(pt))
	binary.BigEndian.PutUint32(frame, uint32(len(pt)))
	frame = append(frame, pt...)
	if _, err = s.conn.Write(frame); err != nil {
		return err
	}
	s.txSeq++
	return nil
}

// RecvCommand receives exactly one complete wire protocol command off the
// network, enforcing the session identifier and the rx sequence number.
func (s *Session) RecvCommand() (commands.Command, error) {
	if atomic.LoadUint32(&s.state) != stateEstablished {
		return nil, ErrInvalidState
	}
	cmd, err := s.recvCommandImpl()
	if err != nil {
		// All receive errors are fatal to the session.
		atomic.StoreUint32(&s.state, stateInvalid)
	}
	return cmd, err
}

func (s *Session) recvCommandImpl() (commands.Command, error) {
	s.rxMutex.Lock()
	defer s.rxMutex.Unlock()

	var lenHdr [frameOverhead]byte
	if _, err := io.ReadFull(s.conn, lenHdr[:]); err != nil {
		return nil, err
	}
	ptLen := binary.BigEndian.Uint32(lenHdr[:])
	if ptLen == 0 || ptLen > MaxMsgLen-frameOverhead {
		return nil, ErrMessageSize
	}

	pt := make([]byte, ptLen)
	if _, err := io.ReadFull(s.conn, pt); err != nil {
		return nil, err
	}
	cmd, err := commands.FromBytes(pt)
	if err != nil {
		return nil, err
	}

	hdr := cmd.Hdr()
	if _, isHandshake := cmd.(*commands.HandshakeRequest); !isHandshake {
		if hdr.SessionID != s.id {
			return nil, ErrSessionMismatch
		}
	}
	if hdr.Sequence != s.rxSeq {
		return nil, ErrUnexpectedSequence
	}
	s.rxSeq++
	return cmd, nil
}

// SetDeadline sets the read and write deadline on the bound transport.
func (s *Session) SetDeadline(t time.Time) error {
	if s.conn == nil {
		return ErrInvalidState
	}
	return s.conn.SetDeadline(t)
}

// Close terminates the session and releases the underlying transport.
// Close is idempotent; the transport is closed exactly once even if both
// directions detect a failure simultaneously.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.conn != nil {
			s.conn.Close()
		}
	})
	atomic.StoreUint32(&s.state, stateInvalid)
}
