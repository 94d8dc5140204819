// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package commands implements the RCP wire protocol commands.
package commands

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"

	"github.com/fxamacker/cbor/v2"
)

const (
	// ProtocolVersion is the version of the RCP wire protocol spoken by
	// this implementation.
	ProtocolVersion = 1

	// SessionIDLength is the length of a session identifier in bytes.
	SessionIDLength = 16

	// MaxPayloadLength is the maximum length of a serialized command
	// payload.
	MaxPayloadLength = 1048576 - cmdOverhead

	// cmdOverhead is id + reserved + session ID + sequence number +
	// payload length.
	cmdOverhead = 1 + 1 + SessionIDLength + 8 + 4
)

var (
	errInvalidCommand = errors.New("commands: invalid wire protocol command")

	// ErrOversizedPayload is the error returned when a command payload
	// exceeds MaxPayloadLength.
	ErrOversizedPayload = errors.New("commands: oversized command payload")
)

type commandID byte

const (
	noOp              commandID = 0x00
	handshakeRequest  commandID = 0x01
	handshakeResponse commandID = 0x02
	authChallenge     commandID = 0x03
	authResponse      commandID = 0x04
	authResult        commandID = 0x05
	displayUpdate     commandID = 0x10
	inputEvent        commandID = 0x11
	ping              commandID = 0x20
	pong              commandID = 0x21
	protocolError     commandID = 0x30
	disconnect        commandID = 0x31
)

// SessionID identifies a session for the whole of its lifetime.
type SessionID [SessionIDLength]byte

// String returns the hexadecimal representation of the SessionID.
func (id SessionID) String() string {
	return hex.EncodeToString(id[:])
}

// NewSessionID generates a random SessionID from the provided entropy
// source.
func NewSessionID(r io.Reader) (SessionID, error) {
	var id SessionID
	_, err := io.ReadFull(r, id[:])
	return id, err
}

// Header is the common header carried by every command: the session
// identifier and the per-direction sequence number.
type Header struct {
	// The header travels in the fixed-size frame prefix, never in the
	// CBOR payload.
	SessionID SessionID `cbor:"-"`
	Sequence  uint64    `cbor:"-"`
}

// Hdr returns the command header, so that the framing layer can stamp the
// sequence number and validate the session identifier uniformly.
func (h *Header) Hdr() *Header {
	return h
}

// Command is the common interface exposed by all wire command structures.
type Command interface {
	// ToBytes serializes the command and returns the resulting slice.
	ToBytes() ([]byte, error)

	// Hdr returns the common command header.
	Hdr() *Header
}

func toBytes(id commandID, hdr *Header, payload interface{}) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = cbor.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	if len(body) > MaxPayloadLength {
		return nil, ErrOversizedPayload
	}

	out := make([]byte, cmdOverhead, cmdOverhead+len(body))
	out[0] = byte(id)
	// out[1] is the reserved byte, always zero.
	copy(out[2:2+SessionIDLength], hdr.SessionID[:])
	binary.BigEndian.PutUint64(out[2+SessionIDLength:], hdr.Sequence)
	binary.BigEndian.PutUint32(out[2+SessionIDLength+8:], uint32(len(body)))
	return append(out, body...), nil
}

// NoOp is a de-serialized no-op command.
type NoOp struct {
	Header
}

// ToBytes serializes the NoOp and returns the resulting slice.
func (c *NoOp) ToBytes() ([]byte, error) {
	return toBytes(noOp, &c.Header, nil)
}

// HandshakeRequest opens a session.  It is the first command sent by the
// client after the transport is established.
type HandshakeRequest struct {
	Header

	Version    uint8    `cbor:"version"`
	ClientName string   `cbor:"client_name"`
	Methods    []string `cbor:"methods"`
}

// ToBytes serializes the HandshakeRequest and returns the resulting slice.
func (c *HandshakeRequest) ToBytes() ([]byte, error) {
	return toBytes(handshakeRequest, &c.Header, c)
}

// HandshakeResponse is the server's answer to a HandshakeRequest.
type HandshakeResponse struct {
	Header

	Version  uint8  `cbor:"version"`
	Accepted bool   `cbor:"accepted"`
	Reason   string `cbor:"reason,omitempty"`
}

// ToBytes serializes the HandshakeResponse and returns the resulting slice.
func (c *HandshakeResponse) ToBytes() ([]byte, error) {
	return toBytes(handshakeResponse, &c.Header, c)
}

// AuthChallenge carries the server issued nonce that credential proofs are
// computed over.
type AuthChallenge struct {
	Header

	Method string `cbor:"method"`
	Nonce  []byte `cbor:"nonce"`
}

// ToBytes serializes the AuthChallenge and returns the resulting slice.
func (c *AuthChallenge) ToBytes() ([]byte, error) {
	return toBytes(authChallenge, &c.Header, c)
}

// AuthResponse carries the client's proof for a previously received
// AuthChallenge.  The proof never contains the raw secret.
type AuthResponse struct {
	Header

	Method   string `cbor:"method"`
	Username string `cbor:"username,omitempty"`
	Proof    []byte `cbor:"proof"`
}

// ToBytes serializes the AuthResponse and returns the resulting slice.
func (c *AuthResponse) ToBytes() ([]byte, error) {
	return toBytes(authResponse, &c.Header, c)
}

// AuthResult is the server's verdict on an AuthResponse.
type AuthResult struct {
	Header

	Accepted bool   `cbor:"accepted"`
	Reason   string `cbor:"reason,omitempty"`
	Token    []byte `cbor:"token,omitempty"`
}

// ToBytes serializes the AuthResult and returns the resulting slice.
func (c *AuthResult) ToBytes() ([]byte, error) {
	return toBytes(authResult, &c.Header, c)
}

// DisplayUpdate carries an encoded display region update.
type DisplayUpdate struct {
	Header

	X        uint32 `cbor:"x"`
	Y        uint32 `cbor:"y"`
	Width    uint32 `cbor:"width"`
	Height   uint32 `cbor:"height"`
	Encoding uint8  `cbor:"encoding"`
	Payload  []byte `cbor:"payload"`
}

// ToBytes serializes the DisplayUpdate and returns the resulting slice.
func (c *DisplayUpdate) ToBytes() ([]byte, error) {
	return toBytes(displayUpdate, &c.Header, c)
}

// InputEventKind discriminates the InputEvent variants.
type InputEventKind uint8

const (
	// KindPointerMove is a pointer motion event.
	KindPointerMove InputEventKind = iota

	// KindPointerButton is a pointer button press or release.
	KindPointerButton

	// KindKeyboard is a key press or release.
	KindKeyboard

	// KindWindowControl is a window control operation.
	KindWindowControl
)

// KeyEvent is the keyboard portion of an InputEvent.
type KeyEvent struct {
	Code    uint32 `cbor:"code"`
	Pressed bool   `cbor:"pressed"`
}

// PointerEvent is the pointer portion of an InputEvent.
type PointerEvent struct {
	X       uint16 `cbor:"x"`
	Y       uint16 `cbor:"y"`
	Buttons uint8  `cbor:"buttons"`
}

// ControlEvent is the window control portion of an InputEvent.
type ControlEvent struct {
	Op uint8 `cbor:"op"`
}

// InputEvent carries a keyboard, pointer or window control event to the
// server.
type InputEvent struct {
	Header

	Kind    InputEventKind `cbor:"kind"`
	Key     *KeyEvent      `cbor:"key,omitempty"`
	Pointer *PointerEvent  `cbor:"pointer,omitempty"`
	Control *ControlEvent  `cbor:"control,omitempty"`
}

// ToBytes serializes the InputEvent and returns the resulting slice.
func (c *InputEvent) ToBytes() ([]byte, error) {
	return toBytes(inputEvent, &c.Header, c)
}

// Ping is a keepalive probe.
type Ping struct {
	Header

	ID uint32 `cbor:"id"`
}

// ToBytes serializes the Ping and returns the resulting slice.
func (c *Ping) ToBytes() ([]byte, error) {
	return toBytes(ping, &c.Header, c)
}

// Pong acknowledges a previously received Ping.
type Pong struct {
	Header

	ID uint32 `cbor:"id"`
}

// ToBytes serializes the Pong and returns the resulting slice.
func (c *Pong) ToBytes() ([]byte, error) {
	return toBytes(pong, &c.Header, c)
}

// Error reports a server side error for the session.
type Error struct {
	Header

	Code    uint32 `cbor:"code"`
	Message string `cbor:"message"`
}

// ToBytes serializes the Error and returns the resulting slice.
func (c *Error) ToBytes() ([]byte, error) {
	return toBytes(protocolError, &c.Header, c)
}

// Disconnect announces an orderly session teardown.
type Disconnect struct {
	Header

	Reason string `cbor:"reason,omitempty"`
}

// ToBytes serializes the Disconnect and returns the resulting slice.
func (c *Disconnect) ToBytes() ([]byte, error) {
	return toBytes(disconnect, &c.Header, c)
}

// FromBytes de-serializes the command in the buffer b, returning a Command
// or an error.
func FromBytes(b []byte) (Command, error) {
	if len(b) < cmdOverhead {
		return nil, errInvalidCommand
	}

	// Parse the common header.
	id := commandID(b[0])
	if b[1] != 0 {
		return nil, errInvalidCommand
	}
	var hdr Header
	copy(hdr.SessionID[:], b[2:2+SessionIDLength])
	hdr.Sequence = binary.BigEndian.Uint64(b[2+SessionIDLength:])
	bodyLen := binary.BigEndian.Uint32(b[2+SessionIDLength+8:])
	body := b[cmdOverhead:]
	if uint32(len(body)) != bodyLen {
		return nil, errInvalidCommand
	}

	var cmd Command
	switch id {
	case noOp:
		if bodyLen != 0 {
			return nil, errInvalidCommand
		}
		return &NoOp{Header: hdr}, nil
	case handshakeRequest:
		cmd = &HandshakeRequest{}
	case handshakeResponse:
		cmd = &HandshakeResponse{}
	case authChallenge:
		cmd = &AuthChallenge{}
	case authResponse:
		cmd = &AuthResponse{}
	case authResult:
		cmd = &AuthResult{}
	case displayUpdate:
		cmd = &DisplayUpdate{}
	case inputEvent:
		cmd = &InputEvent{}
	case ping:
		cmd = &Ping{}
	case pong:
		cmd = &Pong{}
	case protocolError:
		cmd = &Error{}
	case disconnect:
		cmd = &Disconnect{}
	default:
		return nil, errInvalidCommand
	}

	if err := cbor.Unmarshal(body, cmd); err != nil {
		return nil, errInvalidCommand
	}
	*cmd.Hdr() = hdr
	return cmd, nil
}
