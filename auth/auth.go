// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package auth implements the RCP authentication handshake.
package auth

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/openrcp/rcpclient/core/log"
	"github.com/openrcp/rcpclient/core/utils"
	"github.com/openrcp/rcpclient/wire"
	"github.com/openrcp/rcpclient/wire/commands"
)

const defaultTimeout = 30 * time.Second

var (
	// ErrTimeout is the error returned when an authentication attempt does
	// not complete within its deadline.
	ErrTimeout = errors.New("auth: authentication timed out")

	// ErrProviderUnavailable is the error returned when the native
	// credential provider cannot produce a proof.
	ErrProviderUnavailable = errors.New("auth: native credential provider unavailable")

	// ErrAttemptInProgress is the error returned when a second attempt is
	// started while one is already outstanding on the connection.
	ErrAttemptInProgress = errors.New("auth: attempt already in progress")

	// ErrZeroKey is the error returned when a pre-shared key is empty or
	// all 0x00 bytes.
	ErrZeroKey = errors.New("auth: pre-shared key is empty or all zero")

	errShortNonce = errors.New("auth: challenge nonce too short")
)

// RejectedError is the error returned when the server rejects the
// credential proof.
type RejectedError struct {
	// Reason is the rejection reason reported by the server.
	Reason string
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return "auth: rejected by server"
	}
	return fmt.Sprintf("auth: rejected by server: %v", e.Reason)
}

// Method is an authentication method.
type Method uint8

const (
	// MethodPassword is username/password authentication.
	MethodPassword Method = iota

	// MethodPSK is pre-shared key authentication.
	MethodPSK

	// MethodNative is native OS authentication.
	MethodNative
)

// String returns the wire representation of the Method.
func (m Method) String() string {
	switch m {
	case MethodPassword:
		return "password"
	case MethodPSK:
		return "psk"
	case MethodNative:
		return "native"
	default:
		return "unknown"
	}
}

// MethodFromString parses the wire representation of a Method.
func MethodFromString(s string) (Method, error) {
	switch s {
	case "password":
		return MethodPassword, nil
	case "psk":
		return MethodPSK, nil
	case "native":
		return MethodNative, nil
	default:
		return 0, fmt.Errorf("auth: unknown method: '%v'", s)
	}
}

// Credential is a tagged credential variant.  Credential payloads are
// opaque to everything but the proof computation, never logged, and zeroed
// by Destroy.
type Credential interface {
	// Method returns the authentication method the credential is for.
	Method() Method

	// Destroy zeroes the credential's secret material.
	Destroy()
}

// UsernamePassword is a username/password credential.
type UsernamePassword struct {
	Username string
	Password []byte
}

// Method returns MethodPassword.
func (c *UsernamePassword) Method() Method { return MethodPassword }

// Destroy zeroes the password.
func (c *UsernamePassword) Destroy() { utils.ExplicitBzero(c.Password) }

// PreSharedKey is a pre-shared key credential.
type PreSharedKey struct {
	Key []byte
}

// Method returns MethodPSK.
func (c *PreSharedKey) Method() Method { return MethodPSK }

// Destroy zeroes the key.
func (c *PreSharedKey) Destroy() { utils.ExplicitBzero(c.Key) }

// NativeToken is a native OS credential, with proof generation delegated
// to the host authentication provider.
type NativeToken struct {
	Username string
	Provider NativeProvider
}

// Method returns MethodNative.
func (c *NativeToken) Method() Method { return MethodNative }

// Destroy is a no-op, the provider owns the secret material.
func (c *NativeToken) Destroy() {}

// Result is a successful authentication result.
type Result struct {
	// Token is the opaque session token issued by the server.  It is
	// suitable for persisting in the credential store.
	Token []byte
}

// Authenticator drives the authentication handshake over an established
// wire session.
type Authenticator struct {
	log     *logging.Logger
	timeout time.Duration

	inFlight uint32
}

// Config is the Authenticator configuration.
type Config struct {
	// LogBackend is the logging backend.
	LogBackend *log.Backend

	// Timeout bounds each authentication attempt.  If zero, a default of
	// 30 seconds is used.
	Timeout time.Duration
}

// New creates a new Authenticator.
func New(cfg *Config) (*Authenticator, error) {
	if cfg.LogBackend == nil {
		return nil, errors.New("auth: no LogBackend provided")
	}
	a := &Authenticator{
		log:     cfg.LogBackend.GetLogger("auth"),
		timeout: cfg.Timeout,
	}
	if a.timeout == 0 {
		a.timeout = defaultTimeout
	}
	return a, nil
}

// Authenticate runs a single authentication attempt for cred over s.  On
// success the server issued session token is returned.  Rejection and
// timeout are never retried here, retry policy belongs to the session
// state machine.
func (a *Authenticator) Authenticate(s *wire.Session, cred Credential) (*Result, error) {
	if !atomic.CompareAndSwapUint32(&a.inFlight, 0, 1) {
		return nil, ErrAttemptInProgress
	}
	defer atomic.StoreUint32(&a.inFlight, 0)

	if psk, ok := cred.(*PreSharedKey); ok {
		if len(psk.Key) == 0 || utils.CtIsZero(psk.Key) {
			return nil, ErrZeroKey
		}
	}

	if err := s.SetDeadline(time.Now().Add(a.timeout)); err != nil {
		return nil, err
	}
	defer func() {
		_ = s.SetDeadline(time.Time{})
	}()

	result, err := a.attempt(s, cred)
	if err != nil {
		var nErr net.Error
		if errors.As(err, &nErr) && nErr.Timeout() {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return result, nil
}

// attempt sequences ChallengeSent -> AwaitingResponse -> Accepted/Rejected
// for one credential.
func (a *Authenticator) attempt(s *wire.Session, cred Credential) (*Result, error) {
	raw, err := s.RecvCommand()
	if err != nil {
		return nil, err
	}
	challenge, ok := raw.(*commands.AuthChallenge)
	if !ok {
		return nil, fmt.Errorf("auth: expected AuthChallenge, got %T", raw)
	}
	if challenge.Method != cred.Method().String() {
		return nil, fmt.Errorf("auth: server selected unexpected method: '%v'", challenge.Method)
	}
	if len(challenge.Nonce) < MinNonceLength {
		return nil, errShortNonce
	}
	a.log.Debugf("Received challenge for method %v.", challenge.Method)

	resp := &commands.AuthResponse{Method: challenge.Method}
	switch c := cred.(type) {
	case *UsernamePassword:
		resp.Username = c.Username
		resp.Proof = PasswordProof(c.Password, challenge.Nonce)
	case *PreSharedKey:
		resp.Proof = PSKProof(c.Key, challenge.Nonce)
	case *NativeToken:
		if c.Provider == nil {
			return nil, ErrProviderUnavailable
		}
		resp.Username = c.Username
		proof, err := c.Provider.ProduceProof(challenge.Nonce)
		if err != nil {
			a.log.Warningf("Native provider failed to produce proof: %v", err)
			return nil, ErrProviderUnavailable
		}
		resp.Proof = proof
	default:
		return nil, fmt.Errorf("auth: unsupported credential type: %T", cred)
	}

	if err = s.SendCommand(resp); err != nil {
		return nil, err
	}
	a.log.Debugf("Sent proof, awaiting result.")

	raw, err = s.RecvCommand()
	if err != nil {
		return nil, err
	}
	verdict, ok := raw.(*commands.AuthResult)
	if !ok {
		return nil, fmt.Errorf("auth: expected AuthResult, got %T", raw)
	}
	if !verdict.Accepted {
		a.log.Noticef("Authentication rejected: %v", verdict.Reason)
		return nil, &RejectedError{Reason: verdict.Reason}
	}
	a.log.Debugf("Authentication accepted.")
	return &Result{Token: verdict.Token}, nil
}
