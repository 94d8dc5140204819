// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"context"
	"crypto/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openrcp/rcpclient/auth"
	"github.com/openrcp/rcpclient/client/config"
	"github.com/openrcp/rcpclient/core/log"
	"github.com/openrcp/rcpclient/credstore"
	"github.com/openrcp/rcpclient/ui"
	"github.com/openrcp/rcpclient/wire"
	"github.com/openrcp/rcpclient/wire/commands"
)

const testTimeout = 10 * time.Second

// testServer is a pipe backed server side fake speaking the wire protocol.
type testServer struct {
	method              string
	verify              func(resp *commands.AuthResponse, nonce []byte) bool
	token               []byte
	answerPings         bool
	stallAfterHandshake bool

	sessCh       chan *wire.Session
	inputCh      chan *commands.InputEvent
	disconnectCh chan string
}

func newTestServer(method string, verify func(*commands.AuthResponse, []byte) bool) *testServer {
	return &testServer{
		method:       method,
		verify:       verify,
		token:        []byte("issued-token"),
		answerPings:  true,
		sessCh:       make(chan *wire.Session, 1),
		inputCh:      make(chan *commands.InputEvent, 16),
		disconnectCh: make(chan string, 1),
	}
}

func (srv *testServer) dialFn(ctx context.Context) (net.Conn, error) {
	clientConn, serverConn := net.Pipe()
	go srv.handle(serverConn)
	return clientConn, nil
}

func (srv *testServer) handle(conn net.Conn) {
	defer conn.Close()

	s, err := wire.NewSession(&wire.SessionConfig{}, false)
	if err != nil {
		return
	}
	defer s.Close()
	if err = s.Initialize(conn); err != nil {
		return
	}
	if srv.stallAfterHandshake {
		// Hold the connection open without issuing a challenge.
		_, _ = s.RecvCommand()
		return
	}

	nonce := make([]byte, 32)
	if _, err = rand.Read(nonce); err != nil {
		return
	}
	if err = s.SendCommand(&commands.AuthChallenge{Method: srv.method, Nonce: nonce}); err != nil {
		return
	}
	raw, err := s.RecvCommand()
	if err != nil {
		return
	}
	resp, ok := raw.(*commands.AuthResponse)
	verdict := &commands.AuthResult{}
	if ok && srv.verify(resp, nonce) {
		verdict.Accepted = true
		verdict.Token = srv.token
	} else {
		verdict.Reason = "invalid credentials"
	}
	if err = s.SendCommand(verdict); err != nil || !verdict.Accepted {
		return
	}

	srv.sessCh <- s
	for {
		raw, err := s.RecvCommand()
		if err != nil {
			return
		}
		switch cmd := raw.(type) {
		case *commands.Ping:
			if !srv.answerPings {
				continue
			}
			if err = s.SendCommand(&commands.Pong{ID: cmd.ID}); err != nil {
				return
			}
		case *commands.InputEvent:
			srv.inputCh <- cmd
		case *commands.Disconnect:
			srv.disconnectCh <- cmd.Reason
			return
		}
	}
}

// memCredStore is an in-memory credstore.Store.
type memCredStore struct {
	sync.Mutex
	entries map[string]*credstore.Entry
}

func newMemCredStore() *memCredStore {
	return &memCredStore{entries: make(map[string]*credstore.Entry)}
}

func (m *memCredStore) Load(username string) (*credstore.Entry, error) {
	m.Lock()
	defer m.Unlock()
	e, ok := m.entries[username]
	if !ok {
		return nil, credstore.ErrNoSuchEntry
	}
	return e, nil
}

func (m *memCredStore) Save(e *credstore.Entry) error {
	m.Lock()
	defer m.Unlock()
	m.entries[e.Username] = e
	return nil
}

func (m *memCredStore) Delete(username string) error {
	m.Lock()
	defer m.Unlock()
	if _, ok := m.entries[username]; !ok {
		return credstore.ErrNoSuchEntry
	}
	delete(m.entries, username)
	return nil
}

func (m *memCredStore) Close() {}

func testLogBackend(t *testing.T) *log.Backend {
	backend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	return backend
}

func testConfig(t *testing.T, body string) *config.Config {
	cfg, err := config.Load([]byte(body))
	require.NoError(t, err)
	return cfg
}

type stateTransition struct {
	state  State
	reason error
}

type stateRecorder struct {
	ch chan stateTransition
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{ch: make(chan stateTransition, 32)}
}

func (r *stateRecorder) onState(_, next State, reason error) {
	r.ch <- stateTransition{state: next, reason: reason}
}

// waitFor consumes state transitions until want is reached, failing the
// test if a state in forbidden is seen first.  The reason delivered with
// the wanted transition is returned.
func (r *stateRecorder) waitFor(t *testing.T, want State, forbidden ...State) error {
	deadline := time.After(testTimeout)
	for {
		select {
		case tr := <-r.ch:
			for _, f := range forbidden {
				if tr.state == f {
					t.Fatalf("entered state %v while waiting for %v", tr.state, want)
				}
			}
			if tr.state == want {
				return tr.reason
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func TestClientSessionLifecycle(t *testing.T) {
	require := require.New(t)

	password := []byte("hunter2")
	srv := newTestServer("password", func(resp *commands.AuthResponse, nonce []byte) bool {
		return resp.Username == "alice" && auth.VerifyPasswordProof(password, nonce, resp.Proof)
	})

	frameCh := make(chan *ui.Frame, 16)
	rec := newStateRecorder()
	store := newMemCredStore()

	cfg := testConfig(t, `
[Auth]
Method = "password"
Username = "alice"
SaveCredentials = true
`)
	c, err := New(&ClientConfig{
		Config:     cfg,
		LogBackend: testLogBackend(t),
		Adapter:    &ui.Simple{OnFrameFn: func(f *ui.Frame) { frameCh <- f }},
		Credential: &auth.UsernamePassword{Username: "alice", Password: password},
		CredStore:  store,
		OnStateFn:  rec.onState,
		DialFn:     srv.dialFn,
	})
	require.NoError(err)
	defer c.Shutdown()

	// New() auto-connects, so the session establishes without an explicit
	// Connect() call.
	rec.waitFor(t, StateActive, StateFailed)
	require.Equal(StateActive, c.State())

	sess := <-srv.sessCh

	// Display updates reach the frontend adapter.
	require.NoError(sess.SendCommand(&commands.DisplayUpdate{
		X: 10, Y: 20, Width: 640, Height: 480,
		Encoding: 0,
		Payload:  []byte{0xde, 0xad},
	}))
	select {
	case f := <-frameCh:
		require.Equal(uint32(640), f.Width)
		require.Equal("raw", f.Encoding)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for frame")
	}

	// Input events reach the server.
	require.NoError(c.SendInput(&commands.InputEvent{
		Kind: commands.KindKeyboard,
		Key:  &commands.KeyEvent{Code: 0x41, Pressed: true},
	}))
	select {
	case ev := <-srv.inputCh:
		require.Equal(commands.KindKeyboard, ev.Kind)
		require.Equal(uint32(0x41), ev.Key.Code)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for input event")
	}

	// The accepted token was persisted.
	e, err := store.Load("alice")
	require.NoError(err)
	require.Equal([]byte("issued-token"), e.Token)
	require.Equal("password", e.Method)

	// Orderly teardown on Disconnect().
	c.Disconnect()
	rec.waitFor(t, StateDisconnected, StateFailed)
	select {
	case reason := <-srv.disconnectCh:
		require.Equal("client disconnect", reason)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for Disconnect command")
	}
	require.Error(c.SendInput(&commands.InputEvent{Kind: commands.KindKeyboard}))
}

func TestClientAuthRejectedNeverActive(t *testing.T) {
	require := require.New(t)

	key := []byte("the real key")
	srv := newTestServer("psk", func(resp *commands.AuthResponse, nonce []byte) bool {
		return auth.VerifyPSKProof(key, nonce, resp.Proof)
	})

	rec := newStateRecorder()
	adapterReasonCh := make(chan error, 8)
	cfg := testConfig(t, `
[Server]
BackgroundConnect = true

[Auth]
Method = "psk"
`)
	c, err := New(&ClientConfig{
		Config:     cfg,
		LogBackend: testLogBackend(t),
		Adapter: &ui.Simple{
			OnStateFn: func(oldState, newState string, reason error) {
				if newState == StateFailed.String() {
					adapterReasonCh <- reason
				}
			},
		},
		Credential: &auth.PreSharedKey{Key: []byte("not the key")},
		OnStateFn:  rec.onState,
		DialFn:     srv.dialFn,
	})
	require.NoError(err)
	defer c.Shutdown()

	c.Connect()
	reason := rec.waitFor(t, StateFailed, StateActive)
	require.Equal(StateFailed, c.State())

	// The rejection reason is preserved for display.
	var rejected *auth.RejectedError
	require.ErrorAs(reason, &rejected)
	require.Equal("invalid credentials", rejected.Reason)
	select {
	case reason = <-adapterReasonCh:
		require.ErrorAs(reason, &rejected)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for adapter notification")
	}

	// A fresh Connect() leaves Failed.
	c.Connect()
	rec.waitFor(t, StateFailed, StateActive)
}

func TestClientKeepaliveTimeout(t *testing.T) {
	require := require.New(t)

	srv := newTestServer("psk", func(resp *commands.AuthResponse, nonce []byte) bool {
		return true
	})
	srv.answerPings = false

	rec := newStateRecorder()
	cfg := testConfig(t, `
[Server]
BackgroundConnect = true

[Auth]
Method = "psk"

[Debug]
KeepaliveInterval = 1
KeepaliveGrace = 1
`)
	c, err := New(&ClientConfig{
		Config:     cfg,
		LogBackend: testLogBackend(t),
		Adapter:    &ui.Simple{},
		Credential: &auth.PreSharedKey{Key: []byte("key")},
		OnStateFn:  rec.onState,
		DialFn:     srv.dialFn,
	})
	require.NoError(err)
	defer c.Shutdown()

	c.Connect()
	rec.waitFor(t, StateActive, StateFailed)

	// The server never answers the keepalive probe, the session tears
	// down through Disconnecting.
	reason := rec.waitFor(t, StateDisconnecting)
	require.Equal(ErrKeepaliveTimeout, reason)
	rec.waitFor(t, StateDisconnected)
}

func TestClientServerErrorTearsDown(t *testing.T) {
	require := require.New(t)

	srv := newTestServer("psk", func(resp *commands.AuthResponse, nonce []byte) bool {
		return true
	})

	rec := newStateRecorder()
	cfg := testConfig(t, `
[Server]
BackgroundConnect = true

[Auth]
Method = "psk"
`)
	c, err := New(&ClientConfig{
		Config:     cfg,
		LogBackend: testLogBackend(t),
		Adapter:    &ui.Simple{},
		Credential: &auth.PreSharedKey{Key: []byte("key")},
		OnStateFn:  rec.onState,
		DialFn:     srv.dialFn,
	})
	require.NoError(err)
	defer c.Shutdown()

	c.Connect()
	rec.waitFor(t, StateActive, StateFailed)
	sess := <-srv.sessCh

	// A server side Error command terminates the session through an
	// orderly teardown.
	require.NoError(sess.SendCommand(&commands.Error{Code: 1, Message: "backend failure"}))
	reason := rec.waitFor(t, StateDisconnecting, StateFailed)
	var pErr *ProtocolError
	require.ErrorAs(reason, &pErr)
	rec.waitFor(t, StateDisconnected)
	require.Error(c.SendInput(&commands.InputEvent{Kind: commands.KindKeyboard}))
}

func TestClientDisconnectAbortsAuth(t *testing.T) {
	require := require.New(t)

	srv := newTestServer("password", func(resp *commands.AuthResponse, nonce []byte) bool {
		return true
	})
	srv.stallAfterHandshake = true

	rec := newStateRecorder()
	cfg := testConfig(t, `
[Server]
BackgroundConnect = true
`)
	c, err := New(&ClientConfig{
		Config:     cfg,
		LogBackend: testLogBackend(t),
		Adapter:    &ui.Simple{},
		Credential: &auth.UsernamePassword{Username: "alice", Password: []byte("x")},
		OnStateFn:  rec.onState,
		DialFn:     srv.dialFn,
	})
	require.NoError(err)
	defer c.Shutdown()

	c.Connect()
	rec.waitFor(t, StateAuthenticating, StateFailed)

	// The server stalls before issuing a challenge.  Aborting must close
	// the transport immediately instead of waiting out the timeout.
	c.Disconnect()
	rec.waitFor(t, StateDisconnected, StateFailed, StateActive)
}

func TestClientDisconnectAbortsConnect(t *testing.T) {
	require := require.New(t)

	dialStarted := make(chan interface{}, 1)
	rec := newStateRecorder()
	cfg := testConfig(t, `
[Server]
BackgroundConnect = true
`)
	c, err := New(&ClientConfig{
		Config:     cfg,
		LogBackend: testLogBackend(t),
		Adapter:    &ui.Simple{},
		Credential: &auth.UsernamePassword{Username: "alice", Password: []byte("x")},
		OnStateFn:  rec.onState,
		DialFn: func(ctx context.Context) (net.Conn, error) {
			dialStarted <- true
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	require.NoError(err)
	defer c.Shutdown()

	c.Connect()
	rec.waitFor(t, StateConnecting)
	<-dialStarted

	// Aborting a connect in progress is not a failure.
	c.Disconnect()
	rec.waitFor(t, StateDisconnected, StateFailed, StateActive)
}

func TestClientConnectFailure(t *testing.T) {
	require := require.New(t)

	rec := newStateRecorder()
	cfg := testConfig(t, `
[Server]
BackgroundConnect = true

[Debug]
ConnectTimeout = 1
`)
	c, err := New(&ClientConfig{
		Config:     cfg,
		LogBackend: testLogBackend(t),
		Adapter:    &ui.Simple{},
		Credential: &auth.UsernamePassword{Username: "alice", Password: []byte("x")},
		OnStateFn:  rec.onState,
		DialFn: func(ctx context.Context) (net.Conn, error) {
			return nil, context.DeadlineExceeded
		},
	})
	require.NoError(err)
	defer c.Shutdown()

	c.Connect()
	reason := rec.waitFor(t, StateFailed, StateActive)

	var cErr *ConnectError
	require.ErrorAs(reason, &cErr)
	require.ErrorIs(reason, context.DeadlineExceeded)
}
