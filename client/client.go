// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package client provides the RCP session client.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/openrcp/rcpclient/auth"
	"github.com/openrcp/rcpclient/client/config"
	"github.com/openrcp/rcpclient/core/log"
	"github.com/openrcp/rcpclient/credstore"
	"github.com/openrcp/rcpclient/ui"
	"github.com/openrcp/rcpclient/wire/commands"
)

// ClientConfig is a client configuration.
type ClientConfig struct {
	// Config is the validated file configuration.
	Config *config.Config

	// LogBackend is the logging backend to use for client logging.
	LogBackend *log.Backend

	// Adapter is the frontend adapter display updates and state changes
	// are delivered to.
	Adapter ui.Adapter

	// Credential is the credential presented when the server challenges.
	Credential auth.Credential

	// CredStore is the optional credential store used to persist server
	// issued session tokens when SaveCredentials is set.
	CredStore credstore.Store

	// OnStateFn is the optional callback function that will be called on
	// every session state transition, after the Adapter is notified.
	// reason is the terminal error that forced the transition, or nil.
	OnStateFn func(old, new State, reason error)

	// DialFn is the optional alternative dial function used to establish
	// the transport connection.
	DialFn func(ctx context.Context) (net.Conn, error)
}

func (cfg *ClientConfig) validate() error {
	if cfg.Config == nil {
		return fmt.Errorf("client: no Config provided")
	}
	if cfg.LogBackend == nil {
		return fmt.Errorf("client: no LogBackend provided")
	}
	if cfg.Adapter == nil {
		return fmt.Errorf("client: no Adapter provided")
	}
	if cfg.Credential == nil {
		return fmt.Errorf("client: no Credential provided")
	}
	return nil
}

// Client is a client instance.
type Client struct {
	sync.RWMutex
	cfg  *ClientConfig
	log  *logging.Logger
	auth *auth.Authenticator

	conn *connection

	state State

	haltedCh chan interface{}
	haltOnce sync.Once
}

// Connect requests that the client establishes a session.  The call
// returns immediately, progress is reported via state transitions.  It
// has no effect while a session is established or being established.
func (c *Client) Connect() {
	c.conn.signalConnect()
}

// Disconnect requests an orderly teardown of the current session, or
// aborts a connect attempt in progress.  The call returns immediately.
func (c *Client) Disconnect() {
	c.conn.signalDisconnect()
}

// State returns the current session state.
func (c *Client) State() State {
	c.RLock()
	defer c.RUnlock()
	return c.state
}

// SendInput enqueues an input event for transmission.  Pointer motion
// events may be coalesced under backpressure, other events are never
// dropped.  ErrNotConnected is returned if no session is established.
func (c *Client) SendInput(cmd *commands.InputEvent) error {
	return c.conn.sendInput(cmd)
}

func (c *Client) setState(next State, reason error) {
	c.Lock()
	prev := c.state
	if prev == next {
		c.Unlock()
		return
	}
	c.state = next
	c.Unlock()

	c.log.Debugf("State change: %v -> %v", prev, next)
	c.cfg.Adapter.OnStateChange(prev.String(), next.String(), reason)
	if c.cfg.OnStateFn != nil {
		c.cfg.OnStateFn(prev, next, reason)
	}
}

// Shutdown cleanly shuts down a given Client instance.
func (c *Client) Shutdown() {
	c.haltOnce.Do(func() { c.halt() })
}

// Wait waits till the Client is terminated for any reason.
func (c *Client) Wait() {
	<-c.haltedCh
}

func (c *Client) halt() {
	c.log.Notice("Starting graceful shutdown.")

	if c.conn != nil {
		c.conn.Halt()
	}
	c.conn = nil

	c.setState(StateDisconnected, nil)
	c.log.Notice("Shutdown complete.")
	close(c.haltedCh)
}

func (c *Client) connectTimeout() time.Duration {
	return time.Duration(c.cfg.Config.Debug.ConnectTimeout) * time.Second
}

// New creates a new Client with the provided configuration.  Unless
// BackgroundConnect is set, connecting begins immediately.
func New(cfg *ClientConfig) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := new(Client)
	c.cfg = cfg
	c.log = cfg.LogBackend.GetLogger("client")
	c.haltedCh = make(chan interface{})

	var err error
	c.auth, err = auth.New(&auth.Config{
		LogBackend: cfg.LogBackend,
		Timeout:    time.Duration(cfg.Config.Debug.AuthTimeout) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	c.log.Debugf("Server is: %v", cfg.Config.Server.Target())

	c.conn = newConnection(c)
	c.conn.start()

	if !cfg.Config.Server.BackgroundConnect {
		c.Connect()
	}

	return c, nil
}
