// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/openrcp/rcpclient/auth"
	"github.com/openrcp/rcpclient/core/queue"
	"github.com/openrcp/rcpclient/core/worker"
	"github.com/openrcp/rcpclient/credstore"
	"github.com/openrcp/rcpclient/ui"
	"github.com/openrcp/rcpclient/wire"
	"github.com/openrcp/rcpclient/wire/commands"
)

const clientName = "rcpclient"

type connection struct {
	sync.Mutex
	worker.Worker

	c   *Client
	log *logging.Logger

	connectCh    chan interface{}
	disconnectCh chan interface{}

	sendQueue   *queue.Queue
	isConnected bool
}

func (k *connection) signalConnect() {
	select {
	case k.connectCh <- true:
	default:
		// A connect attempt is already pending.
	}
}

func (k *connection) signalDisconnect() {
	select {
	case k.disconnectCh <- true:
	default:
	}
}

func (k *connection) connectionWorker() {
	defer k.log.Debugf("Terminating connection worker.")

	for {
		select {
		case <-k.HaltCh():
			return
		case <-k.disconnectCh:
			// Nothing to tear down.
			k.log.Debugf("Ignoring disconnect request, not connected.")
			continue
		case <-k.connectCh:
		}

		k.doConnect()

		select {
		case <-k.HaltCh():
			return
		default:
		}
	}
}

func (k *connection) doConnect() {
	cfg := k.c.cfg
	k.c.setState(StateConnecting, nil)

	dialFn := cfg.DialFn
	if dialFn == nil {
		target := cfg.Config.Server.Target()
		dialFn = func(ctx context.Context) (net.Conn, error) {
			return wire.Dial(ctx, target)
		}
	}

	dialCtx, cancelFn := context.WithTimeout(context.Background(), k.c.connectTimeout())
	defer cancelFn()

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := dialFn(dialCtx)
		resultCh <- dialResult{conn, err}
	}()

	var res dialResult
	select {
	case <-k.HaltCh():
		cancelFn()
		if res = <-resultCh; res.conn != nil {
			res.conn.Close()
		}
		k.c.setState(StateDisconnected, nil)
		return
	case <-k.disconnectCh:
		// Aborted mid-dial, this is not a failure.
		k.log.Debugf("Connect attempt cancelled.")
		cancelFn()
		if res = <-resultCh; res.conn != nil {
			res.conn.Close()
		}
		k.c.setState(StateDisconnected, nil)
		return
	case res = <-resultCh:
	}
	if res.err != nil {
		k.log.Warningf("Failed to connect: %v", res.err)
		k.c.setState(StateFailed, &ConnectError{Err: res.err})
		return
	}
	k.log.Debugf("Transport connection established.")

	k.onTransportConn(res.conn)
}

func (k *connection) onTransportConn(conn net.Conn) {
	cfg := k.c.cfg

	defer func() {
		k.log.Debugf("Transport connection closed.")
		conn.Close()
	}()

	// Allocate the session struct.
	w, err := wire.NewSession(&wire.SessionConfig{
		ClientName:  clientName,
		AuthMethods: []string{cfg.Config.Auth.Method},
	}, true)
	if err != nil {
		k.log.Errorf("Failed to allocate session: %v", err)
		k.c.setState(StateFailed, &ConnectError{Err: err})
		return
	}
	defer w.Close()

	// Handshake and authenticate in a separate goroutine, so that an
	// abort can close the transport out from under them instead of
	// waiting out the timeouts.
	type setupResult struct {
		result *auth.Result
		err    error
	}
	setupCh := make(chan setupResult, 1)
	go func() {
		conn.SetDeadline(time.Now().Add(k.c.connectTimeout()))
		if err := w.Initialize(conn); err != nil {
			setupCh <- setupResult{err: &ConnectError{Err: err}}
			return
		}
		k.log.Debugf("Handshake completed, session: %v", w.SessionID())
		conn.SetDeadline(time.Time{})

		k.c.setState(StateAuthenticating, nil)
		result, err := k.c.auth.Authenticate(w, cfg.Credential)
		setupCh <- setupResult{result: result, err: err}
	}()

	var res setupResult
	select {
	case <-k.HaltCh():
		conn.Close()
		<-setupCh
		k.c.setState(StateDisconnected, nil)
		return
	case <-k.disconnectCh:
		// Aborted mid-handshake, this is not a failure.
		k.log.Debugf("Connect attempt cancelled.")
		conn.Close()
		<-setupCh
		k.c.setState(StateDisconnected, nil)
		return
	case res = <-setupCh:
	}
	if res.err != nil {
		var rejected *auth.RejectedError
		if errors.As(res.err, &rejected) {
			k.log.Warningf("Authentication rejected: %v", rejected.Reason)
		} else {
			k.log.Errorf("Failed to establish session: %v", res.err)
		}
		k.c.setState(StateFailed, res.err)
		return
	}
	k.log.Debugf("Authentication completed.")
	k.persistToken(res.result)

	wireErr := k.onWireConn(w)

	reason := wireErr
	switch wireErr {
	case ErrShutdown, errDisconnectRequested:
		reason = nil
	default:
		k.log.Warningf("Session terminated: %v", wireErr)
	}
	k.c.setState(StateDisconnecting, reason)
	w.Close()
	k.c.setState(StateDisconnected, nil)
}

func (k *connection) onWireConn(w *wire.Session) error {
	cfg := k.c.cfg
	dCfg := cfg.Config.Debug

	sendQueue := queue.New(dCfg.SendQueueCapacity)
	k.Lock()
	k.sendQueue = sendQueue
	k.isConnected = true
	k.Unlock()
	k.c.setState(StateActive, nil)

	closeCh := make(chan interface{})
	defer func() {
		k.Lock()
		k.isConnected = false
		k.sendQueue = nil
		k.Unlock()
		sendQueue.Close()
		close(closeCh)
	}()

	// Start the peer reader.
	cmdCh := make(chan interface{})
	go func() {
		defer close(cmdCh)
		for {
			rawCmd, err := w.RecvCommand()
			if err != nil {
				k.log.Debugf("Failed to receive command: %v", err)
				select {
				case cmdCh <- err:
				case <-closeCh:
				}
				return
			}
			select {
			case cmdCh <- rawCmd:
			case <-closeCh:
				return
			}
		}
	}()

	// Drain the send queue into the select loop.
	sendCh := make(chan *queue.Entry)
	go func() {
		for {
			e, err := sendQueue.Dequeue()
			if err != nil {
				return
			}
			select {
			case sendCh <- e:
			case <-closeCh:
				return
			}
		}
	}()

	keepaliveInterval := time.Duration(dCfg.KeepaliveInterval) * time.Second
	keepaliveGrace := time.Duration(dCfg.KeepaliveGrace) * time.Second

	var wireErr error
	defer func() {
		if wireErr == nil {
			panic("BUG: wireErr is nil on connection teardown.")
		}
	}()

	var pingID uint32
	pingOutstanding := false
	for {
		idleDelay := keepaliveInterval
		if pingOutstanding {
			idleDelay = keepaliveGrace
		}

		var rawCmd commands.Command
		select {
		case <-time.After(idleDelay):
			if pingOutstanding {
				wireErr = ErrKeepaliveTimeout
				return wireErr
			}
			pingID++
			if wireErr = w.SendCommand(&commands.Ping{ID: pingID}); wireErr != nil {
				k.log.Debugf("Failed to send Ping: %v", wireErr)
				return wireErr
			}
			k.log.Debugf("Sent Ping: %d", pingID)
			pingOutstanding = true
			continue
		case e := <-sendCh:
			if wireErr = w.SendCommand(e.Value.(commands.Command)); wireErr != nil {
				k.log.Debugf("Failed to send InputEvent: %v", wireErr)
				return wireErr
			}
			continue
		case tmp, ok := <-cmdCh:
			if !ok {
				wireErr = newProtocolError("command receive worker terminated")
				return wireErr
			}
			switch cmdOrErr := tmp.(type) {
			case commands.Command:
				rawCmd = cmdOrErr
			case error:
				wireErr = cmdOrErr
				return wireErr
			}
		case <-k.HaltCh():
			wireErr = ErrShutdown
			return wireErr
		case <-k.disconnectCh:
			k.log.Debugf("User requested disconnect.")
			if err := w.SendCommand(&commands.Disconnect{Reason: "client disconnect"}); err != nil {
				k.log.Debugf("Failed to send Disconnect: %v", err)
			}
			wireErr = errDisconnectRequested
			return wireErr
		}

		// Handle the received command.
		switch cmd := rawCmd.(type) {
		case *commands.NoOp:
			k.log.Debugf("Received NoOp.")
		case *commands.DisplayUpdate:
			cfg.Adapter.HandleFrame(&ui.Frame{
				X:        cmd.X,
				Y:        cmd.Y,
				Width:    cmd.Width,
				Height:   cmd.Height,
				Encoding: encodingName(cmd.Encoding),
				Payload:  cmd.Payload,
			})
		case *commands.Ping:
			k.log.Debugf("Received Ping: %d", cmd.ID)
			if wireErr = w.SendCommand(&commands.Pong{ID: cmd.ID}); wireErr != nil {
				k.log.Debugf("Failed to send Pong: %v", wireErr)
				return wireErr
			}
		case *commands.Pong:
			if !pingOutstanding || cmd.ID != pingID {
				k.log.Warningf("Received spurious Pong: %d", cmd.ID)
				continue
			}
			k.log.Debugf("Received Pong: %d", cmd.ID)
			pingOutstanding = false
		case *commands.Error:
			k.log.Warningf("Server reported error %d: %v", cmd.Code, cmd.Message)
			wireErr = newProtocolError("peer sent Error %d: %v", cmd.Code, cmd.Message)
			return wireErr
		case *commands.Disconnect:
			k.log.Debugf("Received Disconnect: %v", cmd.Reason)
			wireErr = newProtocolError("peer sent Disconnect: %v", cmd.Reason)
			return wireErr
		default:
			k.log.Errorf("Received unexpected command: %T", cmd)
			wireErr = newProtocolError("received unknown command: %T", cmd)
			return wireErr
		}
	}
}

func (k *connection) persistToken(result *auth.Result) {
	cfg := k.c.cfg
	if !cfg.Config.Auth.SaveCredentials || cfg.CredStore == nil || len(result.Token) == 0 {
		return
	}

	username := cfg.Config.Auth.Username
	switch c := cfg.Credential.(type) {
	case *auth.UsernamePassword:
		username = c.Username
	case *auth.NativeToken:
		username = c.Username
	}
	if username == "" {
		return
	}

	err := cfg.CredStore.Save(&credstore.Entry{
		Username: username,
		Method:   cfg.Config.Auth.Method,
		Token:    result.Token,
	})
	if err != nil {
		k.log.Warningf("Failed to persist session token: %v", err)
		return
	}
	k.log.Debugf("Persisted session token for %v.", username)
}

func (k *connection) sendInput(cmd *commands.InputEvent) error {
	k.Lock()
	if !k.isConnected {
		k.Unlock()
		return ErrNotConnected
	}
	q := k.sendQueue
	k.Unlock()

	if err := q.Enqueue(&queue.Entry{Class: inputClass(cmd), Value: cmd}); err != nil {
		return ErrNotConnected
	}
	return nil
}

func inputClass(cmd *commands.InputEvent) queue.Class {
	switch cmd.Kind {
	case commands.KindPointerMove:
		return queue.ClassPointer
	case commands.KindWindowControl:
		return queue.ClassControl
	default:
		return queue.ClassKeyboard
	}
}

func encodingName(e uint8) string {
	switch e {
	case 0:
		return "raw"
	case 1:
		return "rle"
	case 2:
		return "zlib"
	default:
		return fmt.Sprintf("unknown-%d", e)
	}
}

func (k *connection) start() {
	k.Go(k.connectionWorker)
}

func newConnection(c *Client) *connection {
	k := new(connection)
	k.c = c
	k.log = c.cfg.LogBackend.GetLogger("client/conn")
	k.connectCh = make(chan interface{}, 1)
	k.disconnectCh = make(chan interface{}, 1)
	return k
}
