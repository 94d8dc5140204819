// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package credstore defines the persistent credential store interface.
package credstore

import "errors"

var (
	// ErrNoSuchEntry is the error returned when the store has no entry for
	// the requested username.
	ErrNoSuchEntry = errors.New("credstore: no such entry")

	// ErrCorrupted is the error returned when a stored entry fails to
	// unseal, either the store passphrase is wrong or the entry was
	// tampered with.
	ErrCorrupted = errors.New("credstore: wrong passphrase or corrupted entry")
)

// Entry is a stored credential.  Only server issued session tokens are
// persisted, raw passwords and pre-shared keys never touch the store.
type Entry struct {
	// Username is the account the token was issued for.
	Username string

	// Method is the wire representation of the authentication method the
	// token was obtained with.
	Method string

	// Token is the opaque session token.
	Token []byte
}

// Store is the interface provided by all credential store implementations.
type Store interface {
	// Load returns the entry stored for the username, or ErrNoSuchEntry.
	Load(username string) (*Entry, error)

	// Save stores the entry, overwriting any existing entry for the same
	// username.
	Save(e *Entry) error

	// Delete removes the entry stored for the username, or returns
	// ErrNoSuchEntry if there is none.
	Delete(username string) error

	// Close closes the store.
	Close()
}
