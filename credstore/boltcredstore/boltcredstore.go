// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package boltcredstore implements the credential store with a simple
// boltdb based backend.  Entries are sealed at rest under a key derived
// from the store passphrase.
package boltcredstore

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/openrcp/rcpclient/core/utils"
	"github.com/openrcp/rcpclient/credstore"
)

const (
	credentialsBucket = "credentials"
	metadataBucket    = "metadata"

	versionKey = "version"
	saltKey    = "salt"

	saltLength = 16

	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
)

type boltCredStore struct {
	db   *bolt.DB
	aead cipher.AEAD
}

func (s *boltCredStore) Load(username string) (*credstore.Entry, error) {
	var sealed []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(credentialsBucket))
		if b := bkt.Get([]byte(username)); b != nil {
			sealed = append([]byte{}, b...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if sealed == nil {
		return nil, credstore.ErrNoSuchEntry
	}

	if len(sealed) < s.aead.NonceSize() {
		return nil, credstore.ErrCorrupted
	}
	nonce, ct := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ct, []byte(username))
	if err != nil {
		return nil, credstore.ErrCorrupted
	}
	defer utils.ExplicitBzero(plaintext)

	e := new(credstore.Entry)
	if err = cbor.Unmarshal(plaintext, e); err != nil {
		return nil, credstore.ErrCorrupted
	}
	return e, nil
}

func (s *boltCredStore) Save(e *credstore.Entry) error {
	if e.Username == "" {
		return errors.New("credstore: empty username")
	}

	plaintext, err := cbor.Marshal(e)
	if err != nil {
		return err
	}
	defer utils.ExplicitBzero(plaintext)

	// The entry is bound to its key, swapping sealed values between
	// usernames fails to open.
	nonce := make([]byte, s.aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return err
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, []byte(e.Username))

	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(credentialsBucket))
		return bkt.Put([]byte(e.Username), sealed)
	})
}

func (s *boltCredStore) Delete(username string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(credentialsBucket))
		if ent := bkt.Get([]byte(username)); ent == nil {
			return credstore.ErrNoSuchEntry
		}
		return bkt.Delete([]byte(username))
	})
}

func (s *boltCredStore) Close() {
	s.db.Sync()
	s.db.Close()
}

// New creates (or loads) a credential store with the given file name f,
// sealed under passphrase.
func New(f string, passphrase []byte) (credstore.Store, error) {
	var err error

	s := new(boltCredStore)
	s.db, err = bolt.Open(f, 0600, nil)
	if err != nil {
		return nil, err
	}

	var salt []byte
	if err = s.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists([]byte(credentialsBucket)); err != nil {
			return err
		}

		if b := bkt.Get([]byte(versionKey)); b != nil {
			// Well it looks like we loaded as opposed to created.
			if len(b) != 1 || b[0] != 0 {
				return fmt.Errorf("credstore: incompatible version: %d", uint(b[0]))
			}
			salt = append([]byte{}, bkt.Get([]byte(saltKey))...)
			if len(salt) != saltLength {
				return errors.New("credstore: missing or malformed salt")
			}
			return nil
		}

		// We created a new database, so populate the new `metadata` bucket.
		salt = make([]byte, saltLength)
		if _, err = rand.Read(salt); err != nil {
			return err
		}
		if err = bkt.Put([]byte(saltKey), salt); err != nil {
			return err
		}
		return bkt.Put([]byte(versionKey), []byte{0})
	}); err != nil {
		// The struct isn't getting returned so clean up the database.
		s.db.Close()
		return nil, err
	}

	key := argon2.IDKey(passphrase, salt, kdfTime, kdfMemory, kdfThreads, chacha20poly1305.KeySize)
	defer utils.ExplicitBzero(key)
	if s.aead, err = chacha20poly1305.New(key); err != nil {
		s.db.Close()
		return nil, err
	}

	return s, nil
}
