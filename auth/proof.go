// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

package auth

import (
	"crypto/subtle"
	"hash"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
)

const (
	// MinNonceLength is the minimum accepted challenge nonce length.
	MinNonceLength = 16

	// ProofLength is the length of a credential proof.
	ProofLength = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// PasswordProof derives the password proof for a challenge nonce.  The
// nonce doubles as the salt, so a proof is only valid for the challenge it
// was derived for and the raw password never crosses the wire.
func PasswordProof(password, nonce []byte) []byte {
	return argon2.IDKey(password, nonce, argonTime, argonMemory, argonThreads, ProofLength)
}

// PSKProof computes the keyed proof for a challenge nonce using the
// pre-shared key.  The key itself never crosses the wire.
func PSKProof(key, nonce []byte) []byte {
	mac := pskMAC(key)
	mac.Write(nonce)
	return mac.Sum(nil)
}

func pskMAC(key []byte) hash.Hash {
	// BLAKE2b keys are capped at 64 bytes, longer PSKs are pre-hashed.
	if len(key) > 64 {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		panic("auth: blake2b.New256: " + err.Error())
	}
	return h
}

// VerifyPasswordProof reports whether proof is the correct password proof
// for the nonce.  It is exported for server side verifiers and test fakes.
func VerifyPasswordProof(password, nonce, proof []byte) bool {
	expected := PasswordProof(password, nonce)
	return subtle.ConstantTimeCompare(expected, proof) == 1
}

// VerifyPSKProof reports whether proof is the correct pre-shared key proof
// for the nonce.  It is exported for server side verifiers and test fakes.
func VerifyPSKProof(key, nonce, proof []byte) bool {
	expected := PSKProof(key, nonce)
	return subtle.ConstantTimeCompare(expected, proof) == 1
}
