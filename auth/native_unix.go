// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

//go:build unix

package auth

import (
	"os"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// hostProvider is the Unix native credential provider.  It stands in for a
// PAM/Directory Services integration by keying the challenge proof to a
// stable host identity (machine-id when available, hostname otherwise)
// and the calling uid.
type hostProvider struct{}

func newHostProvider() NativeProvider {
	return &hostProvider{}
}

func (p *hostProvider) Username() (string, error) {
	return osUsername()
}

func (p *hostProvider) ProduceProof(challenge []byte) ([]byte, error) {
	token, err := p.hostToken()
	if err != nil {
		return nil, err
	}
	return PSKProof(token, challenge), nil
}

func (p *hostProvider) hostToken() ([]byte, error) {
	ident, err := os.ReadFile("/etc/machine-id")
	if err != nil {
		host, hErr := os.Hostname()
		if hErr != nil {
			return nil, ErrProviderUnavailable
		}
		ident = []byte(host)
	}
	seed := append([]byte(strconv.Itoa(os.Getuid())+":"), ident...)
	sum := blake2b.Sum256(seed)
	return sum[:], nil
}
