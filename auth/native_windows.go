// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

//go:build windows

package auth

import (
	"os"

	"golang.org/x/crypto/blake2b"
)

// hostProvider is the Windows native credential provider.  It stands in
// for an SSPI integration by keying the challenge proof to the machine
// name and account name.
type hostProvider struct{}

func newHostProvider() NativeProvider {
	return &hostProvider{}
}

func (p *hostProvider) Username() (string, error) {
	return osUsername()
}

func (p *hostProvider) ProduceProof(challenge []byte) ([]byte, error) {
	name, err := osUsername()
	if err != nil {
		return nil, err
	}
	host := os.Getenv("COMPUTERNAME")
	if host == "" {
		if host, err = os.Hostname(); err != nil {
			return nil, ErrProviderUnavailable
		}
	}
	sum := blake2b.Sum256([]byte(host + "\\" + name))
	return PSKProof(sum[:], challenge), nil
}
