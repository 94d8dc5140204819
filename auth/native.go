// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

package auth

import (
	"os"
	"os/user"
)

// NativeProvider is the capability interface over the host authentication
// provider (SSPI/PAM/Directory Services).  One variant implementation
// exists per platform and is selected at startup; the Authenticator core
// never branches on the platform.
type NativeProvider interface {
	// Username returns the host account name the proof is produced for.
	Username() (string, error)

	// ProduceProof produces the host credential proof for the server
	// issued challenge.  The proof bytes are opaque to the client, it
	// only transports them.
	ProduceProof(challenge []byte) ([]byte, error)
}

// DefaultNativeProvider returns the native credential provider for the
// running platform.
func DefaultNativeProvider() NativeProvider {
	return newHostProvider()
}

// osUsername resolves the local account name, preferring the runtime user
// database over environment variables.
func osUsername() (string, error) {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username, nil
	}
	for _, env := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}
	return "", ErrProviderUnavailable
}
