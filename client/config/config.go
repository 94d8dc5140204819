// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package config implements the configuration for the RCP client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/openrcp/rcpclient/auth"
	"github.com/openrcp/rcpclient/wire"
)

const (
	defaultAddress  = "127.0.0.1"
	defaultPort     = 8717
	defaultLogLevel = "NOTICE"

	defaultConnectTimeout    = 30
	defaultAuthTimeout       = 30
	defaultKeepaliveInterval = 30
	defaultKeepaliveGrace    = 10
	defaultSendQueueCapacity = 128

	defaultCredentialStore = "credentials.db"
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Server is the server connection configuration.
type Server struct {
	// Address is the server host name or IP address.
	Address string

	// Port is the server port.
	Port int

	// Transport selects the transport (`tcp`, `quic`).
	Transport string

	// UseTLS enables TLS on the tcp transport.  The quic transport is
	// always encrypted.
	UseTLS bool

	// VerifyServer enables verification of the server certificate.
	VerifyServer bool

	// ClientCertPath is the optional client certificate for mutual TLS.
	ClientCertPath string

	// ClientKeyPath is the private key for ClientCertPath.
	ClientKeyPath string

	// BackgroundConnect defers connecting until explicitly requested,
	// instead of connecting at startup.
	BackgroundConnect bool
}

func (sCfg *Server) validate() error {
	if sCfg.Address == "" {
		sCfg.Address = defaultAddress
	}
	if sCfg.Port == 0 {
		sCfg.Port = defaultPort
	}
	if sCfg.Port < 1 || sCfg.Port > 65535 {
		return fmt.Errorf("config: Server: Port '%v' is invalid", sCfg.Port)
	}
	switch strings.ToLower(sCfg.Transport) {
	case "":
		sCfg.Transport = wire.TransportTCP
	case wire.TransportTCP, wire.TransportQUIC:
		sCfg.Transport = strings.ToLower(sCfg.Transport)
	default:
		return fmt.Errorf("config: Server: Transport '%v' is invalid", sCfg.Transport)
	}
	if (sCfg.ClientCertPath == "") != (sCfg.ClientKeyPath == "") {
		return fmt.Errorf("config: Server: ClientCertPath and ClientKeyPath must both be set")
	}
	return nil
}

// Target returns the wire dial target for the configured server.
func (sCfg *Server) Target() *wire.Target {
	return &wire.Target{
		Address:        sCfg.Address,
		Port:           uint16(sCfg.Port),
		Transport:      sCfg.Transport,
		UseTLS:         sCfg.UseTLS,
		VerifyServer:   sCfg.VerifyServer,
		ClientCertPath: sCfg.ClientCertPath,
		ClientKeyPath:  sCfg.ClientKeyPath,
	}
}

// Auth is the authentication configuration.
type Auth struct {
	// Method selects the authentication method (`password`, `psk`,
	// `native`).
	Method string

	// UseNativeAuth selects native OS authentication.  It is equivalent
	// to setting Method to `native`, which it must not contradict.
	UseNativeAuth bool

	// Username is the account to authenticate as.  Ignored by the native
	// method, which resolves the host account name itself.
	Username string

	// SaveCredentials persists server issued session tokens in the
	// credential store.
	SaveCredentials bool

	// CredentialStore is the credential store file, relative to DataDir
	// unless absolute.
	CredentialStore string
}

func (aCfg *Auth) validate() error {
	if aCfg.UseNativeAuth {
		if aCfg.Method != "" && aCfg.Method != auth.MethodNative.String() {
			return fmt.Errorf("config: Auth: UseNativeAuth conflicts with Method '%v'", aCfg.Method)
		}
		aCfg.Method = auth.MethodNative.String()
	}
	if aCfg.Method == "" {
		aCfg.Method = auth.MethodPassword.String()
	}
	if _, err := auth.MethodFromString(aCfg.Method); err != nil {
		return fmt.Errorf("config: Auth: Method '%v' is invalid", aCfg.Method)
	}
	if aCfg.CredentialStore == "" {
		aCfg.CredentialStore = defaultCredentialStore
	}
	return nil
}

// AuthMethod returns the parsed authentication method.
func (aCfg *Auth) AuthMethod() auth.Method {
	m, _ := auth.MethodFromString(aCfg.Method)
	return m
}

// UI is the frontend configuration.
type UI struct {
	// EventBased selects the channel based frontend adapter instead of
	// inline callbacks.
	EventBased bool

	// EventBufferSize is the event channel capacity for the event based
	// adapter.  If 0 a sensible default is used.
	EventBufferSize int
}

func (uCfg *UI) validate() error {
	if uCfg.EventBufferSize < 0 {
		return fmt.Errorf("config: UI: EventBufferSize '%v' is invalid", uCfg.EventBufferSize)
	}
	return nil
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl // Force uppercase.
	return nil
}

// Debug is the debug configuration.
type Debug struct {
	// ConnectTimeout is the number of seconds a connect attempt is
	// allowed to take until it is canceled.
	ConnectTimeout int

	// AuthTimeout is the number of seconds an authentication attempt is
	// allowed to take until it is canceled.
	AuthTimeout int

	// KeepaliveInterval is the idle interval in seconds after which a
	// keepalive probe is sent.
	KeepaliveInterval int

	// KeepaliveGrace is the number of seconds to wait for a keepalive
	// reply before the connection is considered dead.
	KeepaliveGrace int

	// SendQueueCapacity is the outbound input event queue capacity.
	SendQueueCapacity int
}

func (d *Debug) fixup() {
	if d.ConnectTimeout == 0 {
		d.ConnectTimeout = defaultConnectTimeout
	}
	if d.AuthTimeout == 0 {
		d.AuthTimeout = defaultAuthTimeout
	}
	if d.KeepaliveInterval == 0 {
		d.KeepaliveInterval = defaultKeepaliveInterval
	}
	if d.KeepaliveGrace == 0 {
		d.KeepaliveGrace = defaultKeepaliveGrace
	}
	if d.SendQueueCapacity == 0 {
		d.SendQueueCapacity = defaultSendQueueCapacity
	}
}

// Config is the top level client configuration.
type Config struct {
	// DataDir is the directory for the credential store and other state.
	// If set it must be an absolute path.
	DataDir string

	Server  *Server
	Auth    *Auth
	UI      *UI
	Logging *Logging
	Debug   *Debug
}

// CredentialStorePath returns the resolved credential store file path.
func (c *Config) CredentialStorePath() string {
	if filepath.IsAbs(c.Auth.CredentialStore) {
		return c.Auth.CredentialStore
	}
	return filepath.Join(c.DataDir, c.Auth.CredentialStore)
}

// FixupAndValidate applies defaults to config entries and validates the
// configuration sections.
func (c *Config) FixupAndValidate() error {
	// Handle missing sections if possible.
	if c.Server == nil {
		c.Server = &Server{VerifyServer: true}
	}
	if c.Auth == nil {
		c.Auth = &Auth{}
	}
	if c.UI == nil {
		c.UI = &UI{}
	}
	if c.Logging == nil {
		c.Logging = &defaultLogging
	}
	if c.Debug == nil {
		c.Debug = &Debug{}
	}
	c.Debug.fixup()

	if c.DataDir != "" && !filepath.IsAbs(c.DataDir) {
		return fmt.Errorf("config: DataDir '%v' is not an absolute path", c.DataDir)
	}

	// Validate/fixup the various sections.
	if err := c.Server.validate(); err != nil {
		return err
	}
	if err := c.Auth.validate(); err != nil {
		return err
	}
	if err := c.UI.validate(); err != nil {
		return err
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}

	return nil
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses, and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
