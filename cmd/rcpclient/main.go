// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

// rcpclient - RCP session client.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openrcp/rcpclient/auth"
	"github.com/openrcp/rcpclient/client"
	"github.com/openrcp/rcpclient/client/config"
	"github.com/openrcp/rcpclient/common"
	"github.com/openrcp/rcpclient/core/log"
	"github.com/openrcp/rcpclient/credstore"
	"github.com/openrcp/rcpclient/credstore/boltcredstore"
	"github.com/openrcp/rcpclient/ui"
)

func main() {
	common.ExecuteWithFang(newRootCommand())
}

type cliFlags struct {
	configFile        string
	server            string
	username          string
	authMethod        string
	backgroundConnect bool
	eventBased        bool
	verbose           bool
}

func newRootCommand() *cobra.Command {
	flags := &cliFlags{}

	cmd := &cobra.Command{
		Use:   "rcpclient",
		Short: "RCP session client",
		Long: `A client for the RCP remote control protocol.

The client connects to an RCP server, authenticates with one of the
password, psk or native methods, and relays display updates and input
events between the server and the frontend.

Secrets are taken from the environment: RCP_PASSWORD for the password
method, RCP_PSK for the psk method, and RCP_STORE_PASSPHRASE for the
credential store.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configFile, "config", "f", "", "configuration file")
	cmd.Flags().StringVarP(&flags.server, "server", "s", "", "server address (host or host:port)")
	cmd.Flags().StringVarP(&flags.username, "username", "u", "", "account to authenticate as")
	cmd.Flags().StringVarP(&flags.authMethod, "auth-method", "m", "", "authentication method (password, psk, native)")
	cmd.Flags().BoolVar(&flags.backgroundConnect, "background-connect", false, "do not connect at startup")
	cmd.Flags().BoolVar(&flags.eventBased, "event-based", false, "use the event based frontend adapter")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

func run(flags *cliFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	backend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger := backend.GetLogger("rcpclient")

	cred, err := buildCredential(cfg)
	if err != nil {
		return err
	}
	defer cred.Destroy()

	var store credstore.Store
	if cfg.Auth.SaveCredentials {
		store, err = boltcredstore.New(cfg.CredentialStorePath(), []byte(os.Getenv("RCP_STORE_PASSPHRASE")))
		if err != nil {
			return fmt.Errorf("failed to open credential store: %w", err)
		}
		defer store.Close()
	}

	var adapter ui.Adapter
	if cfg.UI.EventBased {
		eb := ui.NewEventBased(cfg.UI.EventBufferSize)
		defer eb.Close()
		go func() {
			for e := range eb.EventSink() {
				logger.Debugf("Event: %v", e)
			}
		}()
		adapter = eb
	} else {
		adapter = &ui.Simple{
			OnFrameFn: func(f *ui.Frame) {
				logger.Debugf("Received %v", f)
			},
			OnStateFn: func(oldState, newState string, reason error) {
				if reason != nil {
					logger.Noticef("Session: %v -> %v (%v)", oldState, newState, reason)
					return
				}
				logger.Noticef("Session: %v -> %v", oldState, newState)
			},
		}
	}

	c, err := client.New(&client.ClientConfig{
		Config:     cfg,
		LogBackend: backend,
		Adapter:    adapter,
		Credential: cred,
		CredStore:  store,
	})
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Notice("Received shutdown request.")
		c.Shutdown()
	}()

	c.Wait()
	return nil
}

func loadConfig(flags *cliFlags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if flags.configFile != "" {
		if cfg, err = config.LoadFile(flags.configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file '%v': %w", flags.configFile, err)
		}
	} else if cfg, err = config.Load(nil); err != nil {
		return nil, err
	}

	// Command line flags override the file configuration.
	if flags.server != "" {
		if strings.Contains(flags.server, ":") {
			host, portStr, err := net.SplitHostPort(flags.server)
			if err != nil {
				return nil, fmt.Errorf("invalid argument for --server: %w", err)
			}
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return nil, fmt.Errorf("invalid argument for --server: %w", err)
			}
			cfg.Server.Address = host
			cfg.Server.Port = port
		} else {
			cfg.Server.Address = flags.server
		}
	}
	if flags.username != "" {
		cfg.Auth.Username = flags.username
	}
	if flags.authMethod != "" {
		cfg.Auth.Method = flags.authMethod
	}
	if flags.backgroundConnect {
		cfg.Server.BackgroundConnect = true
	}
	if flags.eventBased {
		cfg.UI.EventBased = true
	}
	if flags.verbose {
		cfg.Logging.Level = "DEBUG"
	}

	if err = cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildCredential(cfg *config.Config) (auth.Credential, error) {
	switch cfg.Auth.AuthMethod() {
	case auth.MethodPassword:
		if cfg.Auth.Username == "" {
			return nil, fmt.Errorf("required flag: --username is required for the password method")
		}
		password := os.Getenv("RCP_PASSWORD")
		if password == "" {
			return nil, fmt.Errorf("RCP_PASSWORD is not set")
		}
		return &auth.UsernamePassword{
			Username: cfg.Auth.Username,
			Password: []byte(password),
		}, nil
	case auth.MethodPSK:
		key := os.Getenv("RCP_PSK")
		if key == "" {
			return nil, fmt.Errorf("RCP_PSK is not set")
		}
		return &auth.PreSharedKey{Key: []byte(key)}, nil
	case auth.MethodNative:
		provider := auth.DefaultNativeProvider()
		username := cfg.Auth.Username
		if username == "" {
			var err error
			if username, err = provider.Username(); err != nil {
				return nil, err
			}
		}
		return &auth.NativeToken{Username: username, Provider: provider}, nil
	default:
		return nil, fmt.Errorf("invalid argument for --auth-method: '%v'", cfg.Auth.Method)
	}
}
