// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command lsp-transport bridges a completion host and one language server.
//
// The host listens on two loopback links and passes their ports with
// --zmq-in-port and --zmq-out-port. Everything after the flags (or after
// "--") is the server command line:
//
//	lsp-transport --zmq-in-port 4001 --zmq-out-port 4002 --stdio-server -- pylsp -v
//
// Exit status is 0 on a clean stop, 1 on a startup failure and 3 when the
// language server died.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianComplete/pkg/logging"
	"github.com/AleutianAI/AleutianComplete/services/completions/transport"
)

type options struct {
	inPort     int
	outPort    int
	serverHost string
	serverPort int
	logFile    string
	folder     string
	external   bool
	stdio      bool
	debug      int
	linkHost   string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runErr error
	cmd := newRootCmd(func(cfg transport.ProxyConfig) error {
		runErr = transport.NewProxy(cfg).Run(ctx)
		return nil
	})
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return transport.ExitFailure
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		fmt.Fprintf(os.Stderr, "lsp-transport: %v\n", runErr)
	}
	return transport.ExitCode(runErr)
}

// newRootCmd builds the command. start receives the parsed configuration.
func newRootCmd(start func(transport.ProxyConfig) error) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "lsp-transport [flags] [--] server-command [args...]",
		Short: "Bridge a completion host and a language server",
		Long: `lsp-transport spawns or attaches to a language server and forwards
JSON-RPC messages between it and the completion host's two loopback links.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.proxyConfig(args)
			if err != nil {
				return err
			}
			defer logger.Close()
			return start(cfg)
		},
	}

	f := cmd.Flags()
	f.SetInterspersed(false)
	f.IntVar(&opts.inPort, "zmq-in-port", 0, "port on which the host sends requests")
	f.IntVar(&opts.outPort, "zmq-out-port", 0, "port on which responses and notifications are sent")
	f.StringVar(&opts.serverHost, "server-host", "127.0.0.1", "server TCP host")
	f.IntVar(&opts.serverPort, "server-port", 0, "server TCP port")
	f.StringVar(&opts.logFile, "server-log-file", "", "file receiving the server's stderr")
	f.StringVar(&opts.folder, "folder", "", "server working directory")
	f.BoolVar(&opts.external, "external-server", false, "connect to an already running server")
	f.BoolVar(&opts.stdio, "stdio-server", false, "talk to the spawned server over stdio")
	f.IntVar(&opts.debug, "transport-debug", 0, "log verbosity 0..3 (error, warning, info, debug)")
	f.StringVar(&opts.linkHost, "link-host", "127.0.0.1", "host address of the links")
	_ = f.MarkHidden("link-host")
	_ = cmd.MarkFlagRequired("zmq-in-port")
	_ = cmd.MarkFlagRequired("zmq-out-port")
	return cmd
}

func (o options) proxyConfig(command []string) (transport.ProxyConfig, *logging.Logger, error) {
	if o.debug < 0 || o.debug > 3 {
		return transport.ProxyConfig{}, nil, fmt.Errorf("--transport-debug must be 0..3, got %d", o.debug)
	}
	spec := transport.ServerSpec{
		Command:  command,
		Host:     o.serverHost,
		Port:     o.serverPort,
		Stdio:    o.stdio,
		External: o.external,
		LogFile:  o.logFile,
		Folder:   o.folder,
		Debug:    o.debug,
	}
	if err := spec.Validate(); err != nil {
		return transport.ProxyConfig{}, nil, err
	}

	logger := logging.New(logging.Config{
		Level:   logging.LevelFromVerbosity(o.debug),
		Service: "lsp-transport",
	})
	return transport.ProxyConfig{
		ServerSpec: spec,
		InPort:     o.inPort,
		OutPort:    o.outPort,
		LinkHost:   o.linkHost,
		Logger:     logger.Slog(),
	}, logger, nil
}
