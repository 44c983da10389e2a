// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// ServerSpec says how the proxy reaches its language server.
type ServerSpec struct {
	// Command is the server command line when the proxy spawns it.
	Command []string

	// Host and Port locate a TCP server.
	Host string
	Port int

	// Stdio talks to a spawned server over its stdin/stdout.
	Stdio bool

	// External attaches to an already running TCP server.
	External bool

	// LogFile receives the server's stderr. Empty discards it.
	LogFile string

	// Folder is the server's working directory.
	Folder string

	// Debug is the proxy log verbosity, 0..3.
	Debug int

	// ProbeTimeout bounds the liveness probe. Default 20s.
	ProbeTimeout time.Duration

	// ProbeInterval is the liveness poll period. Default 100ms.
	ProbeInterval time.Duration
}

func (s ServerSpec) withDefaults() ServerSpec {
	if s.Host == "" {
		s.Host = "127.0.0.1"
	}
	if s.ProbeTimeout <= 0 {
		s.ProbeTimeout = 20 * time.Second
	}
	if s.ProbeInterval <= 0 {
		s.ProbeInterval = 100 * time.Millisecond
	}
	return s
}

// Validate rejects spec combinations the proxy cannot serve.
func (s ServerSpec) Validate() error {
	switch {
	case s.Stdio && s.External:
		return fmt.Errorf("%w: an external server cannot use stdio", ErrInvalidSpec)
	case !s.External && len(s.Command) == 0:
		return fmt.Errorf("%w: no server command", ErrInvalidSpec)
	case !s.Stdio && s.Port <= 0:
		return fmt.Errorf("%w: tcp mode needs a server port", ErrInvalidSpec)
	}
	return nil
}

// Args renders the spec as lsp-transport command-line arguments.
func (s ServerSpec) Args(inPort, outPort int) []string {
	args := []string{
		"--zmq-in-port", strconv.Itoa(inPort),
		"--zmq-out-port", strconv.Itoa(outPort),
		"--transport-debug", strconv.Itoa(s.Debug),
	}
	if s.Host != "" {
		args = append(args, "--server-host", s.Host)
	}
	if s.Port > 0 {
		args = append(args, "--server-port", strconv.Itoa(s.Port))
	}
	if s.LogFile != "" {
		args = append(args, "--server-log-file", s.LogFile)
	}
	if s.Folder != "" {
		args = append(args, "--folder", s.Folder)
	}
	if s.External {
		args = append(args, "--external-server")
	}
	if s.Stdio {
		args = append(args, "--stdio-server")
	}
	if len(s.Command) > 0 {
		args = append(args, "--")
		args = append(args, s.Command...)
	}
	return args
}

// ServerConn is a live byte stream to a language server.
type ServerConn interface {
	io.Reader
	io.Writer

	// Close stops the server (when spawned) and releases the stream.
	Close() error

	// Exited is closed when the server is gone.
	Exited() <-chan struct{}
}

// ConnectFunc starts or attaches to a server.
type ConnectFunc func(ctx context.Context, spec ServerSpec, logger *slog.Logger) (ServerConn, error)

// Connect is the default ConnectFunc.
//
// Description:
//
//	Stdio mode spawns the command and checks it survives one probe
//	interval. TCP mode optionally spawns the command, then dials
//	Host:Port every ProbeInterval until ProbeTimeout, giving up early if
//	the spawned server exits.
//
// Errors:
//
//	ErrInvalidSpec - bad mode combination
//	ErrServerExited - the server died during the probe
//	ErrProbeTimeout - the TCP port never accepted
func Connect(ctx context.Context, spec ServerSpec, logger *slog.Logger) (ServerConn, error) {
	spec = spec.withDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn := &processConn{logger: logger, exited: make(chan struct{})}

	if !spec.External {
		if err := conn.spawn(spec); err != nil {
			return nil, err
		}
	} else {
		conn.exitOnClose = true
	}

	if spec.Stdio {
		select {
		case <-conn.exited:
			_ = conn.Close()
			return nil, fmt.Errorf("%w: %s exited during startup", ErrServerExited, spec.Command[0])
		case <-time.After(spec.ProbeInterval):
		case <-ctx.Done():
			_ = conn.Close()
			return nil, ctx.Err()
		}
		logger.Info("language server started", slog.String("command", spec.Command[0]), slog.String("mode", "stdio"))
		return conn, nil
	}

	if err := conn.probe(ctx, spec); err != nil {
		_ = conn.Close()
		return nil, err
	}
	logger.Info("language server reachable",
		slog.String("addr", net.JoinHostPort(spec.Host, strconv.Itoa(spec.Port))),
		slog.Bool("external", spec.External))
	return conn, nil
}

// processConn is a spawned and/or TCP-attached server.
type processConn struct {
	logger *slog.Logger

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	tcp     net.Conn
	logFile *os.File

	exited      chan struct{}
	exitOnClose bool
	exitOnce    sync.Once
	closeOnce   sync.Once
}

func (c *processConn) spawn(spec ServerSpec) error {
	path, err := exec.LookPath(spec.Command[0])
	if err != nil {
		return fmt.Errorf("%w: %s not found: %v", ErrInvalidSpec, spec.Command[0], err)
	}

	cmd := exec.Command(path, spec.Command[1:]...)
	cmd.Dir = spec.Folder
	setProcessGroup(cmd)

	var stderr io.Writer = io.Discard
	if spec.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(spec.LogFile), 0750); err == nil {
			if f, err := os.OpenFile(spec.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640); err == nil {
				c.logFile = f
				stderr = f
			}
		}
	}
	cmd.Stderr = stderr

	if spec.Stdio {
		if c.stdin, err = cmd.StdinPipe(); err != nil {
			return fmt.Errorf("stdin pipe: %w", err)
		}
		if c.stdout, err = cmd.StdoutPipe(); err != nil {
			return fmt.Errorf("stdout pipe: %w", err)
		}
	} else {
		cmd.Stdout = stderr
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", spec.Command[0], err)
	}
	c.cmd = cmd

	go func() {
		err := cmd.Wait()
		c.logger.Info("language server process ended", slog.Int("pid", cmd.Process.Pid), slog.Any("status", err))
		c.markExited()
	}()
	return nil
}

func (c *processConn) probe(ctx context.Context, spec ServerSpec) error {
	addr := net.JoinHostPort(spec.Host, strconv.Itoa(spec.Port))
	deadline := time.Now().Add(spec.ProbeTimeout)

	ticker := time.NewTicker(spec.ProbeInterval)
	defer ticker.Stop()

	for {
		d := net.Dialer{Timeout: spec.ProbeInterval}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			c.tcp = conn
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s after %s", ErrProbeTimeout, addr, spec.ProbeTimeout)
		}
		select {
		case <-c.exited:
			if !c.exitOnClose {
				return fmt.Errorf("%w: before accepting on %s", ErrServerExited, addr)
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *processConn) markExited() {
	c.exitOnce.Do(func() { close(c.exited) })
}

func (c *processConn) Read(p []byte) (int, error) {
	if c.tcp != nil {
		return c.tcp.Read(p)
	}
	if c.stdout == nil {
		return 0, io.EOF
	}
	return c.stdout.Read(p)
}

func (c *processConn) Write(p []byte) (int, error) {
	if c.tcp != nil {
		return c.tcp.Write(p)
	}
	if c.stdin == nil {
		return 0, io.ErrClosedPipe
	}
	return c.stdin.Write(p)
}

func (c *processConn) Exited() <-chan struct{} { return c.exited }

// Close terminates the process group, escalating to a kill after 3s.
func (c *processConn) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		if c.tcp != nil {
			errs = append(errs, c.tcp.Close())
		}
		if c.stdin != nil {
			_ = c.stdin.Close()
		}
		if c.cmd != nil && c.cmd.Process != nil {
			select {
			case <-c.exited:
			default:
				if err := terminateProcess(c.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
					c.logger.Debug("terminate failed", slog.String("error", err.Error()))
				}
				select {
				case <-c.exited:
				case <-time.After(3 * time.Second):
					_ = killProcess(c.cmd.Process)
					<-c.exited
				}
			}
		}
		if c.exitOnClose {
			c.markExited()
		}
		if c.logFile != nil {
			errs = append(errs, c.logFile.Close())
		}
	})
	return errors.Join(errs...)
}
