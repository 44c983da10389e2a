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
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// stopGrace bounds how long Stop waits for the proxy to exit.
const stopGrace = 5 * time.Second

// hostSide is the shared host half of Process and Local.
type hostSide struct {
	logger *slog.Logger
	link   *HostLink

	done     chan struct{}
	doneOnce sync.Once

	mu  sync.Mutex
	err error
}

func newHostSide(logger *slog.Logger) hostSide {
	if logger == nil {
		logger = slog.Default()
	}
	return hostSide{logger: logger, done: make(chan struct{})}
}

// Send posts msg to the proxy.
func (h *hostSide) Send(msg Message) error {
	if h.link == nil {
		return ErrNotStarted
	}
	return h.link.Send(msg)
}

// Incoming delivers proxy messages. Nil before Start.
func (h *hostSide) Incoming() <-chan Message {
	if h.link == nil {
		return nil
	}
	return h.link.Incoming()
}

// Done is closed when the proxy or its links are gone.
func (h *hostSide) Done() <-chan struct{} { return h.done }

// Err is why the proxy stopped, once Done is closed.
func (h *hostSide) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *hostSide) finish(err error) {
	h.mu.Lock()
	if h.err == nil {
		h.err = err
	}
	h.mu.Unlock()
	h.doneOnce.Do(func() { close(h.done) })
}

// =============================================================================
// PROCESS
// =============================================================================

// BinaryName is the proxy executable looked up by ResolveBinary.
const BinaryName = "lsp-transport"

// ResolveBinary locates the lsp-transport executable.
//
// Description:
//
//	A configured path is returned unchanged. Otherwise the directory of
//	the running executable is searched first, then PATH.
//
// Errors:
//
//	ErrBinaryNotFound - neither location has the executable
func ResolveBinary(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if exe, err := os.Executable(); err == nil {
		name := BinaryName
		if runtime.GOOS == "windows" {
			name += ".exe"
		}
		candidate := filepath.Join(filepath.Dir(exe), name)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(BinaryName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBinaryNotFound, err)
	}
	return path, nil
}

// Process runs the proxy as a separate lsp-transport process.
type Process struct {
	hostSide
	binary string
	spec   ServerSpec
	cmd    *exec.Cmd
	exited chan struct{}
}

// NewProcess creates a process transport. binary is the lsp-transport
// executable.
func NewProcess(binary string, spec ServerSpec, logger *slog.Logger) *Process {
	return &Process{hostSide: newHostSide(logger), binary: binary, spec: spec.withDefaults(), exited: make(chan struct{})}
}

// Start binds the links, spawns the proxy and waits for it to connect.
//
// Description:
//
//	The connect wait is bounded by ctx and by the probe timeout plus a
//	grace period, and fails early if the proxy process exits.
func (p *Process) Start(ctx context.Context) error {
	if err := p.spec.Validate(); err != nil {
		return err
	}
	link, err := ListenHost("127.0.0.1", p.logger)
	if err != nil {
		return err
	}

	cmd := exec.Command(p.binary, p.spec.Args(link.InPort(), link.OutPort())...)
	cmd.Stderr = os.Stderr
	cmd.Dir = p.spec.Folder
	setProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		_ = link.Close()
		return fmt.Errorf("start %s: %w", p.binary, err)
	}
	p.cmd = cmd
	p.link = link

	go func() {
		err := cmd.Wait()
		code := cmd.ProcessState.ExitCode()
		switch code {
		case ExitOK:
			p.finish(nil)
		case ExitServerDied:
			p.finish(ErrServerExited)
		default:
			p.finish(fmt.Errorf("lsp-transport exited with status %d: %v", code, err))
		}
		close(p.exited)
	}()

	acceptCtx, cancel := context.WithTimeout(ctx, p.spec.ProbeTimeout+5*time.Second)
	defer cancel()
	go func() {
		select {
		case <-p.exited:
			cancel()
		case <-acceptCtx.Done():
		}
	}()

	if err := link.Accept(acceptCtx); err != nil {
		_ = p.Stop()
		if perr := p.Err(); perr != nil {
			return perr
		}
		return err
	}

	go func() {
		<-link.Done()
		// prefer the exit status when the process is on its way out
		select {
		case <-p.exited:
		case <-time.After(time.Second):
			p.finish(ErrLinkClosed)
		}
	}()
	p.logger.Info("transport process connected", slog.Int("pid", cmd.Process.Pid))
	return nil
}

// Stop terminates the proxy, which stops its server. Best-effort.
func (p *Process) Stop() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	select {
	case <-p.exited:
	default:
		_ = terminateProcess(p.cmd.Process)
		select {
		case <-p.exited:
		case <-time.After(stopGrace):
			_ = killProcess(p.cmd.Process)
			<-p.exited
		}
	}
	return p.link.Close()
}

// =============================================================================
// LOCAL
// =============================================================================

// Local runs the proxy on a goroutine in the host process.
type Local struct {
	hostSide
	cfg    ProxyConfig
	cancel context.CancelFunc
	ran    chan struct{}
}

// NewLocal creates an in-process transport. Ports in cfg are assigned on
// Start.
func NewLocal(cfg ProxyConfig) *Local {
	return &Local{hostSide: newHostSide(cfg.Logger), cfg: cfg, ran: make(chan struct{})}
}

// Start binds the links, runs the proxy and waits for it to connect.
func (l *Local) Start(ctx context.Context) error {
	link, err := ListenHost("127.0.0.1", l.logger)
	if err != nil {
		return err
	}
	l.link = link

	cfg := l.cfg
	cfg.InPort, cfg.OutPort = link.InPort(), link.OutPort()
	cfg.LinkHost = "127.0.0.1"
	proxy := NewProxy(cfg)

	runCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	go func() {
		defer close(l.ran)
		l.finish(proxy.Run(runCtx))
	}()

	acceptCtx, stopAccept := context.WithCancel(ctx)
	defer stopAccept()
	go func() {
		select {
		case <-l.ran:
			stopAccept()
		case <-acceptCtx.Done():
		}
	}()

	if err := link.Accept(acceptCtx); err != nil {
		_ = l.Stop()
		if perr := l.Err(); perr != nil {
			return perr
		}
		return err
	}

	go func() {
		<-link.Done()
		select {
		case <-l.ran:
		case <-time.After(time.Second):
			l.finish(ErrLinkClosed)
		}
	}()
	return nil
}

// Stop cancels the proxy and waits for it to stop its server.
func (l *Local) Stop() error {
	if l.cancel == nil {
		return nil
	}
	l.cancel()
	select {
	case <-l.ran:
	case <-time.After(stopGrace):
		return errors.New("in-process transport did not stop in time")
	}
	return l.link.Close()
}
