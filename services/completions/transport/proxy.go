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
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// errHostGone stops the run when the host closes its links.
var errHostGone = errors.New("host link closed")

// ProxyConfig configures one proxy run.
type ProxyConfig struct {
	ServerSpec

	// InPort and OutPort are the host's link ports.
	InPort  int
	OutPort int

	// LinkHost is the host's loopback address. Default 127.0.0.1.
	LinkHost string

	// Connect reaches the server. Default Connect.
	Connect ConnectFunc

	Logger *slog.Logger
}

// Proxy forwards between the host links and a language server.
//
// Thread Safety:
//
//	Run must be called once.
type Proxy struct {
	cfg    ProxyConfig
	logger *slog.Logger

	// serialize each direction's write against shutdown so the message
	// being forwarded is finished before the streams close
	toServerMu sync.Mutex
	toHostMu   sync.Mutex
	stopping   atomic.Bool

	forwarded atomic.Int64
	dropped   atomic.Int64
}

// NewProxy creates a proxy. Nothing is started until Run.
func NewProxy(cfg ProxyConfig) *Proxy {
	if cfg.Connect == nil {
		cfg.Connect = Connect
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.ServerSpec = cfg.ServerSpec.withDefaults()
	return &Proxy{cfg: cfg, logger: cfg.Logger.With(slog.String("component", "lsp-transport"))}
}

// Run starts the server, connects the links and forwards until ctx is
// cancelled, the host goes away, or the server exits.
//
// Description:
//
//  1. Start or attach to the server and verify it is alive.
//  2. Dial both host links and post the server_ready sentinel.
//  3. Forward host→server (stamping jsonrpc 2.0 and framing) and
//     server→host (unframing) concurrently.
//  4. On cancellation, finish the in-flight message, stop the server,
//     close the links.
//
// Outputs:
//
//	error - nil on a clean stop, ErrServerExited when the server died,
//	        anything else on startup failure. See ExitCode.
func (p *Proxy) Run(ctx context.Context) error {
	server, err := p.cfg.Connect(ctx, p.cfg.ServerSpec, p.logger)
	if err != nil {
		return fmt.Errorf("start language server: %w", err)
	}

	link, err := DialProxyLink(ctx, p.cfg.LinkHost, p.cfg.InPort, p.cfg.OutPort)
	if err != nil {
		_ = server.Close()
		return fmt.Errorf("connect host links: %w", err)
	}

	if err := link.Send(ServerReady()); err != nil {
		_ = server.Close()
		_ = link.Close()
		return fmt.Errorf("post server_ready: %w", err)
	}
	p.logger.Info("server ready", slog.Int("in_port", p.cfg.InPort), slog.Int("out_port", p.cfg.OutPort))

	codec := NewCodec(server, server)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.hostToServer(gctx, link, codec) })
	g.Go(func() error { return p.serverToHost(gctx, link, codec) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-server.Exited():
			if !p.stopping.Load() {
				p.shutdown(server, link)
				return ErrServerExited
			}
		}
		p.shutdown(server, link)
		return nil
	})

	err = g.Wait()
	if errors.Is(err, errHostGone) {
		err = nil
	}
	p.logger.Info("transport stopped",
		slog.Int64("forwarded", p.forwarded.Load()),
		slog.Int64("dropped", p.dropped.Load()),
		slog.Any("reason", err))
	return err
}

func (p *Proxy) shutdown(server ServerConn, link *ProxyLink) {
	if p.stopping.Swap(true) {
		return
	}
	p.toServerMu.Lock()
	_ = server.Close()
	p.toServerMu.Unlock()

	p.toHostMu.Lock()
	_ = link.Close()
	p.toHostMu.Unlock()
}

func (p *Proxy) hostToServer(ctx context.Context, link *ProxyLink, codec *Codec) error {
	for {
		msg, err := link.Receive()
		if err != nil {
			if errors.Is(err, ErrFraming) {
				p.dropped.Add(1)
				p.logger.Warn("dropping malformed host message", slog.String("error", err.Error()))
				continue
			}
			if p.stopping.Load() {
				return nil
			}
			p.logger.Info("host link closed", slog.String("error", err.Error()))
			return errHostGone
		}
		if ctx.Err() != nil {
			return nil
		}

		p.toServerMu.Lock()
		if p.stopping.Load() {
			p.toServerMu.Unlock()
			return nil
		}
		err = codec.WriteMessage(msg)
		p.toServerMu.Unlock()
		if err != nil {
			if p.stopping.Load() {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrServerExited, err)
		}
		p.forwarded.Add(1)
		p.logger.Debug("host → server", slog.String("method", msg.Method), slog.String("id", string(msg.ID)))
	}
}

func (p *Proxy) serverToHost(ctx context.Context, link *ProxyLink, codec *Codec) error {
	for {
		msg, err := codec.ReadMessage()
		if err != nil {
			if errors.Is(err, ErrFraming) {
				p.dropped.Add(1)
				p.logger.Warn("dropping malformed server message", slog.String("error", err.Error()))
				continue
			}
			if p.stopping.Load() {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return ErrServerExited
			}
			return fmt.Errorf("%w: %v", ErrServerExited, err)
		}
		if ctx.Err() != nil {
			return nil
		}

		msg.JSONRPC = ""
		p.toHostMu.Lock()
		if p.stopping.Load() {
			p.toHostMu.Unlock()
			return nil
		}
		err = link.Send(msg)
		p.toHostMu.Unlock()
		if err != nil {
			if p.stopping.Load() {
				return nil
			}
			p.logger.Info("host link closed", slog.String("error", err.Error()))
			return errHostGone
		}
		p.forwarded.Add(1)
		p.logger.Debug("server → host", slog.String("method", msg.Method), slog.String("id", string(msg.ID)))
	}
}
