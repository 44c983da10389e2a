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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// incomingBuffer is the host-side queue depth for proxy messages.
const incomingBuffer = 256

var upgrader = websocket.Upgrader{
	// loopback only; the proxy is our own child process
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// =============================================================================
// HOST SIDE
// =============================================================================

// HostLink is the host end of the two proxy links.
//
// Description:
//
//	Binds two loopback ports. The proxy dials InPort to receive requests
//	and OutPort to post responses and notifications. Each port accepts a
//	single connection; extra connections are refused.
//
// Thread Safety:
//
//	Send is safe for concurrent use. Incoming has a single consumer.
type HostLink struct {
	logger *slog.Logger

	inLn, outLn   net.Listener
	inSrv, outSrv *http.Server
	inCh, outCh   chan *websocket.Conn

	mu      sync.Mutex
	in, out *websocket.Conn
	started bool
	writeMu sync.Mutex

	incoming  chan Message
	done      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// ListenHost binds both ports on host (usually 127.0.0.1) with ephemeral
// port numbers.
func ListenHost(host string, logger *slog.Logger) (*HostLink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if host == "" {
		host = "127.0.0.1"
	}

	inLn, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, fmt.Errorf("listen in port: %w", err)
	}
	outLn, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		_ = inLn.Close()
		return nil, fmt.Errorf("listen out port: %w", err)
	}

	l := &HostLink{
		logger:   logger,
		inLn:     inLn,
		outLn:    outLn,
		inCh:     make(chan *websocket.Conn, 1),
		outCh:    make(chan *websocket.Conn, 1),
		incoming: make(chan Message, incomingBuffer),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	l.inSrv = &http.Server{Handler: l.acceptHandler(l.inCh, "in"), ReadHeaderTimeout: 5 * time.Second}
	l.outSrv = &http.Server{Handler: l.acceptHandler(l.outCh, "out"), ReadHeaderTimeout: 5 * time.Second}

	go func() { _ = l.inSrv.Serve(inLn) }()
	go func() { _ = l.outSrv.Serve(outLn) }()
	return l, nil
}

func (l *HostLink) acceptHandler(ch chan *websocket.Conn, side string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			l.logger.Warn("link upgrade failed", slog.String("side", side), slog.String("error", err.Error()))
			return
		}
		select {
		case ch <- ws:
		default:
			l.logger.Warn("refusing second connection on link", slog.String("side", side))
			_ = ws.Close()
		}
	})
}

// InPort is the port the host sends requests on.
func (l *HostLink) InPort() int { return portOf(l.inLn) }

// OutPort is the port the proxy sends responses on.
func (l *HostLink) OutPort() int { return portOf(l.outLn) }

func portOf(ln net.Listener) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Accept waits until the proxy has connected both links, then starts
// delivering messages on Incoming.
func (l *HostLink) Accept(ctx context.Context) error {
	var in, out *websocket.Conn
	for in == nil || out == nil {
		select {
		case ws := <-l.inCh:
			in = ws
		case ws := <-l.outCh:
			out = ws
		case <-l.closed:
			return ErrLinkClosed
		case <-ctx.Done():
			if in != nil {
				_ = in.Close()
			}
			if out != nil {
				_ = out.Close()
			}
			return fmt.Errorf("waiting for proxy links: %w", ctx.Err())
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.closed:
		_ = in.Close()
		_ = out.Close()
		return ErrLinkClosed
	default:
	}
	l.in, l.out, l.started = in, out, true
	go l.readLoop()
	return nil
}

func (l *HostLink) readLoop() {
	defer close(l.done)
	defer close(l.incoming)

	for {
		_, data, err := l.out.ReadMessage()
		if err != nil {
			select {
			case <-l.closed:
			default:
				l.logger.Debug("out link closed", slog.String("error", err.Error()))
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			l.logger.Warn("dropping undecodable proxy message", slog.String("error", err.Error()))
			continue
		}
		select {
		case l.incoming <- msg:
		case <-l.closed:
			return
		}
	}
}

// Send posts msg on the in link.
func (l *HostLink) Send(msg Message) error {
	l.mu.Lock()
	in := l.in
	l.mu.Unlock()
	if in == nil {
		return ErrNotStarted
	}
	select {
	case <-l.closed:
		return ErrLinkClosed
	default:
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := in.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrLinkClosed, err)
	}
	return nil
}

// Incoming delivers proxy messages in arrival order. Closed with Done.
func (l *HostLink) Incoming() <-chan Message { return l.incoming }

// Done is closed when the out link stops delivering.
func (l *HostLink) Done() <-chan struct{} { return l.done }

// Close shuts both links and listeners. Idempotent.
func (l *HostLink) Close() error {
	var errs []error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		close(l.closed)
		if !l.started {
			close(l.incoming)
			close(l.done)
		}
		if l.in != nil {
			l.writeMu.Lock()
			_ = l.in.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			l.writeMu.Unlock()
			_ = l.in.Close()
		}
		if l.out != nil {
			_ = l.out.Close()
		}
		errs = append(errs, l.inSrv.Close(), l.outSrv.Close())
	})
	return errors.Join(errs...)
}

// =============================================================================
// PROXY SIDE
// =============================================================================

// ProxyLink is the proxy end of the two links.
type ProxyLink struct {
	in, out *websocket.Conn
	writeMu sync.Mutex
}

// DialProxyLink connects to the host's two ports.
func DialProxyLink(ctx context.Context, host string, inPort, outPort int) (*ProxyLink, error) {
	if host == "" {
		host = "127.0.0.1"
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	in, _, err := dialer.DialContext(ctx, linkURL(host, inPort), nil)
	if err != nil {
		return nil, fmt.Errorf("dial in link: %w", err)
	}
	out, _, err := dialer.DialContext(ctx, linkURL(host, outPort), nil)
	if err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("dial out link: %w", err)
	}
	return &ProxyLink{in: in, out: out}, nil
}

func linkURL(host string, port int) string {
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/"
}

// Receive blocks for the next host message. A frame that does not decode
// yields an ErrFraming-wrapped error; any other error means the link is gone.
func (l *ProxyLink) Receive() (Message, error) {
	_, data, err := l.in.ReadMessage()
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrLinkClosed, err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrFraming, err)
	}
	return msg, nil
}

// Send posts msg on the out link.
func (l *ProxyLink) Send(msg Message) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.out.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrLinkClosed, err)
	}
	return nil
}

// Close closes both links.
func (l *ProxyLink) Close() error {
	l.writeMu.Lock()
	_ = l.out.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	l.writeMu.Unlock()
	return errors.Join(l.in.Close(), l.out.Close())
}
