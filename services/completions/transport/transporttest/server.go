// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transporttest provides an in-memory language server for tests.
//
// Server speaks real Content-Length framing over pipes and plugs into a
// proxy through its ConnectFunc, so tests exercise the full host → proxy →
// server path without spawning processes.
package transporttest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianComplete/services/completions/transport"
)

// Handler answers one request. Returning a non-nil error sends an error
// response instead of the result.
type Handler func(params json.RawMessage) (any, *transport.ResponseError)

// Server is a scriptable fake language server.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Server struct {
	mu       sync.Mutex
	handlers map[string]Handler
	received []transport.Message
	replies  []transport.Message
	notify   chan struct{}

	conn  *pipeConn
	codec *transport.Codec
}

// NewServer creates a server answering initialize and shutdown.
func NewServer() *Server {
	s := &Server{
		handlers: map[string]Handler{},
		notify:   make(chan struct{}),
	}
	s.Handle("initialize", func(json.RawMessage) (any, *transport.ResponseError) {
		return map[string]any{
			"capabilities": map[string]any{
				"textDocumentSync":   1,
				"completionProvider": map[string]any{"triggerCharacters": []string{"."}},
				"hoverProvider":      true,
				"definitionProvider": true,
			},
			"serverInfo": map[string]any{"name": "fake"},
		}, nil
	})
	s.Handle("shutdown", func(json.RawMessage) (any, *transport.ResponseError) { return nil, nil })
	return s
}

// Handle installs h for method, replacing any previous handler.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Connect is a ConnectFunc that wires the server to a proxy.
func (s *Server) Connect(ctx context.Context, spec transport.ServerSpec, logger *slog.Logger) (transport.ServerConn, error) {
	conn, serverR, serverW := newPipeConn()
	s.mu.Lock()
	s.conn = conn
	s.codec = transport.NewCodec(serverR, serverW)
	codec := s.codec
	s.mu.Unlock()

	go s.serve(codec)
	return conn, nil
}

func (s *Server) serve(codec *transport.Codec) {
	for {
		msg, err := codec.ReadMessage()
		if err != nil {
			return
		}
		s.record(msg)
		if msg.Method == "exit" {
			s.Exit()
			return
		}
		if !msg.IsRequest() {
			continue
		}

		s.mu.Lock()
		h, ok := s.handlers[msg.Method]
		s.mu.Unlock()

		var reply transport.Message
		if !ok {
			reply = transport.NewErrorResponse(msg.ID, transport.CodeMethodNotFound, "method not found: "+msg.Method)
		} else if result, rerr := h(msg.Params); rerr != nil {
			reply = transport.Message{ID: msg.ID, Error: rerr}
		} else if reply, err = transport.NewResult(msg.ID, result); err != nil {
			reply = transport.NewErrorResponse(msg.ID, transport.CodeInternalError, err.Error())
		}
		_ = codec.WriteMessage(reply)
	}
}

func (s *Server) record(msg transport.Message) {
	s.mu.Lock()
	if msg.IsResponse() {
		s.replies = append(s.replies, msg)
	} else {
		s.received = append(s.received, msg)
	}
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()
}

// Received returns the client messages seen for method, in order.
func (s *Server) Received(method string) []transport.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []transport.Message
	for _, m := range s.received {
		if m.Method == method {
			out = append(out, m)
		}
	}
	return out
}

// Methods returns the method of every client message seen, in order.
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	for i, m := range s.received {
		out[i] = m.Method
	}
	return out
}

// Replies returns the client's responses to server requests.
func (s *Server) Replies() []transport.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Message(nil), s.replies...)
}

// WaitFor blocks until at least n messages for method arrived.
func (s *Server) WaitFor(method string, n int, timeout time.Duration) []transport.Message {
	deadline := time.After(timeout)
	for {
		s.mu.Lock()
		ch := s.notify
		s.mu.Unlock()

		if got := s.Received(method); len(got) >= n {
			return got
		}
		select {
		case <-ch:
		case <-deadline:
			return s.Received(method)
		}
	}
}

// WaitForReply blocks until the client answered n server requests.
func (s *Server) WaitForReply(n int, timeout time.Duration) []transport.Message {
	deadline := time.After(timeout)
	for {
		s.mu.Lock()
		ch := s.notify
		got := len(s.replies)
		s.mu.Unlock()

		if got >= n {
			return s.Replies()
		}
		select {
		case <-ch:
		case <-deadline:
			return s.Replies()
		}
	}
}

// Notify sends a server notification to the client.
func (s *Server) Notify(method string, params any) error {
	msg, err := transport.NewNotification(method, params)
	if err != nil {
		return err
	}
	return s.write(msg)
}

// Request sends a server request with a string id to the client.
func (s *Server) Request(id string, method string, params any) error {
	raw, _ := json.Marshal(id)
	msg, err := transport.NewNotification(method, params)
	if err != nil {
		return err
	}
	msg.ID = raw
	return s.write(msg)
}

// WriteRaw writes an arbitrary frame body, for framing tests.
func (s *Server) WriteRaw(body []byte) error {
	s.mu.Lock()
	codec := s.codec
	s.mu.Unlock()
	if codec == nil {
		return io.ErrClosedPipe
	}
	return codec.WriteRaw(body)
}

func (s *Server) write(msg transport.Message) error {
	s.mu.Lock()
	codec := s.codec
	s.mu.Unlock()
	if codec == nil {
		return io.ErrClosedPipe
	}
	return codec.WriteMessage(msg)
}

// Exit simulates the server process dying.
func (s *Server) Exit() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.exit()
	}
}

// =============================================================================
// PIPE CONN
// =============================================================================

// pipeConn is the proxy's view of the fake server.
type pipeConn struct {
	fromServer *io.PipeReader
	toServer   *io.PipeWriter

	serverOut *io.PipeWriter
	serverIn  *io.PipeReader

	exited   chan struct{}
	exitOnce sync.Once
}

func newPipeConn() (*pipeConn, io.Reader, io.Writer) {
	fromServer, serverOut := io.Pipe()
	serverIn, toServer := io.Pipe()
	c := &pipeConn{
		fromServer: fromServer,
		toServer:   toServer,
		serverOut:  serverOut,
		serverIn:   serverIn,
		exited:     make(chan struct{}),
	}
	return c, serverIn, serverOut
}

func (c *pipeConn) Read(p []byte) (int, error)  { return c.fromServer.Read(p) }
func (c *pipeConn) Write(p []byte) (int, error) { return c.toServer.Write(p) }
func (c *pipeConn) Exited() <-chan struct{}     { return c.exited }

func (c *pipeConn) Close() error {
	c.exit()
	return nil
}

func (c *pipeConn) exit() {
	c.exitOnce.Do(func() {
		_ = c.serverOut.Close()
		_ = c.serverIn.Close()
		_ = c.toServer.Close()
		_ = c.fromServer.Close()
		close(c.exited)
	})
}
