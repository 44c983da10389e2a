// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
)

// defaultRequestTimeout applies when the configuration has none.
const defaultRequestTimeout = 2 * time.Second

// Result is the merged answer to one Request.
type Result struct {
	Method string `json:"method"`

	// Items is the merged completion list.
	Items []lsp.CompletionItem `json:"items,omitempty"`

	Signature     *lsp.SignatureInformation `json:"signature,omitempty"`
	Hover         string                    `json:"hover,omitempty"`
	Definition    *lsp.Location             `json:"definition,omitempty"`
	Locations     []lsp.Location            `json:"locations,omitempty"`
	Symbols       []lsp.Symbol              `json:"symbols,omitempty"`
	Edits         []lsp.TextEdit            `json:"edits,omitempty"`
	WorkspaceEdit *lsp.WorkspaceEdit        `json:"workspaceEdit,omitempty"`

	// Providers lists the providers whose replies were used.
	Providers []string `json:"providers,omitempty"`

	// TimedOut is set when the deadline fired before every reply arrived.
	TimedOut bool `json:"timedOut,omitempty"`

	// Superseded is set when a newer request for the same file and method
	// replaced this one. The result is then empty.
	Superseded bool `json:"superseded,omitempty"`
}

// Empty reports whether no provider contributed.
func (r *Result) Empty() bool { return len(r.Providers) == 0 }

var featureMethods = map[string]bool{
	lsp.MethodCompletion:      true,
	lsp.MethodSignatureHelp:   true,
	lsp.MethodHover:           true,
	lsp.MethodDefinition:      true,
	lsp.MethodReferences:      true,
	lsp.MethodDocumentSymbol:  true,
	lsp.MethodFormatting:      true,
	lsp.MethodRangeFormatting: true,
	lsp.MethodRename:          true,
}

// =============================================================================
// TICKETS
// =============================================================================

type inflightKey struct {
	path   string
	method string
}

// reply is one provider's answer.
type reply struct {
	provider string
	priority int
	result   any
}

// ticket collects the replies of one fan-out. Once closed, deliveries are
// refused and counted as late.
type ticket struct {
	id      string
	key     inflightKey
	replies chan reply

	superseded chan struct{}
	once       sync.Once

	mu     sync.Mutex
	closed bool
}

func newTicket(key inflightKey, capacity int) *ticket {
	return &ticket{
		id:         uuid.NewString(),
		key:        key,
		replies:    make(chan reply, capacity),
		superseded: make(chan struct{}),
	}
}

// deliver queues r unless the ticket is closed. The channel holds one
// slot per provider and each provider delivers at most once.
func (t *ticket) deliver(r reply) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.replies <- r
	return true
}

func (t *ticket) close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *ticket) supersede() { t.once.Do(func() { close(t.superseded) }) }

// register makes t the outstanding request of its key, superseding the
// previous one.
func (m *Manager) register(t *ticket) {
	m.ticketMu.Lock()
	defer m.ticketMu.Unlock()
	if old, ok := m.inflight[t.key]; ok {
		old.supersede()
		supersededTotal.WithLabelValues(t.key.method).Inc()
	}
	m.inflight[t.key] = t
}

func (m *Manager) release(t *ticket) {
	m.ticketMu.Lock()
	defer m.ticketMu.Unlock()
	if m.inflight[t.key] == t {
		delete(m.inflight, t.key)
	}
}

// =============================================================================
// FAN-OUT
// =============================================================================

// Request fans req out to every running provider that supports it and
// merges the replies.
//
// Description:
//
//	Waits until every provider replied, the request timeout fired, a newer
//	request for the same (path, method) superseded this one, or ctx ended.
//	Providers that have not replied by then get their request cancelled
//	and their late replies are dropped. With no candidate provider the
//	result is empty.
//
// Errors:
//
//	ErrUnknownMethod - req.Method is not a feature method
//	ErrDocumentNotOpen - req.Path was never opened
//	ErrClosed - the manager was shut down
//	ctx.Err() - ctx ended first
func (m *Manager) Request(ctx context.Context, req Request) (*Result, error) {
	if !featureMethods[req.Method] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, req.Method)
	}
	if m.isClosed() {
		return nil, ErrClosed
	}
	doc, ok := m.Document(req.Path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotOpen, req.Path)
	}
	req.Path = doc.Path
	req.Language = doc.Language
	req.Text = doc.Text

	result := &Result{Method: req.Method}
	var candidates []Provider
	for _, p := range m.snapshot() {
		if p.Status() == StatusRunning && p.Supports(req.Language, req.Method) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return result, nil
	}

	t := newTicket(inflightKey{path: req.Path, method: req.Method}, len(candidates))
	m.register(t)
	defer m.release(t)
	fanoutsTotal.WithLabelValues(req.Method).Inc()
	started := time.Now()
	logger := m.logger.With(slog.String("ticket", t.id), slog.String("method", req.Method))

	cancels := make(map[string]func())
	expected := 0
	for _, p := range candidates {
		name, priority := p.Name(), p.Priority()
		var once sync.Once
		cancel, err := p.Send(ctx, req, func(res any) {
			once.Do(func() {
				if !t.deliver(reply{provider: name, priority: priority, result: res}) {
					lateReplies.WithLabelValues(name).Inc()
					logger.Debug("late reply dropped", slog.String("provider", name))
				}
			})
		})
		if err != nil {
			logger.Debug("provider refused request", slog.String("provider", name), slog.String("error", err.Error()))
			continue
		}
		expected++
		if cancel != nil {
			cancels[name] = cancel
		}
	}

	var (
		got     []reply
		replied = map[string]bool{}
		outcome = "complete"
		err     error
	)
	timer := time.NewTimer(m.requestTimeout())
	defer timer.Stop()

wait:
	for len(got) < expected {
		select {
		case r := <-t.replies:
			got = append(got, r)
			replied[r.provider] = true
		case <-timer.C:
			result.TimedOut = true
			outcome = "timeout"
			break wait
		case <-t.superseded:
			result.Superseded = true
			outcome = "superseded"
			break wait
		case <-ctx.Done():
			outcome, err = "cancelled", ctx.Err()
			break wait
		case <-m.done:
			outcome, err = "closed", ErrClosed
			break wait
		}
	}
	t.close()
	// replies that landed between the last receive and close
	for drained := false; !drained; {
		select {
		case r := <-t.replies:
			got = append(got, r)
			replied[r.provider] = true
		default:
			drained = true
		}
	}

	for name, cancel := range cancels {
		if !replied[name] {
			cancel()
		}
	}
	fanoutDuration.WithLabelValues(req.Method, outcome).Observe(time.Since(started).Seconds())
	if outcome == "timeout" {
		timeoutsTotal.WithLabelValues(req.Method).Inc()
		logger.Debug("request deadline fired", slog.Int("replies", len(got)), slog.Int("expected", expected))
	}

	if err != nil {
		return nil, err
	}
	if result.Superseded {
		return result, nil
	}
	merge(result, got)
	return result, nil
}

func (m *Manager) requestTimeout() time.Duration {
	if d := m.Config().RequestTimeout; d > 0 {
		return d
	}
	return defaultRequestTimeout
}

// Complete requests completion items at (line, column) of path.
func (m *Manager) Complete(ctx context.Context, path string, line, column int) ([]lsp.CompletionItem, error) {
	res, err := m.Request(ctx, Request{Method: lsp.MethodCompletion, Path: path, Line: line, Column: column})
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// SignatureHelp requests the active signature at (line, column) of path.
func (m *Manager) SignatureHelp(ctx context.Context, path string, line, column int) (*lsp.SignatureInformation, error) {
	res, err := m.Request(ctx, Request{Method: lsp.MethodSignatureHelp, Path: path, Line: line, Column: column})
	if err != nil {
		return nil, err
	}
	return res.Signature, nil
}

// Hover requests the hover text at (line, column) of path.
func (m *Manager) Hover(ctx context.Context, path string, line, column int) (string, error) {
	res, err := m.Request(ctx, Request{Method: lsp.MethodHover, Path: path, Line: line, Column: column})
	if err != nil {
		return "", err
	}
	return res.Hover, nil
}

// Definition requests the definition of the symbol at (line, column).
func (m *Manager) Definition(ctx context.Context, path string, line, column int) (*lsp.Location, error) {
	res, err := m.Request(ctx, Request{Method: lsp.MethodDefinition, Path: path, Line: line, Column: column})
	if err != nil {
		return nil, err
	}
	return res.Definition, nil
}
