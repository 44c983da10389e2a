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
	"fmt"
	"log/slog"
	"sort"

	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
)

// EventKind is a document lifecycle event.
type EventKind int

const (
	EventOpen EventKind = iota
	EventChange
	EventWillSave
	EventDidSave
	EventClose
)

// String returns the LSP notification the event maps to.
func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "didOpen"
	case EventChange:
		return "didChange"
	case EventWillSave:
		return "willSave"
	case EventDidSave:
		return "didSave"
	case EventClose:
		return "didClose"
	default:
		return "unknown"
	}
}

// Document is the manager's record of an open document.
type Document struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Version  int    `json:"version"`
	Text     string `json:"-"`
}

// DocumentEvent is broadcast to the providers tracking a document.
type DocumentEvent struct {
	Kind EventKind

	// Document is the state after the event.
	Document Document

	// Previous is the text before a change.
	Previous string

	// Reason applies to willSave.
	Reason lsp.TextDocumentSaveReason
}

type docEntry struct {
	doc         Document
	editors     []Editor
	diagnostics map[string]lsp.PublishDiagnosticsParams
}

func normalizePath(path string) string {
	return lsp.NormalizePath(path)
}

// Open registers editor on path and broadcasts didOpen on first open.
//
// Description:
//
//	language may be empty, in which case it is derived from the path's
//	extension. Opening an already open document only adds editor.
//
// Errors:
//
//	ErrNoLanguage - language is empty and the extension is unknown
//	ErrClosed - the manager was shut down
func (m *Manager) Open(path, language string, version int, text string, editor Editor) error {
	if m.isClosed() {
		return ErrClosed
	}
	path = normalizePath(path)
	if language == "" {
		language = m.Config().LanguageForPath(path)
		if language == "" {
			return fmt.Errorf("%w: %s", ErrNoLanguage, path)
		}
	}

	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	m.docsMu.Lock()
	if e, ok := m.docs[path]; ok {
		e.addEditor(editor)
		m.docsMu.Unlock()
		return nil
	}
	e := &docEntry{
		doc:         Document{Path: path, Language: language, Version: version, Text: text},
		diagnostics: make(map[string]lsp.PublishDiagnosticsParams),
	}
	e.addEditor(editor)
	m.docs[path] = e
	doc := e.doc
	m.docsMu.Unlock()

	openDocuments.Inc()
	m.broadcast(DocumentEvent{Kind: EventOpen, Document: doc})
	return nil
}

// Change records new text and broadcasts didChange.
//
// Errors:
//
//	ErrDocumentNotOpen - no prior Open
//	ErrStaleVersion - version does not exceed the last one
func (m *Manager) Change(path string, version int, text string) error {
	path = normalizePath(path)

	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	m.docsMu.Lock()
	e, ok := m.docs[path]
	if !ok {
		m.docsMu.Unlock()
		return fmt.Errorf("%w: %s", ErrDocumentNotOpen, path)
	}
	if version <= e.doc.Version {
		last := e.doc.Version
		m.docsMu.Unlock()
		return fmt.Errorf("%w: %s version %d after %d", ErrStaleVersion, path, version, last)
	}
	prev := e.doc.Text
	e.doc.Version = version
	e.doc.Text = text
	doc := e.doc
	m.docsMu.Unlock()

	m.broadcast(DocumentEvent{Kind: EventChange, Document: doc, Previous: prev})
	return nil
}

// WillSave broadcasts willSave.
func (m *Manager) WillSave(path string, reason lsp.TextDocumentSaveReason) error {
	return m.lifecycle(path, EventWillSave, reason)
}

// DidSave broadcasts didSave with the current text.
func (m *Manager) DidSave(path string) error {
	return m.lifecycle(path, EventDidSave, 0)
}

func (m *Manager) lifecycle(path string, kind EventKind, reason lsp.TextDocumentSaveReason) error {
	path = normalizePath(path)

	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	doc, ok := m.Document(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotOpen, path)
	}
	m.broadcast(DocumentEvent{Kind: kind, Document: doc, Reason: reason})
	return nil
}

// Close removes editor from path. didClose is broadcast when no editor is
// left. A nil editor closes the document for everyone.
func (m *Manager) Close(path string, editor Editor) error {
	path = normalizePath(path)

	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	m.docsMu.Lock()
	e, ok := m.docs[path]
	if !ok {
		m.docsMu.Unlock()
		return fmt.Errorf("%w: %s", ErrDocumentNotOpen, path)
	}
	if editor != nil {
		e.removeEditor(editor)
	} else {
		e.editors = nil
	}
	if len(e.editors) > 0 {
		m.docsMu.Unlock()
		return nil
	}
	delete(m.docs, path)
	doc := e.doc
	m.docsMu.Unlock()

	openDocuments.Dec()
	m.broadcast(DocumentEvent{Kind: EventClose, Document: doc})
	return nil
}

// broadcast hands ev to every provider tracking the document's language.
// Provider errors are logged: a stopped provider catches up on replay.
// Callers hold syncMu.
func (m *Manager) broadcast(ev DocumentEvent) {
	for _, p := range m.snapshot() {
		if !p.Tracks(ev.Document.Language) {
			continue
		}
		if err := p.Sync(ev); err != nil {
			m.logger.Debug("document event not delivered",
				slog.String("provider", p.Name()),
				slog.String("event", ev.Kind.String()),
				slog.String("path", ev.Document.Path),
				slog.String("error", err.Error()))
		}
	}
}

// Document returns the record of path.
func (m *Manager) Document(path string) (Document, bool) {
	m.docsMu.Lock()
	defer m.docsMu.Unlock()
	e, ok := m.docs[normalizePath(path)]
	if !ok {
		return Document{}, false
	}
	return e.doc, true
}

// Documents returns every open document sorted by path.
func (m *Manager) Documents() []Document {
	m.docsMu.Lock()
	out := make([]Document, 0, len(m.docs))
	for _, e := range m.docs {
		out = append(out, e.doc)
	}
	m.docsMu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// documentsOf returns the open documents p tracks.
func (m *Manager) documentsOf(p Provider) []Document {
	var out []Document
	for _, d := range m.Documents() {
		if p.Tracks(d.Language) {
			out = append(out, d)
		}
	}
	return out
}

// Diagnostics returns the last diagnostics of path keyed by provider.
// Providers are kept apart; nothing is merged.
func (m *Manager) Diagnostics(path string) map[string][]lsp.Diagnostic {
	m.docsMu.Lock()
	defer m.docsMu.Unlock()
	e, ok := m.docs[normalizePath(path)]
	if !ok {
		return nil
	}
	out := make(map[string][]lsp.Diagnostic, len(e.diagnostics))
	for provider, params := range e.diagnostics {
		out[provider] = append([]lsp.Diagnostic(nil), params.Diagnostics...)
	}
	return out
}

func (e *docEntry) addEditor(editor Editor) {
	if editor == nil {
		return
	}
	for _, ed := range e.editors {
		if ed == editor {
			return
		}
	}
	e.editors = append(e.editors, editor)
}

func (e *docEntry) removeEditor(editor Editor) {
	for i, ed := range e.editors {
		if ed == editor {
			e.editors = append(e.editors[:i], e.editors[i+1:]...)
			return
		}
	}
}

// =============================================================================
// DIAGNOSTICS
// =============================================================================

// diagnosticsRouter is the document target of one LSP provider. It
// forwards publishDiagnostics to the editors of the document.
type diagnosticsRouter struct {
	m        *Manager
	provider string
}

// HandleResponse implements lsp.ResponseTarget.
func (r *diagnosticsRouter) HandleResponse(method string, _ int64, result any) {
	params, ok := result.(lsp.PublishDiagnosticsParams)
	if method != lsp.MethodPublishDiagnostic || !ok {
		return
	}
	r.m.forwardDiagnostics(r.provider, params)
}

func (m *Manager) forwardDiagnostics(provider string, params lsp.PublishDiagnosticsParams) {
	path := normalizePath(lsp.URIToPath(params.URI))

	m.docsMu.Lock()
	e, ok := m.docs[path]
	if !ok {
		m.docsMu.Unlock()
		return
	}
	e.diagnostics[provider] = params
	editors := append([]Editor(nil), e.editors...)
	m.docsMu.Unlock()

	diagnosticsForwarded.WithLabelValues(provider).Inc()
	for _, ed := range editors {
		ed.HandleDiagnostics(provider, params)
	}
}
