// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianComplete/services/completions/transport"
)

// =============================================================================
// CONTRACTS
// =============================================================================

// Transport carries messages to and from one language server.
type Transport interface {
	Start(ctx context.Context) error
	Send(msg transport.Message) error
	Incoming() <-chan transport.Message
	Done() <-chan struct{}
	Stop() error
	Err() error
}

// ResponseTarget receives normalized results for the requests it issued
// and diagnostics for the documents it registered.
//
// result is one of []CompletionItem, *SignatureInformation, string,
// *Location, []Location, []Symbol, []TextEdit, *WorkspaceEdit,
// PublishDiagnosticsParams, or nil for an empty or failed response.
type ResponseTarget interface {
	HandleResponse(method string, id int64, result any)
}

// Hooks are optional callbacks for lifecycle and window events. They run
// on the client's reader goroutine and must not block.
type Hooks struct {
	// Initialized fires once capabilities are known.
	Initialized func(language string, caps Capabilities)

	// InitializeFailed fires on an initialize error or timeout. The client
	// stays STARTING until stopped.
	InitializeFailed func(language string, err error)

	// Stopped fires when the transport is gone. err is nil after Stop.
	Stopped func(language string, err error)

	ShowMessage func(language string, kind int, message string)
	LogMessage  func(language string, kind int, message string)
	Progress    func(language string, token, value json.RawMessage)
	Telemetry   func(language string, params json.RawMessage)

	// ApplyEdit answers workspace/applyEdit. Without it edits are refused.
	ApplyEdit func(language string, edit WorkspaceEdit) bool
}

// Options configure a Client.
type Options struct {
	// Language is the language tag this client serves.
	Language string

	// Folder is the workspace root sent as rootUri. May be empty.
	Folder string

	// NewTransport builds a fresh transport for each Start.
	NewTransport func() Transport

	// Settings is the workspace/didChangeConfiguration payload.
	Settings map[string]any

	// InitializationOptions are passed through in initialize.
	InitializationOptions map[string]any

	// InitializeTimeout bounds the initialize round trip. Default 30s.
	InitializeTimeout time.Duration

	// ShutdownTimeout bounds the wait for the shutdown response. Default 2s.
	ShutdownTimeout time.Duration

	Hooks  Hooks
	Logger *slog.Logger
}

// =============================================================================
// STATE
// =============================================================================

// ClientState is the lifecycle state of a Client.
type ClientState int

const (
	// StateStopped means no transport is running.
	StateStopped ClientState = iota

	// StateStarting means the transport runs but initialize has not completed.
	StateStarting

	// StateRunning means capabilities are known and requests flow.
	StateRunning

	// StateShuttingDown means shutdown was sent.
	StateShuttingDown
)

// String returns the state name.
func (s ClientState) String() string {
	names := []string{"STOPPED", "STARTING", "RUNNING", "SHUTTING_DOWN"}
	if int(s) < len(names) {
		return names[s]
	}
	return "UNKNOWN"
}

// pendingRequest is one outstanding request.
type pendingRequest struct {
	method string
	target ResponseTarget
	uri    string
	sent   time.Time
	span   trace.Span
	queued bool
}

// document is the client's record of one file.
type document struct {
	path     string
	uri      string
	language string
	version  int
	text     string
	open     bool
	targets  []ResponseTarget
}

// DocumentInfo describes a tracked document.
type DocumentInfo struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Version  int    `json:"version"`
	Open     bool   `json:"open"`
	Watchers int    `json:"watchers"`
}

// Stats are running counters for status reporting.
type Stats struct {
	Sent      int64 `json:"sent"`
	Received  int64 `json:"received"`
	Errors    int64 `json:"errors"`
	Dropped   int64 `json:"dropped"`
	Cancelled int64 `json:"cancelled"`
	Pending   int   `json:"pending"`
	Restarts  int   `json:"restarts"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is an LSP client for one language.
//
// Thread Safety:
//
//	Safe for concurrent use. Outbound messages are written under the
//	client mutex, so they reach the server in call order.
type Client struct {
	opts   Options
	logger *slog.Logger

	mu            sync.Mutex
	state         ClientState
	transport     Transport
	nextID        int64
	pending       map[int64]*pendingRequest
	queue         []transport.Message
	docs          map[string]*document
	caps          Capabilities
	settings      map[string]any
	folders       []WorkspaceFolder
	registrations map[string]Registration
	initSent      bool
	initTimer     *time.Timer
	ready         chan struct{}
	stopping      bool
	shutdownDone  chan struct{}
	readerDone    chan struct{}
	starts        int
	stats         Stats
}

// NewClient creates a stopped client.
func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.InitializeTimeout <= 0 {
		opts.InitializeTimeout = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 2 * time.Second
	}
	c := &Client{
		opts:          opts,
		logger:        opts.Logger.With(slog.String("language", opts.Language)),
		pending:       make(map[int64]*pendingRequest),
		docs:          make(map[string]*document),
		settings:      opts.Settings,
		registrations: make(map[string]Registration),
		ready:         make(chan struct{}),
	}
	if opts.Folder != "" {
		c.folders = []WorkspaceFolder{folderFor(opts.Folder)}
	}
	return c
}

func folderFor(path string) WorkspaceFolder {
	return WorkspaceFolder{URI: PathToURI(path), Name: filepath.Base(path)}
}

// Start launches a transport and begins the initialize handshake.
//
// Description:
//
//	Moves STOPPED → STARTING and returns once the transport is connected.
//	initialize is sent when the proxy posts server_ready; use WaitReady or
//	Hooks.Initialized to learn when the client is RUNNING.
//
// Errors:
//
//	ErrAlreadyStarted - the client is not STOPPED
//	ErrNoTransport - Options.NewTransport is nil
//	wrapped transport errors - fatal for this language only
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateStopped {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	if c.opts.NewTransport == nil {
		c.mu.Unlock()
		return ErrNoTransport
	}
	t := c.opts.NewTransport()
	c.state = StateStarting
	c.transport = t
	c.stopping = false
	c.initSent = false
	c.ready = make(chan struct{})
	if c.starts > 0 {
		c.stats.Restarts++
	}
	c.starts++
	c.mu.Unlock()

	c.logger.Info("starting language client", slog.String("folder", c.opts.Folder))
	if err := t.Start(ctx); err != nil {
		c.mu.Lock()
		if c.transport == t {
			c.state = StateStopped
			c.transport = nil
		}
		c.mu.Unlock()
		recordServerStart(ctx, c.opts.Language, false)
		return fmt.Errorf("start %s transport: %w", c.opts.Language, err)
	}
	recordServerStart(ctx, c.opts.Language, true)

	done := make(chan struct{})
	c.mu.Lock()
	c.readerDone = done
	c.mu.Unlock()
	go c.readLoop(t, done)
	return nil
}

// WaitReady blocks until the client is RUNNING or ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the server down and kills the transport. Best-effort and
// idempotent; pending requests are dropped without being answered.
func (c *Client) Stop() error {
	c.mu.Lock()
	t := c.transport
	if t == nil || c.state == StateStopped {
		c.mu.Unlock()
		return nil
	}
	prev := c.state
	c.stopping = true
	c.state = StateShuttingDown

	var done chan struct{}
	if prev == StateRunning {
		done = make(chan struct{})
		c.shutdownDone = done
		if msg, id, err := c.messageLocked(MethodShutdown, nil); err == nil {
			c.pending[id] = &pendingRequest{method: MethodShutdown, sent: time.Now()}
			if err := c.writeLocked(msg); err != nil {
				done = nil
			}
		}
	}
	readerDone := c.readerDone
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(c.opts.ShutdownTimeout):
			c.logger.Warn("shutdown not acknowledged", slog.Duration("timeout", c.opts.ShutdownTimeout))
		}
		c.mu.Lock()
		_ = c.notifyLocked(MethodExit, nil)
		c.mu.Unlock()

		// a well-behaved server exits on its own after exit
		select {
		case <-t.Done():
		case <-time.After(c.opts.ShutdownTimeout):
		}
	}

	err := t.Stop()
	if readerDone != nil {
		select {
		case <-readerDone:
		case <-time.After(5 * time.Second):
		}
	}
	c.transportClosed(t, nil)
	c.logger.Info("language client stopped")
	return err
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Language returns the client's language tag.
func (c *Client) Language() string { return c.opts.Language }

// State returns the lifecycle state.
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Capabilities returns the merged capability record.
func (c *Client) Capabilities() Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// Supports reports whether the running server advertises method.
func (c *Client) Supports(method string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		_, known := methodTable[method]
		return known
	}
	return c.caps.Supports(method)
}

// Stats returns a snapshot of the counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Pending = len(c.pending)
	return s
}

// Documents lists tracked documents sorted by path.
func (c *Client) Documents() []DocumentInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DocumentInfo, 0, len(c.docs))
	for _, d := range c.docs {
		out = append(out, DocumentInfo{Path: d.path, Language: d.language, Version: d.version, Open: d.open, Watchers: len(d.targets)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Registrations returns the server's dynamic registrations by id.
func (c *Client) Registrations() map[string]Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Registration, len(c.registrations))
	for k, v := range c.registrations {
		out[k] = v
	}
	return out
}

// PendingMethod returns the method recorded for an outstanding id.
func (c *Client) PendingMethod(id int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return "", false
	}
	return p.method, true
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// RegisterFile adds target to the watchers of path without opening it.
func (c *Client) RegisterFile(path string, target ResponseTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registerLocked(path, target)
}

func (c *Client) registerLocked(path string, target ResponseTarget) *document {
	uri := PathToURI(path)
	doc, ok := c.docs[uri]
	if !ok {
		doc = &document{path: path, uri: uri}
		c.docs[uri] = doc
	}
	if target != nil {
		for _, t := range doc.targets {
			if t == target {
				return doc
			}
		}
		doc.targets = append(doc.targets, target)
	}
	return doc
}

// DocumentOpen records the document and sends didOpen.
//
// Description:
//
//	Auto-registers target. While STARTING or STOPPED nothing is sent:
//	every open document is announced when initialize completes. Opening
//	an already open document only registers target.
func (c *Client) DocumentOpen(path, language string, version int, text string, target ResponseTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc := c.registerLocked(path, target)
	if doc.open {
		return nil
	}
	doc.open = true
	doc.language = language
	doc.version = version
	doc.text = text

	if c.state != StateRunning || !c.caps.Sync.OpenClose {
		return nil
	}
	return c.notifyLocked(MethodDidOpen, didOpenParams(doc))
}

func didOpenParams(doc *document) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{
			"uri":        doc.uri,
			"languageId": doc.language,
			"version":    doc.version,
			"text":       doc.text,
		},
	}
}

// DocumentChanged records new text and sends didChange.
//
// Description:
//
//	Versions must strictly increase. Full text is sent when the server
//	syncs in full, a single computed range when it syncs incrementally,
//	and nothing when it does not sync.
//
// Errors:
//
//	ErrDocumentNotOpen - no prior DocumentOpen
//	ErrStaleVersion - version <= last version
func (c *Client) DocumentChanged(path string, version int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[PathToURI(path)]
	if !ok || !doc.open {
		return fmt.Errorf("%w: %s", ErrDocumentNotOpen, path)
	}
	if version <= doc.version {
		return fmt.Errorf("%w: %s version %d after %d", ErrStaleVersion, path, version, doc.version)
	}
	prev := doc.text
	doc.version = version
	doc.text = text

	if c.state != StateRunning {
		return nil
	}

	var change TextDocumentContentChangeEvent
	switch c.caps.Sync.Change {
	case SyncNone:
		return nil
	case SyncIncremental:
		change = IncrementalChange(prev, text)
	default:
		change = TextDocumentContentChangeEvent{Text: text}
	}
	return c.notifyLocked(MethodDidChange, map[string]any{
		"textDocument":   map[string]any{"uri": doc.uri, "version": version},
		"contentChanges": []TextDocumentContentChangeEvent{change},
	})
}

// DocumentWillSave sends willSave when the server asked for it.
func (c *Client) DocumentWillSave(path string, reason TextDocumentSaveReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[PathToURI(path)]
	if !ok || !doc.open {
		return fmt.Errorf("%w: %s", ErrDocumentNotOpen, path)
	}
	if c.state != StateRunning || !c.caps.Sync.WillSave {
		return nil
	}
	return c.notifyLocked(MethodWillSave, map[string]any{
		"textDocument": map[string]any{"uri": doc.uri},
		"reason":       reason,
	})
}

// DocumentDidSave sends didSave, with text when the server wants it.
func (c *Client) DocumentDidSave(path, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[PathToURI(path)]
	if !ok || !doc.open {
		return fmt.Errorf("%w: %s", ErrDocumentNotOpen, path)
	}
	if c.state != StateRunning || !c.caps.Sync.SaveEnabled {
		return nil
	}
	params := map[string]any{"textDocument": map[string]any{"uri": doc.uri}}
	if c.caps.Sync.IncludeText {
		params["text"] = text
	}
	return c.notifyLocked(MethodDidSave, params)
}

// DocumentDidClose sends didClose and deregisters target.
//
// Description:
//
//	Queued requests for the document are dropped so that nothing
//	referencing the URI is sent after didClose. The record is forgotten
//	once no target watches it.
func (c *Client) DocumentDidClose(path string, target ResponseTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	uri := PathToURI(path)
	doc, ok := c.docs[uri]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotOpen, path)
	}
	for i, t := range doc.targets {
		if t == target {
			doc.targets = append(doc.targets[:i], doc.targets[i+1:]...)
			break
		}
	}
	if len(doc.targets) == 0 {
		delete(c.docs, uri)
	}
	if !doc.open {
		return nil
	}
	doc.open = false
	c.dropQueuedLocked(uri)

	if c.state != StateRunning || !c.caps.Sync.OpenClose {
		return nil
	}
	return c.notifyLocked(MethodDidClose, map[string]any{"textDocument": map[string]any{"uri": uri}})
}

// =============================================================================
// FEATURE REQUESTS
// =============================================================================

func positionParams(uri string, line, column int) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     Position{Line: line, Character: column},
	}
}

// Completion requests textDocument/completion. Returns the request id.
func (c *Client) Completion(ctx context.Context, path string, line, column int, target ResponseTarget) (int64, error) {
	uri := PathToURI(path)
	params := positionParams(uri, line, column)
	params["context"] = map[string]any{"triggerKind": 1}
	return c.request(ctx, MethodCompletion, uri, params, target)
}

// SignatureHelp requests textDocument/signatureHelp.
func (c *Client) SignatureHelp(ctx context.Context, path string, line, column int, target ResponseTarget) (int64, error) {
	uri := PathToURI(path)
	return c.request(ctx, MethodSignatureHelp, uri, positionParams(uri, line, column), target)
}

// Hover requests textDocument/hover.
func (c *Client) Hover(ctx context.Context, path string, line, column int, target ResponseTarget) (int64, error) {
	uri := PathToURI(path)
	return c.request(ctx, MethodHover, uri, positionParams(uri, line, column), target)
}

// Definition requests textDocument/definition.
func (c *Client) Definition(ctx context.Context, path string, line, column int, target ResponseTarget) (int64, error) {
	uri := PathToURI(path)
	return c.request(ctx, MethodDefinition, uri, positionParams(uri, line, column), target)
}

// References requests textDocument/references.
func (c *Client) References(ctx context.Context, path string, line, column int, includeDeclaration bool, target ResponseTarget) (int64, error) {
	uri := PathToURI(path)
	params := positionParams(uri, line, column)
	params["context"] = map[string]any{"includeDeclaration": includeDeclaration}
	return c.request(ctx, MethodReferences, uri, params, target)
}

// DocumentSymbol requests textDocument/documentSymbol.
func (c *Client) DocumentSymbol(ctx context.Context, path string, target ResponseTarget) (int64, error) {
	uri := PathToURI(path)
	return c.request(ctx, MethodDocumentSymbol, uri, map[string]any{"textDocument": map[string]any{"uri": uri}}, target)
}

// Formatting requests textDocument/formatting.
func (c *Client) Formatting(ctx context.Context, path string, opts FormattingOptions, target ResponseTarget) (int64, error) {
	uri := PathToURI(path)
	return c.request(ctx, MethodFormatting, uri, map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"options":      opts,
	}, target)
}

// RangeFormatting requests textDocument/rangeFormatting.
func (c *Client) RangeFormatting(ctx context.Context, path string, rng Range, opts FormattingOptions, target ResponseTarget) (int64, error) {
	uri := PathToURI(path)
	return c.request(ctx, MethodRangeFormatting, uri, map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"range":        rng,
		"options":      opts,
	}, target)
}

// Rename requests textDocument/rename.
func (c *Client) Rename(ctx context.Context, path string, line, column int, newName string, target ResponseTarget) (int64, error) {
	uri := PathToURI(path)
	params := positionParams(uri, line, column)
	params["newName"] = newName
	return c.request(ctx, MethodRename, uri, params, target)
}

// request sends (or queues while STARTING) a feature request.
func (c *Client) request(ctx context.Context, method, uri string, params any, target ResponseTarget) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped || c.state == StateShuttingDown {
		return 0, ErrNotRunning
	}
	if doc, ok := c.docs[uri]; !ok || !doc.open {
		return 0, fmt.Errorf("%w: %s", ErrDocumentNotOpen, URIToPath(uri))
	}
	if c.state == StateRunning && !c.caps.Supports(method) {
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, method)
	}

	msg, id, err := c.messageLocked(method, params)
	if err != nil {
		return 0, err
	}
	var p *pendingRequest
	if id != 0 {
		p = &pendingRequest{
			method: method,
			target: target,
			uri:    uri,
			sent:   time.Now(),
			span:   startRequestSpan(ctx, method, c.opts.Language, uri),
		}
		c.pending[id] = p
	}

	if c.state == StateStarting {
		if p != nil {
			p.queued = true
		}
		c.queue = append(c.queue, msg)
		return id, nil
	}
	if err := c.writeLocked(msg); err != nil {
		if p != nil {
			delete(c.pending, id)
			endRequestSpan(p.span, 0, err)
		}
		return 0, err
	}
	return id, nil
}

// Cancel drops the pending entry for id and sends $/cancelRequest.
// Returns false when id is not outstanding.
func (c *Client) Cancel(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[id]
	if !ok {
		return false
	}
	delete(c.pending, id)
	c.stats.Cancelled++
	endRequestSpan(p.span, 0, nil)

	if p.queued {
		c.removeQueuedLocked(id)
		return true
	}
	if c.state == StateRunning || c.state == StateShuttingDown {
		_ = c.notifyLocked(MethodCancelRequest, map[string]any{"id": id})
	}
	return true
}

// =============================================================================
// WORKSPACE
// =============================================================================

// SendConfiguration replaces the settings and sends didChangeConfiguration.
// While STARTING the new settings go out with the initialized sequence.
func (c *Client) SendConfiguration(settings map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.settings = settings
	if c.state != StateRunning {
		return nil
	}
	return c.notifyLocked(MethodDidChangeConfig, map[string]any{"settings": settings})
}

// DidChangeWatchedFiles sends a batch of file events.
func (c *Client) DidChangeWatchedFiles(events []FileEvent) error {
	if len(events) == 0 {
		return nil
	}
	return c.workspaceNotify(MethodDidChangeWatched, map[string]any{"changes": events})
}

// DidChangeWorkspaceFolders announces added and removed folders.
func (c *Client) DidChangeWorkspaceFolders(added, removed []WorkspaceFolder) error {
	c.mu.Lock()
	for _, r := range removed {
		for i, f := range c.folders {
			if f.URI == r.URI {
				c.folders = append(c.folders[:i], c.folders[i+1:]...)
				break
			}
		}
	}
	for _, a := range added {
		dup := false
		for _, f := range c.folders {
			if f.URI == a.URI {
				dup = true
				break
			}
		}
		if !dup {
			c.folders = append(c.folders, a)
		}
	}
	initSent := c.initSent
	c.mu.Unlock()

	if !initSent {
		// folders go out with initialize
		return nil
	}
	if added == nil {
		added = []WorkspaceFolder{}
	}
	if removed == nil {
		removed = []WorkspaceFolder{}
	}
	return c.workspaceNotify(MethodDidChangeFolders, map[string]any{
		"event": map[string]any{"added": added, "removed": removed},
	})
}

// Folders returns the current workspace folders.
func (c *Client) Folders() []WorkspaceFolder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]WorkspaceFolder(nil), c.folders...)
}

func (c *Client) workspaceNotify(method string, params any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateRunning:
		return c.notifyLocked(method, params)
	case StateStarting:
		msg, id, err := c.messageLocked(method, params)
		if err != nil {
			return err
		}
		if id != 0 {
			return fmt.Errorf("%w: %s", ErrExpectsResponse, method)
		}
		c.queue = append(c.queue, msg)
		return nil
	default:
		return ErrNotRunning
	}
}

// =============================================================================
// WIRE
// =============================================================================

func (c *Client) allocID() int64 {
	c.nextID++
	return c.nextID
}

// messageLocked builds the wire message for method. Methods the method
// table marks as expecting a response get a fresh non-zero id, which the
// caller must record in the pending table; the rest are notifications.
func (c *Client) messageLocked(method string, params any) (transport.Message, int64, error) {
	spec, ok := methodTable[method]
	if !ok {
		return transport.Message{}, 0, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	if !spec.requiresResponse {
		msg, err := transport.NewNotification(method, params)
		return msg, 0, err
	}
	id := c.allocID()
	msg, err := transport.NewRequest(id, method, params)
	return msg, id, err
}

func (c *Client) notifyLocked(method string, params any) error {
	msg, id, err := c.messageLocked(method, params)
	if err != nil {
		return err
	}
	if id != 0 {
		return fmt.Errorf("%w: %s", ErrExpectsResponse, method)
	}
	return c.writeLocked(msg)
}

func (c *Client) writeLocked(msg transport.Message) error {
	if c.transport == nil {
		return ErrNotRunning
	}
	if err := c.transport.Send(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Method, err)
	}
	c.stats.Sent++
	return nil
}

func (c *Client) removeQueuedLocked(id int64) {
	raw := transport.IntID(id)
	for i, m := range c.queue {
		if string(m.ID) == string(raw) {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return
		}
	}
}

func (c *Client) dropQueuedLocked(uri string) {
	kept := c.queue[:0]
	for _, m := range c.queue {
		id, isReq := m.IntID()
		if isReq {
			if p, ok := c.pending[id]; ok && p.uri == uri {
				delete(c.pending, id)
				endRequestSpan(p.span, 0, nil)
				continue
			}
		}
		kept = append(kept, m)
	}
	c.queue = kept
}

// =============================================================================
// INBOUND
// =============================================================================

func (c *Client) readLoop(t Transport, done chan struct{}) {
	defer close(done)
	for msg := range t.Incoming() {
		c.dispatch(t, msg)
	}
	select {
	case <-t.Done():
	case <-time.After(2 * time.Second):
	}
	c.transportClosed(t, t.Err())
}

func (c *Client) dispatch(t Transport, msg transport.Message) {
	c.mu.Lock()
	c.stats.Received++
	c.mu.Unlock()

	switch {
	case msg.IsServerReady():
		c.onServerReady(t)
	case msg.IsResponse():
		c.onResponse(msg)
	case msg.IsRequest():
		c.onServerRequest(t, msg)
	case msg.IsNotification():
		c.onNotification(msg)
	default:
		c.drop("malformed", slog.String("id", string(msg.ID)))
	}
}

func (c *Client) drop(reason string, attrs ...any) {
	c.mu.Lock()
	c.stats.Dropped++
	c.mu.Unlock()
	recordDropped(context.Background(), c.opts.Language, reason)
	c.logger.Debug("dropping server message", append([]any{slog.String("reason", reason)}, attrs...)...)
}

func (c *Client) onServerReady(t Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport != t || c.state != StateStarting || c.initSent {
		return
	}

	params := map[string]any{
		"processId":             os.Getpid(),
		"clientInfo":            map[string]any{"name": "aleutian-complete"},
		"capabilities":          clientCapabilities(),
		"initializationOptions": c.opts.InitializationOptions,
		"trace":                 "off",
		"workspaceFolders":      append([]WorkspaceFolder{}, c.folders...),
		"rootUri":               nil,
		"rootPath":              nil,
	}
	if c.opts.Folder != "" {
		params["rootUri"] = PathToURI(c.opts.Folder)
		params["rootPath"] = c.opts.Folder
	}

	msg, id, err := c.messageLocked(MethodInitialize, params)
	if err != nil {
		c.logger.Error("cannot build initialize", slog.String("error", err.Error()))
		return
	}
	c.pending[id] = &pendingRequest{method: MethodInitialize, sent: time.Now()}
	if err := c.writeLocked(msg); err != nil {
		delete(c.pending, id)
		c.logger.Error("cannot send initialize", slog.String("error", err.Error()))
		return
	}
	c.initSent = true
	c.logger.Debug("server ready, initialize sent", slog.Int64("id", id))

	c.initTimer = time.AfterFunc(c.opts.InitializeTimeout, func() { c.onInitializeTimeout(t) })
}

func (c *Client) onInitializeTimeout(t Transport) {
	c.mu.Lock()
	if c.transport != t || c.state != StateStarting {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.logger.Error("initialize timed out", slog.Duration("timeout", c.opts.InitializeTimeout))
	if h := c.opts.Hooks.InitializeFailed; h != nil {
		h(c.opts.Language, ErrInitializeTimeout)
	}
}

func (c *Client) onResponse(msg transport.Message) {
	id, ok := msg.IntID()
	if !ok {
		c.drop("non-integer response id", slog.String("id", string(msg.ID)))
		return
	}

	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		c.drop("unknown or cancelled id", slog.Int64("id", id))
		return
	}
	elapsed := time.Since(p.sent)

	if msg.Error != nil {
		rerr := newResponseError(p.method, msg.Error)
		c.mu.Lock()
		c.stats.Errors++
		c.mu.Unlock()
		c.logger.Debug("server returned an error", slog.String("method", p.method), slog.Any("error", rerr))
		endRequestSpan(p.span, 0, rerr)
		recordRequestMetrics(context.Background(), p.method, c.opts.Language, elapsed, 0, false)

		switch p.method {
		case MethodInitialize:
			c.logger.Error("initialize failed", slog.Any("error", rerr))
			if h := c.opts.Hooks.InitializeFailed; h != nil {
				h(c.opts.Language, rerr)
			}
		case MethodShutdown:
			c.shutdownAcked()
		default:
			deliver(p.target, p.method, id, nil)
		}
		return
	}

	switch p.method {
	case MethodInitialize:
		c.onInitialized(msg.Result)
		return
	case MethodShutdown:
		c.shutdownAcked()
		return
	}

	var result any
	if spec := methodTable[p.method]; spec.normalize != nil {
		result = spec.normalize(msg.Result, p.uri)
	}
	n := resultCount(result)
	endRequestSpan(p.span, n, nil)
	recordRequestMetrics(context.Background(), p.method, c.opts.Language, elapsed, n, true)
	deliver(p.target, p.method, id, result)
}

func (c *Client) shutdownAcked() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdownDone != nil {
		close(c.shutdownDone)
		c.shutdownDone = nil
	}
}

func deliver(target ResponseTarget, method string, id int64, result any) {
	if target != nil {
		target.HandleResponse(method, id, result)
	}
}

// onInitialized completes the handshake.
//
// Description:
//
//	Merges capabilities, moves to RUNNING, then sends initialized, the
//	current settings, didOpen for every open document, and finally the
//	queued messages in order. Queued requests the server turned out not to
//	support are answered with nil.
func (c *Client) onInitialized(result json.RawMessage) {
	caps, err := NormalizeCapabilities([]byte(gjson.GetBytes(result, "capabilities").Raw))
	if err != nil {
		c.logger.Warn("malformed server capabilities, using defaults", slog.String("error", err.Error()))
	}
	serverName := gjson.GetBytes(result, "serverInfo.name").String()

	type unsupported struct {
		target ResponseTarget
		method string
		id     int64
	}
	var rejected []unsupported

	c.mu.Lock()
	if c.initTimer != nil {
		c.initTimer.Stop()
		c.initTimer = nil
	}
	if c.state != StateStarting {
		c.mu.Unlock()
		return
	}
	c.caps = caps
	c.state = StateRunning

	_ = c.notifyLocked(MethodInitialized, map[string]any{})
	if c.settings != nil {
		_ = c.notifyLocked(MethodDidChangeConfig, map[string]any{"settings": c.settings})
	}

	if caps.Sync.OpenClose {
		uris := make([]string, 0, len(c.docs))
		for uri, d := range c.docs {
			if d.open {
				uris = append(uris, uri)
			}
		}
		sort.Strings(uris)
		for _, uri := range uris {
			_ = c.notifyLocked(MethodDidOpen, didOpenParams(c.docs[uri]))
		}
	}

	queue := c.queue
	c.queue = nil
	for _, msg := range queue {
		if id, isReq := msg.IntID(); isReq {
			p, ok := c.pending[id]
			if !ok {
				continue
			}
			p.queued = false
			if !caps.Supports(msg.Method) {
				delete(c.pending, id)
				endRequestSpan(p.span, 0, ErrUnsupported)
				rejected = append(rejected, unsupported{p.target, p.method, id})
				continue
			}
			p.sent = time.Now()
		}
		if err := c.writeLocked(msg); err != nil {
			c.logger.Warn("flushing queued message failed", slog.String("method", msg.Method), slog.String("error", err.Error()))
		}
	}
	close(c.ready)
	c.mu.Unlock()

	for _, r := range rejected {
		deliver(r.target, r.method, r.id, nil)
	}
	c.logger.Info("language client initialized",
		slog.String("server", serverName),
		slog.Int("sync", int(caps.Sync.Change)),
		slog.Bool("completion", caps.Has("completionProvider")),
		slog.Bool("hover", caps.Has("hoverProvider")),
		slog.Bool("signature_help", caps.Has("signatureHelpProvider")),
		slog.Bool("definition", caps.Has("definitionProvider")),
	)
	if h := c.opts.Hooks.Initialized; h != nil {
		h(c.opts.Language, caps)
	}
}

// transportClosed resets the client after its transport ended. Stale
// transports from an earlier run are ignored.
func (c *Client) transportClosed(t Transport, cause error) {
	c.mu.Lock()
	if c.transport != t {
		c.mu.Unlock()
		return
	}
	stopping := c.stopping
	pending := c.pending
	c.pending = make(map[int64]*pendingRequest)
	c.queue = nil
	c.state = StateStopped
	c.transport = nil
	c.initSent = false
	if c.initTimer != nil {
		c.initTimer.Stop()
		c.initTimer = nil
	}
	if c.shutdownDone != nil {
		close(c.shutdownDone)
		c.shutdownDone = nil
	}
	c.mu.Unlock()

	for _, p := range pending {
		endRequestSpan(p.span, 0, nil)
	}

	var err error
	if !stopping {
		err = cause
		if err == nil {
			err = transport.ErrServerExited
		}
		c.logger.Warn("transport lost", slog.String("error", err.Error()), slog.Int("dropped_requests", len(pending)))
	}
	if h := c.opts.Hooks.Stopped; h != nil {
		h(c.opts.Language, err)
	}
}
