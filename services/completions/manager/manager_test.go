// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manager_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/AleutianAI/AleutianComplete/services/completions/config"
	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
	"github.com/AleutianAI/AleutianComplete/services/completions/manager"
	"github.com/AleutianAI/AleutianComplete/services/completions/transport"
	"github.com/AleutianAI/AleutianComplete/services/completions/transport/transporttest"
	"github.com/AleutianAI/AleutianComplete/services/completions/watcher"
)

const waitTimeout = 5 * time.Second

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Workspace = t.TempDir()
	cfg.ConfigDir = t.TempDir()
	cfg.ConfigDebounce = 50 * time.Millisecond
	cfg.Watcher.Enabled = false
	cfg.Restart = config.RestartConfig{Enabled: true, Interval: 10 * time.Millisecond, MaxRestarts: 2}
	cfg.Snippets.Languages = map[string]map[string]map[string]string{
		"python": {"for": {"for loop": "for ${1:i} in ${2:seq}:\n    $0"}},
	}
	cfg.Languages = map[string]config.LanguageConfig{
		"python": {
			Extensions: []string{".py"},
			Server:     config.ServerSettings{Command: "pylsp", Stdio: true},
			Settings:   config.LanguageSettings{LineLength: 79},
		},
	}
	return cfg
}

// servers routes each proxy to the fake server named by its command.
type servers map[string]*transporttest.Server

func (s servers) connect(ctx context.Context, spec transport.ServerSpec, logger *slog.Logger) (transport.ServerConn, error) {
	return s[spec.Command[0]].Connect(ctx, spec, logger)
}

type harness struct {
	m      *manager.Manager
	server *transporttest.Server
	cfg    *config.Config
}

func newHarness(t *testing.T, server *transporttest.Server, configure func(*config.Config), extra ...manager.Provider) *harness {
	t.Helper()
	cfg := testConfig(t)
	if configure != nil {
		configure(cfg)
	}
	all := servers{"pylsp": server}
	m := manager.New(manager.Options{Config: cfg, Connect: all.connect, Providers: extra})
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return &harness{m: m, server: server, cfg: cfg}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, h.m.Start(ctx))
	require.NoError(t, h.m.Client("python").WaitReady(ctx))
}

func (h *harness) path(name string) string { return filepath.Join(h.cfg.Workspace, name) }

// fakeProvider answers through answer, or never when answer is nil.
type fakeProvider struct {
	name     string
	priority int
	methods  []string
	answer   func(req manager.Request, reply func(any))

	running   atomic.Bool
	cancelled atomic.Int32

	mu      sync.Mutex
	pending []func(any)
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Priority() int { return f.priority }

func (f *fakeProvider) Status() manager.Status {
	if f.running.Load() {
		return manager.StatusRunning
	}
	return manager.StatusStopped
}

func (f *fakeProvider) Tracks(string) bool { return false }

func (f *fakeProvider) Supports(_, method string) bool {
	for _, m := range f.methods {
		if m == method {
			return true
		}
	}
	return false
}

func (f *fakeProvider) Start(context.Context) error {
	f.running.Store(true)
	return nil
}

func (f *fakeProvider) Stop() error {
	f.running.Store(false)
	return nil
}

func (f *fakeProvider) Sync(manager.DocumentEvent) error { return nil }

func (f *fakeProvider) Send(_ context.Context, req manager.Request, reply func(any)) (func(), error) {
	f.mu.Lock()
	f.pending = append(f.pending, reply)
	f.mu.Unlock()
	if f.answer != nil {
		f.answer(req, reply)
	}
	return func() { f.cancelled.Add(1) }, nil
}

func (f *fakeProvider) lastReply() func(any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[len(f.pending)-1]
}

func (f *fakeProvider) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// editor records forwarded diagnostics.
type editor struct {
	ch chan string
}

func newEditor() *editor { return &editor{ch: make(chan string, 8)} }

func (e *editor) HandleDiagnostics(provider string, params lsp.PublishDiagnosticsParams) {
	msg := provider
	if len(params.Diagnostics) > 0 {
		msg += ": " + params.Diagnostics[0].Message
	}
	e.ch <- msg
}

func completionHandler(labels ...string) transporttest.Handler {
	return func(json.RawMessage) (any, *transport.ResponseError) {
		items := make([]map[string]any, len(labels))
		for i, l := range labels {
			items[i] = map[string]any{"label": l, "kind": lsp.KindModule}
		}
		return map[string]any{"isIncomplete": false, "items": items}, nil
	}
}

func labels(items []lsp.CompletionItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Label
	}
	return out
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestManager_StartAndProviders(t *testing.T) {
	h := newHarness(t, transporttest.NewServer(), nil)
	h.start(t)

	infos := h.m.Providers()
	require.Len(t, infos, 3)
	assert.Equal(t, "lsp:python", infos[0].Name)
	assert.Equal(t, "snippets", infos[1].Name)
	assert.Equal(t, "fallback", infos[2].Name)
	for _, info := range infos {
		assert.Equal(t, "running", info.Status, info.Name)
	}

	settings := h.server.WaitFor("workspace/didChangeConfiguration", 1, waitTimeout)
	require.Len(t, settings, 1)
	assert.Equal(t, int64(79), gjson.GetBytes(settings[0].Params, "settings.python.lineLength").Int())
}

func TestManager_InvalidLanguageIsSkipped(t *testing.T) {
	h := newHarness(t, transporttest.NewServer(), func(cfg *config.Config) {
		cfg.Languages["broken"] = config.LanguageConfig{Extensions: []string{".brk"}}
	})
	assert.Nil(t, h.m.Client("broken"))
	assert.NotNil(t, h.m.Client("python"))
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	h := newHarness(t, transporttest.NewServer(), nil)
	h.start(t)

	require.NoError(t, h.m.Shutdown(context.Background()))
	require.NoError(t, h.m.Shutdown(context.Background()))

	assert.ErrorIs(t, h.m.Start(context.Background()), manager.ErrClosed)
	assert.ErrorIs(t, h.m.Open(h.path("a.py"), "", 1, "", nil), manager.ErrClosed)
	_, err := h.m.Request(context.Background(), manager.Request{Method: lsp.MethodHover, Path: h.path("a.py")})
	assert.ErrorIs(t, err, manager.ErrClosed)
	assert.Len(t, h.server.Received("shutdown"), 1)
}

func TestManager_SpawnsProxyFromPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script proxy is unix-only")
	}
	bin := t.TempDir()
	marker := filepath.Join(t.TempDir(), "args")
	script := "#!/bin/sh\necho \"$@\" > " + marker + "\nexit 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(bin, transport.BinaryName), []byte(script), 0o755))
	t.Setenv("PATH", bin)

	cfg := testConfig(t)
	cfg.Restart.Enabled = false
	m := manager.New(manager.Options{Config: cfg})
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, m.Start(ctx))

	args, err := os.ReadFile(marker)
	require.NoError(t, err, "lsp-transport ran as its own process")
	assert.Contains(t, string(args), "pylsp")
	assert.Equal(t, "lsp:python", m.Providers()[0].Name)
	assert.Equal(t, "stopped", m.Providers()[0].Status)
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func TestManager_DocumentLifecycle(t *testing.T) {
	h := newHarness(t, transporttest.NewServer(), nil)
	h.start(t)
	file := h.path("test.py")

	assert.ErrorIs(t, h.m.Change(file, 2, "x"), manager.ErrDocumentNotOpen)
	assert.ErrorIs(t, h.m.Open(h.path("notes.unknown"), "", 1, "", nil), manager.ErrNoLanguage)

	require.NoError(t, h.m.Open(file, "", 1, "import os\nos.walk(\n", nil))
	opened := h.server.WaitFor("textDocument/didOpen", 1, waitTimeout)
	require.Len(t, opened, 1)
	assert.Equal(t, "python", gjson.GetBytes(opened[0].Params, "textDocument.languageId").String())

	require.NoError(t, h.m.Change(file, 2, "import o"))
	assert.ErrorIs(t, h.m.Change(file, 2, "import os"), manager.ErrStaleVersion)
	assert.ErrorIs(t, h.m.Change(file, 1, "import os"), manager.ErrStaleVersion)
	require.NoError(t, h.m.Change(file, 3, "import os"))

	changes := h.server.WaitFor("textDocument/didChange", 2, waitTimeout)
	require.Len(t, changes, 2)
	assert.Equal(t, int64(2), gjson.GetBytes(changes[0].Params, "textDocument.version").Int())
	assert.Equal(t, int64(3), gjson.GetBytes(changes[1].Params, "textDocument.version").Int())

	require.NoError(t, h.m.DidSave(file))
	h.server.WaitFor("textDocument/didSave", 1, waitTimeout)

	doc, ok := h.m.Document(file)
	require.True(t, ok)
	assert.Equal(t, 3, doc.Version)
	assert.Equal(t, "import os", doc.Text)

	require.NoError(t, h.m.Close(file, nil))
	assert.Len(t, h.server.WaitFor("textDocument/didClose", 1, waitTimeout), 1)
	assert.Empty(t, h.m.Documents())
	assert.ErrorIs(t, h.m.Close(file, nil), manager.ErrDocumentNotOpen)
}

func TestManager_SharedDocumentClosesWithLastEditor(t *testing.T) {
	h := newHarness(t, transporttest.NewServer(), nil)
	h.start(t)
	file := h.path("a.py")
	a, b := newEditor(), newEditor()

	require.NoError(t, h.m.Open(file, "python", 1, "x", a))
	require.NoError(t, h.m.Open(file, "python", 1, "x", b))
	h.server.WaitFor("textDocument/didOpen", 1, waitTimeout)

	require.NoError(t, h.m.Close(file, a))
	_, ok := h.m.Document(file)
	assert.True(t, ok)

	require.NoError(t, h.m.Close(file, b))
	_, ok = h.m.Document(file)
	assert.False(t, ok)
	assert.Len(t, h.server.WaitFor("textDocument/didClose", 1, waitTimeout), 1)
	assert.Len(t, h.server.Received("textDocument/didOpen"), 1)
}

func TestManager_DiagnosticsPerProvider(t *testing.T) {
	h := newHarness(t, transporttest.NewServer(), nil)
	h.start(t)
	file := h.path("a.py")
	ed := newEditor()

	require.NoError(t, h.m.Open(file, "python", 1, "x", ed))
	h.server.WaitFor("textDocument/didOpen", 1, waitTimeout)
	require.NoError(t, h.server.Notify("textDocument/publishDiagnostics", map[string]any{
		"uri": lsp.PathToURI(file),
		"diagnostics": []map[string]any{{
			"range":   map[string]any{"start": map[string]int{"line": 0, "character": 0}, "end": map[string]int{"line": 0, "character": 1}},
			"message": "undefined name 'x'",
		}},
	}))

	select {
	case got := <-ed.ch:
		assert.Equal(t, "lsp:python: undefined name 'x'", got)
	case <-time.After(waitTimeout):
		t.Fatal("diagnostics never forwarded")
	}
	diags := h.m.Diagnostics(file)
	require.Contains(t, diags, "lsp:python")
	assert.Len(t, diags["lsp:python"], 1)
}

// =============================================================================
// FAN-OUT
// =============================================================================

func TestManager_CompletionUnion(t *testing.T) {
	server := transporttest.NewServer()
	server.Handle("textDocument/completion", completionHandler("os", "ord"))
	h := newHarness(t, server, nil)
	h.start(t)
	file := h.path("test.py")

	require.NoError(t, h.m.Open(file, "", 1, "import os\nfo", nil))
	res, err := h.m.Request(context.Background(), manager.Request{
		Method: lsp.MethodCompletion, Path: file, Line: 1, Column: 2,
	})
	require.NoError(t, err)
	assert.False(t, res.TimedOut)
	assert.ElementsMatch(t, []string{"lsp:python", "snippets", "fallback"}, res.Providers)

	got := labels(res.Items)
	assert.Contains(t, got, "os")
	assert.Contains(t, got, "import")

	var snippet *lsp.CompletionItem
	for i := range res.Items {
		if res.Items[i].Provider == "snippets" {
			snippet = &res.Items[i]
		}
	}
	require.NotNil(t, snippet)
	assert.Equal(t, "for", snippet.Label)
	assert.Equal(t, lsp.KindSnippet, snippet.Kind)
	assert.Equal(t, lsp.InsertSnippet, snippet.InsertTextFormat)

	for i := 1; i < len(res.Items); i++ {
		prev, cur := res.Items[i-1], res.Items[i]
		assert.True(t, prev.SortText < cur.SortText || (prev.SortText == cur.SortText && prev.Label <= cur.Label),
			"%q before %q", prev.Label, cur.Label)
	}
}

func TestManager_FirstNonEmptyWins(t *testing.T) {
	server := transporttest.NewServer()
	var empty atomic.Bool
	server.Handle("textDocument/hover", func(json.RawMessage) (any, *transport.ResponseError) {
		if empty.Load() {
			return nil, nil
		}
		return map[string]any{"contents": "Test docstring"}, nil
	})
	late := &fakeProvider{name: "late", priority: 50, methods: []string{lsp.MethodHover},
		answer: func(_ manager.Request, reply func(any)) { reply("from late") }}
	h := newHarness(t, server, nil, late)
	h.start(t)
	file := h.path("test.py")
	require.NoError(t, h.m.Open(file, "", 1, "\ndef test(a, b):\n    \"\"\"Test docstring\"\"\"\n    pass\ntest", nil))

	hover, err := h.m.Hover(context.Background(), file, 4, 0)
	require.NoError(t, err)
	assert.Contains(t, hover, "Test docstring")

	empty.Store(true)
	hover, err = h.m.Hover(context.Background(), file, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, "from late", hover)
}

func TestManager_RequestRequiresOpenDocument(t *testing.T) {
	h := newHarness(t, transporttest.NewServer(), nil)
	h.start(t)

	_, err := h.m.Complete(context.Background(), h.path("a.py"), 0, 0)
	assert.ErrorIs(t, err, manager.ErrDocumentNotOpen)

	_, err = h.m.Request(context.Background(), manager.Request{Method: "textDocument/colorPresentation", Path: h.path("a.py")})
	assert.ErrorIs(t, err, manager.ErrUnknownMethod)
}

func TestManager_TimeoutReturnsPartialResult(t *testing.T) {
	server := transporttest.NewServer()
	server.Handle("textDocument/completion", completionHandler("os"))
	silent := &fakeProvider{name: "silent", priority: 5, methods: []string{lsp.MethodCompletion}}
	h := newHarness(t, server, func(cfg *config.Config) {
		cfg.RequestTimeout = 200 * time.Millisecond
		cfg.Fallback.Enabled = false
	}, silent)
	h.start(t)
	file := h.path("a.py")
	require.NoError(t, h.m.Open(file, "", 1, "import o", nil))

	res, err := h.m.Request(context.Background(), manager.Request{Method: lsp.MethodCompletion, Path: file, Line: 0, Column: 8})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Contains(t, labels(res.Items), "os")
	assert.Equal(t, int32(1), silent.cancelled.Load())

	// the late reply lands on a closed ticket
	assert.NotPanics(t, func() { silent.lastReply()([]lsp.CompletionItem{{Label: "late"}}) })
}

func TestManager_SupersededRequest(t *testing.T) {
	silent := &fakeProvider{name: "silent", priority: 5, methods: []string{lsp.MethodSignatureHelp}}
	h := newHarness(t, transporttest.NewServer(), func(cfg *config.Config) {
		cfg.RequestTimeout = 10 * time.Second
	}, silent)
	h.start(t)
	file := h.path("a.py")
	require.NoError(t, h.m.Open(file, "", 1, "os.walk(", nil))

	first := make(chan *manager.Result, 1)
	go func() {
		res, err := h.m.Request(context.Background(), manager.Request{Method: lsp.MethodSignatureHelp, Path: file, Line: 0, Column: 8})
		assert.NoError(t, err)
		first <- res
	}()
	require.Eventually(t, func() bool { return silent.sent() == 1 }, waitTimeout, 5*time.Millisecond)

	second := make(chan *manager.Result, 1)
	go func() {
		res, _ := h.m.Request(context.Background(), manager.Request{Method: lsp.MethodSignatureHelp, Path: file, Line: 0, Column: 8})
		second <- res
	}()

	select {
	case res := <-first:
		assert.True(t, res.Superseded)
		assert.Nil(t, res.Signature)
	case <-time.After(waitTimeout):
		t.Fatal("first request was not superseded")
	}
	assert.Equal(t, int32(1), silent.cancelled.Load())

	require.Eventually(t, func() bool { return silent.sent() == 2 }, waitTimeout, 5*time.Millisecond)
	silent.lastReply()(&lsp.SignatureInformation{Label: "walk(top)"})
	select {
	case res := <-second:
		require.NotNil(t, res)
		assert.False(t, res.Superseded)
		require.NotNil(t, res.Signature)
		assert.Equal(t, "walk(top)", res.Signature.Label)
	case <-time.After(waitTimeout):
		t.Fatal("second request never finished")
	}
}

func TestManager_ContextCancel(t *testing.T) {
	silent := &fakeProvider{name: "silent", priority: 5, methods: []string{lsp.MethodDefinition}}
	h := newHarness(t, transporttest.NewServer(), func(cfg *config.Config) {
		cfg.RequestTimeout = 10 * time.Second
	}, silent)
	h.start(t)
	file := h.path("a.py")
	require.NoError(t, h.m.Open(file, "", 1, "x", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := h.m.Definition(ctx, file, 0, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), silent.cancelled.Load())
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func TestManager_ApplyConfig(t *testing.T) {
	py, gopls := transporttest.NewServer(), transporttest.NewServer()
	cfg := testConfig(t)
	all := servers{"pylsp": py, "gopls": gopls}
	m := manager.New(manager.Options{Config: cfg, Connect: all.connect})
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Client("python").WaitReady(ctx))
	file := filepath.Join(cfg.Workspace, "a.py")
	require.NoError(t, m.Open(file, "", 1, "x", nil))
	py.WaitFor("textDocument/didOpen", 1, waitTimeout)

	// settings only
	next := testConfig(t)
	next.Workspace = cfg.Workspace
	lc := next.Languages["python"]
	lc.Settings.LineLength = 100
	next.Languages["python"] = lc
	ch := m.ApplyConfig(ctx, next)
	assert.Equal(t, []string{"python"}, ch.Reconfigure)
	sent := py.WaitFor("workspace/didChangeConfiguration", 2, waitTimeout)
	require.Len(t, sent, 2)
	assert.Equal(t, int64(100), gjson.GetBytes(sent[1].Params, "settings.python.lineLength").Int())
	assert.Len(t, py.Received("initialize"), 1)

	// server arguments restart the client; open documents follow it
	restart := testConfig(t)
	restart.Workspace = cfg.Workspace
	lc.Server.Args = []string{"-v"}
	restart.Languages["python"] = lc
	restart.Languages["go"] = config.LanguageConfig{
		Extensions: []string{".go"},
		Server:     config.ServerSettings{Command: "gopls", Stdio: true},
	}
	ch = m.ApplyConfig(ctx, restart)
	assert.Equal(t, []string{"python"}, ch.Restart)
	assert.Equal(t, []string{"go"}, ch.Added)

	assert.Len(t, py.WaitFor("initialize", 2, waitTimeout), 2)
	reopened := py.WaitFor("textDocument/didOpen", 2, waitTimeout)
	require.Len(t, reopened, 2)
	assert.Equal(t, lsp.PathToURI(file), gjson.GetBytes(reopened[1].Params, "textDocument.uri").String())
	assert.Len(t, gopls.WaitFor("initialize", 1, waitTimeout), 1)

	// dropping a language stops its client
	ch = m.ApplyConfig(ctx, next)
	assert.Equal(t, []string{"go"}, ch.Removed)
	assert.Len(t, gopls.WaitFor("shutdown", 1, waitTimeout), 1)
	assert.Nil(t, m.Client("go"))
}

func TestManager_UpdateConfigDebounces(t *testing.T) {
	h := newHarness(t, transporttest.NewServer(), nil)
	h.start(t)

	for _, n := range []int{80, 90, 120} {
		next := testConfig(t)
		next.Workspace = h.cfg.Workspace
		lc := next.Languages["python"]
		lc.Settings.LineLength = n
		next.Languages["python"] = lc
		h.m.UpdateConfig(next)
	}

	sent := h.server.WaitFor("workspace/didChangeConfiguration", 2, waitTimeout)
	require.Len(t, sent, 2)
	assert.Equal(t, int64(120), gjson.GetBytes(sent[1].Params, "settings.python.lineLength").Int())

	time.Sleep(200 * time.Millisecond)
	assert.Len(t, h.server.Received("workspace/didChangeConfiguration"), 2)
	assert.Equal(t, 120, h.m.Config().Languages["python"].Settings.LineLength)
}

// =============================================================================
// RESTART
// =============================================================================

func TestManager_RestartsCrashedClient(t *testing.T) {
	server := transporttest.NewServer()
	h := newHarness(t, server, nil)
	h.start(t)
	file := h.path("a.py")
	require.NoError(t, h.m.Open(file, "", 1, "x", nil))
	require.NoError(t, h.m.Change(file, 2, "xy"))
	server.WaitFor("textDocument/didChange", 1, waitTimeout)

	server.Exit()
	require.Len(t, server.WaitFor("initialize", 2, waitTimeout), 2)
	opened := server.WaitFor("textDocument/didOpen", 2, waitTimeout)
	require.Len(t, opened, 2)
	assert.Equal(t, "xy", gjson.GetBytes(opened[1].Params, "textDocument.text").String())

	require.Eventually(t, func() bool { return h.m.Providers()[0].Restarts == 1 }, waitTimeout, 10*time.Millisecond)
}

func TestManager_RetriesFailedRestart(t *testing.T) {
	server := transporttest.NewServer()
	var failures atomic.Int32
	connect := func(ctx context.Context, spec transport.ServerSpec, logger *slog.Logger) (transport.ServerConn, error) {
		if failures.Add(-1) >= 0 {
			return nil, errors.New("pylsp: command not found")
		}
		return server.Connect(ctx, spec, logger)
	}
	cfg := testConfig(t)
	m := manager.New(manager.Options{Config: cfg, Connect: connect})
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Client("python").WaitReady(ctx))

	failures.Store(1)
	server.Exit()
	require.Len(t, server.WaitFor("initialize", 2, waitTimeout), 2)
	require.NoError(t, m.Client("python").WaitReady(ctx))
	assert.Equal(t, "running", m.Providers()[0].Status)
	assert.Equal(t, 2, m.Providers()[0].Restarts, "the failed attempt counts against the budget")
}

func TestManager_RestartBudget(t *testing.T) {
	server := transporttest.NewServer()
	h := newHarness(t, server, func(cfg *config.Config) {
		cfg.Restart.MaxRestarts = 1
	})
	h.start(t)

	server.Exit()
	require.Len(t, server.WaitFor("initialize", 2, waitTimeout), 2)
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, h.m.Client("python").WaitReady(ctx))

	server.Exit()
	require.Eventually(t, func() bool {
		return h.m.Client("python").State() == lsp.StateStopped
	}, waitTimeout, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, server.Received("initialize"), 2)
	assert.Equal(t, "stopped", h.m.Providers()[0].Status)
}

// =============================================================================
// WORKSPACE
// =============================================================================

func TestFileEvents(t *testing.T) {
	events := manager.FileEvents([]watcher.Event{
		{Kind: watcher.Created, Path: "/w/a.py"},
		{Kind: watcher.Modified, Path: "/w/b.py"},
		{Kind: watcher.Moved, Path: "/w/c.py", Dest: "/w/d.py"},
		{Kind: watcher.Deleted, Path: "/w/e.py"},
	})
	require.Len(t, events, 5)
	assert.Equal(t, lsp.FileEvent{URI: lsp.PathToURI("/w/a.py"), Type: lsp.FileCreated}, events[0])
	assert.Equal(t, lsp.FileEvent{URI: lsp.PathToURI("/w/b.py"), Type: lsp.FileChanged}, events[1])
	assert.Equal(t, lsp.FileEvent{URI: lsp.PathToURI("/w/c.py"), Type: lsp.FileDeleted}, events[2])
	assert.Equal(t, lsp.FileEvent{URI: lsp.PathToURI("/w/d.py"), Type: lsp.FileCreated}, events[3])
	assert.Equal(t, lsp.FileEvent{URI: lsp.PathToURI("/w/e.py"), Type: lsp.FileDeleted}, events[4])
}

func TestManager_WorkspaceEvents(t *testing.T) {
	h := newHarness(t, transporttest.NewServer(), nil)
	h.start(t)

	h.m.HandleWatcherEvents([]watcher.Event{{Kind: watcher.Moved, Path: h.path("a.py"), Dest: h.path("b.py")}})
	watched := h.server.WaitFor("workspace/didChangeWatchedFiles", 1, waitTimeout)
	require.Len(t, watched, 1)
	changes := gjson.GetBytes(watched[0].Params, "changes").Array()
	require.Len(t, changes, 2)
	assert.Equal(t, int64(lsp.FileDeleted), changes[0].Get("type").Int())
	assert.Equal(t, int64(lsp.FileCreated), changes[1].Get("type").Int())

	extra := t.TempDir()
	h.m.AddFolder(extra)
	h.m.AddFolder(extra)
	added := h.server.WaitFor("workspace/didChangeWorkspaceFolders", 1, waitTimeout)
	require.Len(t, added, 1)
	assert.Equal(t, lsp.PathToURI(extra), gjson.GetBytes(added[0].Params, "event.added.0.uri").String())
	assert.Contains(t, h.m.Folders(), extra)

	h.m.RemoveFolder(extra)
	removed := h.server.WaitFor("workspace/didChangeWorkspaceFolders", 2, waitTimeout)
	require.Len(t, removed, 2)
	assert.Equal(t, lsp.PathToURI(extra), gjson.GetBytes(removed[1].Params, "event.removed.0.uri").String())
	assert.NotContains(t, h.m.Folders(), extra)
}
