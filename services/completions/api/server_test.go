// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
	"github.com/AleutianAI/AleutianComplete/services/completions/manager"
)

type fakeBackend struct {
	mu        sync.Mutex
	providers []manager.ProviderInfo
	docs      map[string]manager.Document
	started   []string
	stopped   []string
	requests  []manager.Request
	result    *manager.Result
	done      chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		providers: []manager.ProviderInfo{
			{Name: "lsp:python", Priority: manager.PriorityLSP, Status: "running"},
			{Name: "snippets", Priority: manager.PrioritySnippets, Status: "running"},
			{Name: "fallback", Priority: manager.PriorityFallback, Status: "stopped"},
		},
		docs: make(map[string]manager.Document),
		done: make(chan struct{}),
	}
}

func (f *fakeBackend) Providers() []manager.ProviderInfo { return f.providers }

func (f *fakeBackend) known(name string) bool {
	for _, p := range f.providers {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (f *fakeBackend) StartProvider(_ context.Context, name string) error {
	if !f.known(name) {
		return manager.ErrUnknownProvider
	}
	f.started = append(f.started, name)
	return nil
}

func (f *fakeBackend) StopProvider(name string) error {
	if !f.known(name) {
		return manager.ErrUnknownProvider
	}
	f.stopped = append(f.stopped, name)
	return nil
}

func (f *fakeBackend) Documents() []manager.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]manager.Document, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out
}

func (f *fakeBackend) Open(path, language string, version int, text string, _ manager.Editor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if language == "" {
		return manager.ErrNoLanguage
	}
	f.docs[path] = manager.Document{Path: path, Language: language, Version: version, Text: text}
	return nil
}

func (f *fakeBackend) Change(path string, version int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[path]
	if !ok {
		return manager.ErrDocumentNotOpen
	}
	if version <= d.Version {
		return manager.ErrStaleVersion
	}
	d.Version, d.Text = version, text
	f.docs[path] = d
	return nil
}

func (f *fakeBackend) Close(path string, _ manager.Editor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[path]; !ok {
		return manager.ErrDocumentNotOpen
	}
	delete(f.docs, path)
	return nil
}

func (f *fakeBackend) Diagnostics(string) map[string][]lsp.Diagnostic {
	return map[string][]lsp.Diagnostic{"lsp:python": {{Message: "unused import"}}}
}

func (f *fakeBackend) Request(_ context.Context, req manager.Request) (*manager.Result, error) {
	f.requests = append(f.requests, req)
	if req.Method != lsp.MethodCompletion {
		return nil, manager.ErrUnknownMethod
	}
	return f.result, nil
}

func (f *fakeBackend) Done() <-chan struct{} { return f.done }

func setup(t *testing.T) (*fakeBackend, http.Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	b := newFakeBackend()
	return b, NewServer(Options{Backend: b, Version: "test"}).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	b, h := setup(t)
	b.docs["/a.py"] = manager.Document{Path: "/a.py"}

	w := do(t, h, http.MethodGet, "/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, 3, resp.Providers)
	assert.Equal(t, 2, resp.Running)
	assert.Equal(t, 1, resp.Documents)
}

func TestHealth_ShuttingDown(t *testing.T) {
	b, h := setup(t)
	close(b.done)

	w := do(t, h, http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "shutting_down")
}

func TestRequestID(t *testing.T) {
	_, h := setup(t)

	w := do(t, h, http.MethodGet, "/v1/health", nil)
	generated := w.Header().Get(requestIDHeader)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(requestIDHeader, id)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, id, w.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(requestIDHeader, "not-a-uuid")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.NotEqual(t, "not-a-uuid", w.Header().Get(requestIDHeader))
}

func TestProviders(t *testing.T) {
	b, h := setup(t)

	w := do(t, h, http.MethodGet, "/v1/providers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Providers []manager.ProviderInfo `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Providers, 3)
	assert.Equal(t, "lsp:python", resp.Providers[0].Name)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/v1/providers/fallback/start", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/v1/providers/snippets/stop", nil).Code)
	assert.Equal(t, []string{"fallback"}, b.started)
	assert.Equal(t, []string{"snippets"}, b.stopped)

	w = do(t, h, http.MethodPost, "/v1/providers/nope/start", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Contains(t, errResp.Error, "unknown provider")
	assert.NotEmpty(t, errResp.RequestID)
}

func TestDocumentLifecycle(t *testing.T) {
	b, h := setup(t)

	w := do(t, h, http.MethodPost, "/v1/documents", OpenRequest{Path: "/w/a.py", Language: "python", Version: 1, Text: "x"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/v1/documents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"path":"/w/a.py"`)
	assert.NotContains(t, w.Body.String(), `"text"`)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPut, "/v1/documents", ChangeRequest{Path: "/w/a.py", Version: 2, Text: "xy"}).Code)
	assert.Equal(t, "xy", b.docs["/w/a.py"].Text)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPut, "/v1/documents", ChangeRequest{Path: "/w/a.py", Version: 2, Text: "z"}).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPut, "/v1/documents", ChangeRequest{Path: "/w/b.py", Version: 2}).Code)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodDelete, "/v1/documents", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/v1/documents?path=/w/a.py", nil).Code)
	assert.Empty(t, b.docs)
}

func TestOpen_Errors(t *testing.T) {
	_, h := setup(t)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/documents", map[string]any{"language": "python"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/documents", OpenRequest{Path: "/w/a.txt"}).Code)
}

func TestDiagnostics(t *testing.T) {
	_, h := setup(t)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/diagnostics", nil).Code)
	w := do(t, h, http.MethodGet, "/v1/diagnostics?path=/w/a.py", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "unused import")
}

func TestFeatureRequest(t *testing.T) {
	b, h := setup(t)
	b.result = &manager.Result{
		Method:    lsp.MethodCompletion,
		Items:     []lsp.CompletionItem{{Label: "print"}},
		Providers: []string{"lsp:python"},
	}

	w := do(t, h, http.MethodPost, "/v1/request", FeatureRequest{Method: lsp.MethodCompletion, Path: "/w/a.py", Line: 2, Column: 3})
	require.Equal(t, http.StatusOK, w.Code)

	var res manager.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Items, 1)
	assert.Equal(t, "print", res.Items[0].Label)
	require.Len(t, b.requests, 1)
	assert.Equal(t, 2, b.requests[0].Line)
	assert.Equal(t, 3, b.requests[0].Column)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/request", FeatureRequest{Method: "bogus", Path: "/w/a.py"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/request", FeatureRequest{Method: lsp.MethodCompletion, Path: "/w/a.py", Line: -1}).Code)
}

func TestMetrics(t *testing.T) {
	_, h := setup(t)

	w := do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := NewServer(Options{Backend: newFakeBackend()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/v1/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(manager.ErrClosed))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
