// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fallback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
)

func startWorker(t *testing.T) *Worker {
	t.Helper()
	w := NewWorker(Options{QueueSize: 8})
	w.Start(context.Background())
	t.Cleanup(w.Stop)
	return w
}

func labels(items []lsp.CompletionItem) map[string]lsp.CompletionItem {
	out := make(map[string]lsp.CompletionItem, len(items))
	for _, it := range items {
		out[it.Label] = it
	}
	return out
}

func tokens(t *testing.T, w *Worker, file string) map[string]lsp.CompletionItem {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	items, err := w.Tokens(ctx, file)
	require.NoError(t, err)
	return labels(items)
}

func TestWorker_UpdateThenRetrieve(t *testing.T) {
	w := startWorker(t)

	first := "\n# Comment\na = 2\n"
	require.NoError(t, w.Update("test.py", "python", MakePatch("", first)))
	got := tokens(t, w, "test.py")
	assert.NotContains(t, got, "args")
	assert.Contains(t, got, "Comment")

	second := "\n# Comment\na = 2\n\ndef func(args):\n    pass\n"
	require.NoError(t, w.Update("test.py", "python", MakePatch(first, second)))
	got = tokens(t, w, "test.py")
	require.Contains(t, got, "args")
	assert.Equal(t, lsp.KindText, got["args"].Kind)
	assert.Equal(t, "a", got["args"].SortText)
	assert.Equal(t, lsp.KindKeyword, got["def"].Kind)
}

func TestWorker_MirrorMatchesPatchedText(t *testing.T) {
	w := startWorker(t)

	versions := []string{"", "x = 1\n", "x = 1\ny = 2\n", "y = 2\n", "total_count = y\n"}
	for i := 1; i < len(versions); i++ {
		require.NoError(t, w.Update("a.py", "python", MakePatch(versions[i-1], versions[i])))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	items, err := w.Tokens(ctx, "a.py")
	require.NoError(t, err)
	assert.Equal(t, Tokenize("python", versions[len(versions)-1]), items)
}

func TestWorker_CloseForgetsFile(t *testing.T) {
	w := startWorker(t)
	require.NoError(t, w.Update("a.go", "go", MakePatch("", "package main\nvar alpha int\n")))
	assert.Contains(t, tokens(t, w, "a.go"), "alpha")
	assert.Equal(t, 1, w.Files())

	require.NoError(t, w.Close("a.go"))
	assert.Empty(t, tokens(t, w, "a.go"))
	assert.Equal(t, 0, w.Files())
}

func TestWorker_BadPatchKeepsText(t *testing.T) {
	w := startWorker(t)
	require.NoError(t, w.Update("a.py", "python", MakePatch("", "keep_me = 1\n")))
	require.NoError(t, w.Update("a.py", "python", "@@ not a patch"))
	assert.Contains(t, tokens(t, w, "a.py"), "keep_me")
}

func TestWorker_Stopped(t *testing.T) {
	w := NewWorker(Options{})
	assert.ErrorIs(t, w.Update("a.py", "python", ""), ErrStopped)

	w.Start(context.Background())
	assert.True(t, w.Running())
	w.Stop()
	assert.False(t, w.Running())
	assert.ErrorIs(t, w.Close("a.py"), ErrStopped)
}

func TestWorker_ContextCancelStops(t *testing.T) {
	w := NewWorker(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()
	assert.Eventually(t, func() bool { return !w.Running() }, time.Second, 5*time.Millisecond)
}

func TestWorker_ReceiverGetsFile(t *testing.T) {
	w := startWorker(t)
	require.NoError(t, w.Update("b.py", "python", MakePatch("", "foo")))

	var (
		mu   sync.Mutex
		file string
	)
	done := make(chan struct{})
	require.NoError(t, w.Retrieve("b.py", ReceiverFunc(func(f string, _ []lsp.CompletionItem) {
		mu.Lock()
		file = f
		mu.Unlock()
		close(done)
	})))
	<-done
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "b.py", file)
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "update", MsgUpdate.String())
	assert.Equal(t, "close", MsgClose.String())
	assert.Equal(t, "retrieve", MsgRetrieve.String())
	assert.Equal(t, "unknown", MessageType(9).String())
}
