// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, text string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
}

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(batch []Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, batch...)
}

func (c *collector) has(kind Kind, path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.events {
		if ev.Kind == kind && ev.Path == path {
			return true
		}
	}
	return false
}

func TestFilter(t *testing.T) {
	root := filepath.FromSlash("/ws")
	f := newFilter([]string{".py", "go"}, nil)

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"/ws/a.py", false, true},
		{"/ws/pkg/b.GO", false, true},
		{"/ws/notes.txt", false, false},
		{"/ws/.git/config.py", false, false},
		{"/ws/__pycache__/a.py", false, false},
		{"/ws/src/build/x.py", false, false},
		{"/ws/src", true, true},
		{"/ws/.venv", true, false},
		{"/ws/node_modules", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, f.accept(root, filepath.FromSlash(tt.path), tt.isDir))
		})
	}

	all := newFilter(nil, []string{})
	assert.True(t, all.accept(root, filepath.FromSlash("/ws/build/notes.txt"), false))
}

func TestPoll_Diff(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "keep.py")
	gone := filepath.Join(root, "gone.py")
	old := filepath.Join(root, "old.py")
	writeFile(t, keep, "a = 1\n")
	writeFile(t, gone, "b = 1\n")
	writeFile(t, old, "c = 1\n")
	writeFile(t, filepath.Join(root, "__pycache__", "x.py"), "")

	p := &pollBackend{root: root, filter: newFilter([]string{".py"}, nil), logger: slog.Default()}
	prev := p.scan()
	assert.Len(t, prev, 3)

	fresh := filepath.Join(root, "pkg", "fresh.py")
	moved := filepath.Join(root, "new.py")
	writeFile(t, keep, "a = 12345\n")
	require.NoError(t, os.Remove(gone))
	require.NoError(t, os.Rename(old, moved))
	writeFile(t, fresh, "")

	events := diff(prev, p.scan(), time.Now())
	byKind := map[Kind][]Event{}
	for _, ev := range events {
		byKind[ev.Kind] = append(byKind[ev.Kind], ev)
	}

	require.Len(t, byKind[Modified], 1)
	assert.Equal(t, keep, byKind[Modified][0].Path)

	require.Len(t, byKind[Deleted], 1)
	assert.Equal(t, gone, byKind[Deleted][0].Path)

	require.Len(t, byKind[Moved], 1)
	assert.Equal(t, old, byKind[Moved][0].Path)
	assert.Equal(t, moved, byKind[Moved][0].Dest)

	var created []string
	for _, ev := range byKind[Created] {
		created = append(created, ev.Path)
		if ev.Path == filepath.Join(root, "pkg") {
			assert.True(t, ev.IsDir)
		}
	}
	assert.ElementsMatch(t, []string{filepath.Join(root, "pkg"), fresh}, created)
}

func TestThrottler_BatchesPerKind(t *testing.T) {
	batches := make(chan []Event, 4)
	th := newThrottler(30*time.Millisecond, func(b []Event) { batches <- b })

	th.add(Event{Kind: Created, Path: "a"})
	th.add(Event{Kind: Created, Path: "b"})
	th.add(Event{Kind: Created, Path: "a", IsDir: true})
	th.add(Event{Kind: Deleted, Path: "c"})

	got := map[Kind][]Event{}
	for i := 0; i < 2; i++ {
		select {
		case b := <-batches:
			got[b[0].Kind] = b
		case <-time.After(2 * time.Second):
			t.Fatal("batch not delivered")
		}
	}
	require.Len(t, got[Created], 2)
	assert.Equal(t, "a", got[Created][0].Path)
	assert.True(t, got[Created][0].IsDir)
	require.Len(t, got[Deleted], 1)

	th.stop()
	th.add(Event{Kind: Modified, Path: "d"})
	select {
	case b := <-batches:
		t.Fatalf("unexpected batch after stop: %v", b)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNew_Errors(t *testing.T) {
	root := t.TempDir()
	_, err := New(Options{Root: root, Backend: "inotify"})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	file := filepath.Join(root, "f.py")
	writeFile(t, file, "")
	_, err = New(Options{Root: file})
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestWatcher_Backends(t *testing.T) {
	for _, backend := range []string{"polling", "fsnotify"} {
		t.Run(backend, func(t *testing.T) {
			root := t.TempDir()
			existing := filepath.Join(root, "existing.py")
			writeFile(t, existing, "x = 1\n")

			var c collector
			w, err := New(Options{
				Root:       root,
				Backend:    backend,
				Interval:   20 * time.Millisecond,
				Throttle:   20 * time.Millisecond,
				Extensions: []string{".py"},
				Handler:    c.handle,
			})
			require.NoError(t, err)
			require.NoError(t, w.Start(context.Background()))
			t.Cleanup(w.Stop)
			assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)

			// Let the first scan or the watches settle.
			time.Sleep(60 * time.Millisecond)

			added := filepath.Join(root, "added.py")
			writeFile(t, added, "y = 2\n")
			writeFile(t, filepath.Join(root, "ignored.txt"), "")
			require.NoError(t, os.Remove(existing))

			require.Eventually(t, func() bool {
				return c.has(Created, added) && c.has(Deleted, existing)
			}, 3*time.Second, 20*time.Millisecond)
			assert.False(t, c.has(Created, filepath.Join(root, "ignored.txt")))
		})
	}
}
