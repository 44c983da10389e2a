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
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
	"github.com/AleutianAI/AleutianComplete/services/completions/watcher"
)

func workspaceFolder(path string) lsp.WorkspaceFolder {
	return lsp.WorkspaceFolder{URI: lsp.PathToURI(path), Name: filepath.Base(path)}
}

// AddFolder announces a project folder to every language client.
func (m *Manager) AddFolder(path string) {
	path = normalizePath(path)
	m.mu.Lock()
	if slices.Contains(m.folders, path) {
		m.mu.Unlock()
		return
	}
	m.folders = append(m.folders, path)
	clients := m.clientsLocked()
	m.mu.Unlock()

	added := []lsp.WorkspaceFolder{workspaceFolder(path)}
	for _, c := range clients {
		if err := c.DidChangeWorkspaceFolders(added, nil); err != nil {
			m.logger.Debug("folder addition not sent", slog.String("language", c.Language()), slog.String("error", err.Error()))
		}
	}
}

// RemoveFolder withdraws a project folder from every language client.
func (m *Manager) RemoveFolder(path string) {
	path = normalizePath(path)
	m.mu.Lock()
	i := slices.Index(m.folders, path)
	if i < 0 {
		m.mu.Unlock()
		return
	}
	m.folders = slices.Delete(m.folders, i, i+1)
	clients := m.clientsLocked()
	m.mu.Unlock()

	removed := []lsp.WorkspaceFolder{workspaceFolder(path)}
	for _, c := range clients {
		if err := c.DidChangeWorkspaceFolders(nil, removed); err != nil {
			m.logger.Debug("folder removal not sent", slog.String("language", c.Language()), slog.String("error", err.Error()))
		}
	}
}

// Folders returns the project folders.
func (m *Manager) Folders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.folders)
}

// HandleWatcherEvents forwards a batch of file-tree changes to every
// running language client as workspace/didChangeWatchedFiles.
func (m *Manager) HandleWatcherEvents(batch []watcher.Event) {
	events := FileEvents(batch)
	if len(events) == 0 {
		return
	}
	m.mu.Lock()
	clients := m.clientsLocked()
	m.mu.Unlock()

	for _, e := range events {
		watchedFileEvents.WithLabelValues(fileChangeName(e.Type)).Inc()
	}
	for _, c := range clients {
		if c.State() != lsp.StateRunning {
			continue
		}
		if err := c.DidChangeWatchedFiles(events); err != nil {
			m.logger.Debug("watched files not sent", slog.String("language", c.Language()), slog.String("error", err.Error()))
		}
	}
}

// FileEvents converts watcher events to LSP file events. A move becomes a
// deletion of the source followed by a creation of the destination.
func FileEvents(batch []watcher.Event) []lsp.FileEvent {
	var out []lsp.FileEvent
	for _, ev := range batch {
		switch ev.Kind {
		case watcher.Created:
			out = append(out, lsp.FileEvent{URI: lsp.PathToURI(ev.Path), Type: lsp.FileCreated})
		case watcher.Modified:
			out = append(out, lsp.FileEvent{URI: lsp.PathToURI(ev.Path), Type: lsp.FileChanged})
		case watcher.Deleted:
			out = append(out, lsp.FileEvent{URI: lsp.PathToURI(ev.Path), Type: lsp.FileDeleted})
		case watcher.Moved:
			out = append(out,
				lsp.FileEvent{URI: lsp.PathToURI(ev.Path), Type: lsp.FileDeleted},
				lsp.FileEvent{URI: lsp.PathToURI(ev.Dest), Type: lsp.FileCreated})
		}
	}
	return out
}

func fileChangeName(t lsp.FileChangeType) string {
	switch t {
	case lsp.FileCreated:
		return "created"
	case lsp.FileChanged:
		return "changed"
	case lsp.FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

func (m *Manager) clientsLocked() []*lsp.Client {
	langs := make([]string, 0, len(m.languages))
	for lang := range m.languages {
		langs = append(langs, lang)
	}
	slices.Sort(langs)
	out := make([]*lsp.Client, 0, len(langs))
	for _, lang := range langs {
		out = append(out, m.languages[lang].client)
	}
	return out
}
