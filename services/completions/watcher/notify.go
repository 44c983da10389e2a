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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// notifyBackend turns fsnotify events into watcher events. Renames are
// reported as deletions; the new name arrives as a separate create.
type notifyBackend struct {
	root   string
	filter *filter
	logger *slog.Logger
	fsw    *fsnotify.Watcher

	// dirs is owned by run. It remembers which removed paths were
	// directories.
	dirs map[string]bool
}

func newNotifyBackend(root string, f *filter, logger *slog.Logger) (*notifyBackend, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &notifyBackend{root: root, filter: f, logger: logger, fsw: fsw, dirs: map[string]bool{}}, nil
}

func (n *notifyBackend) run(ctx context.Context, emit func(Event)) error {
	defer func() { _ = n.fsw.Close() }()
	if err := n.addRecursive(n.root, nil); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-n.fsw.Events:
			if !ok {
				return nil
			}
			n.handle(ev, emit)
		case err, ok := <-n.fsw.Errors:
			if !ok {
				return nil
			}
			backendErrors.Inc()
			n.logger.Warn("fsnotify error", slog.String("error", err.Error()))
		}
	}
}

// addRecursive watches dir and its subdirectories. When emit is set the
// directories and files found are reported as created, which covers files
// written before the watch on a new directory was in place.
func (n *notifyBackend) addRecursive(dir string, emit func(Event)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != n.root && n.filter.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			n.dirs[path] = true
			if err := n.fsw.Add(path); err != nil {
				return err
			}
		}
		if emit != nil && path != dir && n.filter.accept(n.root, path, d.IsDir()) {
			emit(Event{Kind: Created, Path: path, IsDir: d.IsDir(), Time: time.Now()})
		}
		return nil
	})
}

func (n *notifyBackend) handle(ev fsnotify.Event, emit func(Event)) {
	now := time.Now()
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if !n.filter.accept(n.root, ev.Name, info.IsDir()) {
			return
		}
		emit(Event{Kind: Created, Path: ev.Name, IsDir: info.IsDir(), Time: now})
		if info.IsDir() {
			if err := n.addRecursive(ev.Name, emit); err != nil {
				n.logger.Warn("watch new directory failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
		}
	case ev.Has(fsnotify.Write):
		if n.filter.accept(n.root, ev.Name, false) {
			emit(Event{Kind: Modified, Path: ev.Name, Time: now})
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		isDir := n.dirs[ev.Name]
		delete(n.dirs, ev.Name)
		if n.filter.accept(n.root, ev.Name, isDir) {
			emit(Event{Kind: Deleted, Path: ev.Name, IsDir: isDir, Time: now})
		}
	}
}
