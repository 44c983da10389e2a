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
	"sort"
	"time"
)

type entry struct {
	info  fs.FileInfo
	isDir bool
}

// pollBackend diffs directory snapshots taken every interval.
type pollBackend struct {
	root     string
	interval time.Duration
	filter   *filter
	logger   *slog.Logger
}

func (p *pollBackend) run(ctx context.Context, emit func(Event)) error {
	prev := p.scan()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			next := p.scan()
			for _, ev := range diff(prev, next, now) {
				emit(ev)
			}
			prev = next
		}
	}
}

// scan lists every accepted path below the root.
func (p *pollBackend) scan() map[string]entry {
	start := time.Now()
	defer func() { scanDuration.Observe(time.Since(start).Seconds()) }()

	out := map[string]entry{}
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == p.root {
			return nil
		}
		if d.IsDir() && p.filter.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if !d.IsDir() && !p.filter.accept(p.root, path, false) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[path] = entry{info: info, isDir: d.IsDir()}
		return nil
	})
	if err != nil {
		p.logger.Warn("workspace scan failed", slog.String("root", p.root), slog.String("error", err.Error()))
	}
	return out
}

// diff compares two snapshots. A deleted and a created path that refer to
// the same file become one move.
func diff(prev, next map[string]entry, now time.Time) []Event {
	var created, deleted, events []Event
	for path, e := range next {
		old, ok := prev[path]
		switch {
		case !ok:
			created = append(created, Event{Kind: Created, Path: path, IsDir: e.isDir, Time: now})
		case !e.isDir && (!old.info.ModTime().Equal(e.info.ModTime()) || old.info.Size() != e.info.Size()):
			events = append(events, Event{Kind: Modified, Path: path, Time: now})
		}
	}
	for path, e := range prev {
		if _, ok := next[path]; !ok {
			deleted = append(deleted, Event{Kind: Deleted, Path: path, IsDir: e.isDir, Time: now})
		}
	}
	byPath := func(evs []Event) {
		sort.Slice(evs, func(i, j int) bool { return evs[i].Path < evs[j].Path })
	}
	byPath(created)
	byPath(deleted)
	byPath(events)

	paired := map[string]bool{}
	for _, d := range deleted {
		moved := false
		for _, c := range created {
			if paired[c.Path] || c.IsDir != d.IsDir {
				continue
			}
			if os.SameFile(prev[d.Path].info, next[c.Path].info) {
				paired[c.Path] = true
				events = append(events, Event{Kind: Moved, Path: d.Path, Dest: c.Path, IsDir: d.IsDir, Time: now})
				moved = true
				break
			}
		}
		if !moved {
			events = append(events, d)
		}
	}
	for _, c := range created {
		if !paired[c.Path] {
			events = append(events, c)
		}
	}
	return events
}
