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
	"path/filepath"
	"strings"
)

// DefaultIgnoredDirs are directory names never descended into.
var DefaultIgnoredDirs = []string{
	"__pycache__", "build", "dist", "node_modules", "venv", "env",
	"site-packages", "target", "vendor", ".git", ".hg", ".svn",
}

// filter decides which paths are reported.
type filter struct {
	extensions map[string]bool
	ignored    map[string]bool
}

func newFilter(extensions, ignoredDirs []string) *filter {
	f := &filter{extensions: map[string]bool{}, ignored: map[string]bool{}}
	for _, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.extensions[strings.ToLower(ext)] = true
	}
	if ignoredDirs == nil {
		ignoredDirs = DefaultIgnoredDirs
	}
	for _, dir := range ignoredDirs {
		f.ignored[dir] = true
	}
	return f
}

// skipDir reports whether a directory and everything below it is skipped.
func (f *filter) skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || f.ignored[name]
}

// underSkipped reports whether any directory between root and path is
// skipped.
func (f *filter) underSkipped(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, part := range parts[:len(parts)-1] {
		if f.skipDir(part) {
			return true
		}
	}
	return false
}

// accept reports whether an event for path is delivered.
func (f *filter) accept(root, path string, isDir bool) bool {
	if f.underSkipped(root, path) {
		return false
	}
	name := filepath.Base(path)
	if isDir {
		return !f.skipDir(name)
	}
	if len(f.extensions) == 0 {
		return true
	}
	return f.extensions[strings.ToLower(filepath.Ext(name))]
}
