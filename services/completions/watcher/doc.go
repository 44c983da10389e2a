// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watcher reports file-tree changes under a workspace folder.
//
// Two backends exist. The polling backend stats and lists the tree on an
// interval and diffs snapshots, which behaves the same on every OS. The
// fsnotify backend uses kernel notifications and is cheaper on large
// trees.
//
// Hidden directories, build directories and files without an editable
// extension are filtered out. Events are throttled per kind: the first
// event of a kind opens a window and everything of that kind collected in
// the window is delivered as one batch when it closes.
package watcher
