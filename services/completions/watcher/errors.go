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

import "errors"

var (
	// ErrUnknownBackend is returned for a backend name other than
	// "polling" or "fsnotify".
	ErrUnknownBackend = errors.New("unknown watcher backend")

	// ErrNotDirectory is returned when the watched root is not a directory.
	ErrNotDirectory = errors.New("watch root is not a directory")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("watcher already started")
)
