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

import "time"

// Kind is what happened to a path.
type Kind int

const (
	// Created is a new file or directory.
	Created Kind = iota

	// Moved is a rename. Path is the old location and Dest the new one.
	Moved

	// Deleted is a removed file or directory.
	Deleted

	// Modified is a content change.
	Modified
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Moved:
		return "moved"
	case Deleted:
		return "deleted"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// Event is one change.
type Event struct {
	Kind  Kind
	Path  string
	Dest  string
	IsDir bool
	Time  time.Time
}

// Handler receives a batch of events of one kind. Batches are delivered
// one at a time.
type Handler func(batch []Event)
