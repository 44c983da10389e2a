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
	"context"

	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
)

// Status is a provider's lifecycle state.
type Status int

const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Provider priorities. Lower answers first for single-result methods.
const (
	PriorityLSP      = 10
	PrioritySnippets = 20
	PriorityFallback = 30
)

// Request is one editor feature request.
type Request struct {
	// Method is an lsp.Method* feature method.
	Method string

	Path   string
	Line   int
	Column int

	// IncludeDeclaration applies to references.
	IncludeDeclaration bool

	// NewName applies to rename.
	NewName string

	// Range applies to rangeFormatting.
	Range lsp.Range

	// Formatting applies to formatting and rangeFormatting.
	Formatting lsp.FormattingOptions

	// Language and Text are filled from the document registry.
	Language string
	Text     string
}

// Provider is one completion source.
//
// Description:
//
//	Send issues req and calls reply at most once with the normalized
//	result, possibly before Send returns. The returned cancel, when
//	non-nil, withdraws an outstanding request.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use.
type Provider interface {
	Name() string
	Priority() int
	Status() Status

	// Tracks reports whether the provider mirrors documents of language.
	Tracks(language string) bool

	// Supports reports whether the provider answers method for language.
	Supports(language, method string) bool

	Start(ctx context.Context) error
	Stop() error
	Sync(ev DocumentEvent) error
	Send(ctx context.Context, req Request, reply func(result any)) (cancel func(), err error)
}

// ProviderInfo is a provider snapshot for status reporting.
type ProviderInfo struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Status   string `json:"status"`
	Restarts int    `json:"restarts,omitempty"`
}
