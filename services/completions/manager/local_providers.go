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
	"slices"
	"strings"
	"sync/atomic"

	"github.com/AleutianAI/AleutianComplete/services/completions/fallback"
	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
	"github.com/AleutianAI/AleutianComplete/services/completions/snippets"
)

// =============================================================================
// FALLBACK
// =============================================================================

const fallbackName = "fallback"

// fallbackProvider offers the words of the document itself. It mirrors
// every document regardless of language.
type fallbackProvider struct {
	worker *fallback.Worker

	// ctx bounds the worker goroutine; set by the manager before Start.
	ctx context.Context
}

func (p *fallbackProvider) Name() string  { return fallbackName }
func (p *fallbackProvider) Priority() int { return PriorityFallback }

func (p *fallbackProvider) Status() Status {
	if p.worker.Running() {
		return StatusRunning
	}
	return StatusStopped
}

func (p *fallbackProvider) Tracks(string) bool { return true }

func (p *fallbackProvider) Supports(_, method string) bool { return method == lsp.MethodCompletion }

// Start ignores ctx beyond the call; the worker lives until Stop or the
// manager's lifetime context ends.
func (p *fallbackProvider) Start(context.Context) error {
	ctx := p.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	p.worker.Start(ctx)
	return nil
}

func (p *fallbackProvider) Stop() error {
	p.worker.Stop()
	return nil
}

func (p *fallbackProvider) Sync(ev DocumentEvent) error {
	d := ev.Document
	switch ev.Kind {
	case EventOpen:
		// a replayed open must not patch onto a stale mirror
		if err := p.worker.Close(d.Path); err != nil {
			return err
		}
		return p.worker.Update(d.Path, d.Language, fallback.MakePatch("", d.Text))
	case EventChange:
		return p.worker.Update(d.Path, d.Language, fallback.MakePatch(ev.Previous, d.Text))
	case EventClose:
		return p.worker.Close(d.Path)
	}
	return nil
}

func (p *fallbackProvider) Send(_ context.Context, req Request, reply func(any)) (func(), error) {
	err := p.worker.Retrieve(req.Path, fallback.ReceiverFunc(func(_ string, tokens []lsp.CompletionItem) {
		reply(tokens)
	}))
	return nil, err
}

// =============================================================================
// SNIPPETS
// =============================================================================

const snippetsName = "snippets"

// snippetsProvider answers completion synchronously from the snippet
// library, matching triggers against the word before the cursor.
type snippetsProvider struct {
	library *snippets.Provider
	running atomic.Bool
}

func (p *snippetsProvider) Name() string  { return snippetsName }
func (p *snippetsProvider) Priority() int { return PrioritySnippets }

func (p *snippetsProvider) Status() Status {
	if p.running.Load() {
		return StatusRunning
	}
	return StatusStopped
}

func (p *snippetsProvider) Tracks(string) bool { return false }

func (p *snippetsProvider) Supports(language, method string) bool {
	return method == lsp.MethodCompletion && slices.Contains(p.library.Languages(), language)
}

func (p *snippetsProvider) Start(context.Context) error {
	p.running.Store(true)
	return nil
}

func (p *snippetsProvider) Stop() error {
	p.running.Store(false)
	return nil
}

func (p *snippetsProvider) Sync(DocumentEvent) error { return nil }

func (p *snippetsProvider) Send(_ context.Context, req Request, reply func(any)) (func(), error) {
	word := snippets.CurrentWord(lineAt(req.Text, req.Line), req.Column)
	reply(p.library.Complete(req.Language, word))
	return nil, nil
}

// lineAt returns line n of text without its terminator, or "".
func lineAt(text string, n int) string {
	for i := 0; i < n; i++ {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			return ""
		}
		text = text[idx+1:]
	}
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSuffix(text, "\r")
}
