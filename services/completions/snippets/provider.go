// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snippets

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
)

// Library maps language to trigger to description to snippet body.
type Library map[string]map[string]map[string]string

// Provider serves snippet completions from a Library.
type Provider struct {
	logger *slog.Logger

	mu      sync.RWMutex
	library Library
}

// NewProvider returns a provider over lib. Bodies that do not parse are
// skipped with a warning.
func NewProvider(lib Library, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{logger: logger.With(slog.String("component", "snippets"))}
	p.Update(lib)
	return p
}

// Update replaces the library.
func (p *Provider) Update(lib Library) {
	clean := Library{}
	for lang, triggers := range lib {
		for trigger, bodies := range triggers {
			for desc, body := range bodies {
				if _, err := Parse(body); err != nil {
					p.logger.Warn("skipping invalid snippet",
						slog.String("language", lang),
						slog.String("trigger", trigger),
						slog.String("error", err.Error()))
					continue
				}
				if clean[lang] == nil {
					clean[lang] = map[string]map[string]string{}
				}
				if clean[lang][trigger] == nil {
					clean[lang][trigger] = map[string]string{}
				}
				clean[lang][trigger][desc] = body
			}
		}
	}
	p.mu.Lock()
	p.library = clean
	p.mu.Unlock()
}

// Languages lists the languages with snippets, sorted.
func (p *Provider) Languages() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.library))
	for lang := range p.library {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Complete returns the snippets of lang whose trigger starts with prefix.
// An empty prefix matches nothing.
func (p *Provider) Complete(lang, prefix string) []lsp.CompletionItem {
	if prefix == "" {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	var items []lsp.CompletionItem
	for trigger, bodies := range p.library[lang] {
		if !strings.HasPrefix(trigger, prefix) {
			continue
		}
		for desc, body := range bodies {
			items = append(items, lsp.CompletionItem{
				Label:            trigger,
				Kind:             lsp.KindSnippet,
				Detail:           desc,
				Documentation:    body,
				InsertText:       body,
				InsertTextFormat: lsp.InsertSnippet,
			}.WithDefaults())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Label != items[j].Label {
			return items[i].Label < items[j].Label
		}
		return items[i].Detail < items[j].Detail
	})
	return items
}

// Body returns the snippet stored under lang, trigger and description.
func (p *Provider) Body(lang, trigger, description string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	body, ok := p.library[lang][trigger][description]
	if !ok {
		return "", ErrUnknownTrigger
	}
	return body, nil
}

// CurrentWord returns the identifier-like word ending at column col of
// line. Columns count runes.
func CurrentWord(line string, col int) string {
	runes := []rune(line)
	if col > len(runes) {
		col = len(runes)
	}
	start := col
	for start > 0 && (isNameStart(runes[start-1]) || (runes[start-1] >= '0' && runes[start-1] <= '9')) {
		start--
	}
	return string(runes[start:col])
}
