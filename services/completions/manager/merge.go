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
	"sort"

	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
)

// merge folds replies into res. Completion items are unioned; every other
// method keeps the first non-empty reply in priority order.
func merge(res *Result, replies []reply) {
	sort.SliceStable(replies, func(i, j int) bool {
		if replies[i].priority != replies[j].priority {
			return replies[i].priority < replies[j].priority
		}
		return replies[i].provider < replies[j].provider
	})

	if res.Method == lsp.MethodCompletion {
		mergeCompletion(res, replies)
		return
	}
	for _, r := range replies {
		if assign(res, r.result) {
			res.Providers = []string{r.provider}
			return
		}
	}
}

type itemKey struct {
	label      string
	insertText string
}

// mergeCompletion unions the items, drops exact duplicates by (label,
// insertText), drops any non-snippet item whose label a snippet also
// offers, and sorts by (sortText, label).
func mergeCompletion(res *Result, replies []reply) {
	seen := map[itemKey]int{}
	snippetLabels := map[string]bool{}
	var items []lsp.CompletionItem
	for _, r := range replies {
		list, _ := r.result.([]lsp.CompletionItem)
		if len(list) == 0 {
			continue
		}
		res.Providers = append(res.Providers, r.provider)
		for _, it := range list {
			it = it.WithDefaults()
			if it.Provider == "" {
				it.Provider = r.provider
			}
			if it.Kind == lsp.KindSnippet {
				snippetLabels[it.Label] = true
			}
			k := itemKey{label: it.Label, insertText: it.InsertText}
			if i, dup := seen[k]; dup {
				if it.Kind == lsp.KindSnippet && items[i].Kind != lsp.KindSnippet {
					items[i] = it
				}
				continue
			}
			seen[k] = len(items)
			items = append(items, it)
		}
	}
	kept := items[:0]
	for _, it := range items {
		if it.Kind != lsp.KindSnippet && snippetLabels[it.Label] {
			continue
		}
		kept = append(kept, it)
	}
	items = kept
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].SortText != items[j].SortText {
			return items[i].SortText < items[j].SortText
		}
		return items[i].Label < items[j].Label
	})
	res.Items = items
}

// assign stores a non-empty single-winner result and reports whether it
// did.
func assign(res *Result, v any) bool {
	switch r := v.(type) {
	case *lsp.SignatureInformation:
		if r == nil {
			return false
		}
		res.Signature = r
	case string:
		if r == "" {
			return false
		}
		res.Hover = r
	case *lsp.Location:
		if r == nil {
			return false
		}
		res.Definition = r
	case []lsp.Location:
		if len(r) == 0 {
			return false
		}
		res.Locations = r
	case []lsp.Symbol:
		if len(r) == 0 {
			return false
		}
		res.Symbols = r
	case []lsp.TextEdit:
		if len(r) == 0 {
			return false
		}
		res.Edits = r
	case *lsp.WorkspaceEdit:
		if r == nil {
			return false
		}
		res.WorkspaceEdit = r
	default:
		return false
	}
	return true
}
