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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianComplete/services/completions/fallback"
	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
	"github.com/AleutianAI/AleutianComplete/services/completions/snippets"
)

func TestMerge_CompletionDedupe(t *testing.T) {
	res := &Result{Method: lsp.MethodCompletion}
	merge(res, []reply{
		{provider: "fallback", priority: PriorityFallback, result: []lsp.CompletionItem{
			{Label: "print"}, {Label: "for", InsertText: "for ${1:x} in ${2:y}:"},
		}},
		{provider: "lsp:python", priority: PriorityLSP, result: []lsp.CompletionItem{
			{Label: "print", Kind: lsp.KindFunction, SortText: "a"},
			{Label: "for", InsertText: "for ${1:x} in ${2:y}:", Kind: lsp.KindKeyword},
		}},
		{provider: "snippets", priority: PrioritySnippets, result: []lsp.CompletionItem{
			{Label: "for", InsertText: "for ${1:x} in ${2:y}:", Kind: lsp.KindSnippet, InsertTextFormat: lsp.InsertSnippet},
		}},
		{provider: "empty", priority: 1, result: nil},
	})

	require.Len(t, res.Items, 2)
	assert.Equal(t, "print", res.Items[0].Label, "sortText a sorts first")
	assert.Equal(t, "lsp:python", res.Items[0].Provider)
	assert.Equal(t, lsp.KindFunction, res.Items[0].Kind)

	assert.Equal(t, "for", res.Items[1].Label)
	assert.Equal(t, lsp.KindSnippet, res.Items[1].Kind, "snippet wins a duplicate")
	assert.Equal(t, "snippets", res.Items[1].Provider)

	assert.Equal(t, []string{"lsp:python", "snippets", "fallback"}, res.Providers)
}

func TestMerge_SnippetWinsLabelCollision(t *testing.T) {
	res := &Result{Method: lsp.MethodCompletion}
	merge(res, []reply{
		{provider: "lsp:python", priority: PriorityLSP, result: []lsp.CompletionItem{
			{Label: "for", InsertText: "for", Kind: lsp.KindKeyword},
			{Label: "format", Kind: lsp.KindFunction},
		}},
		{provider: "snippets", priority: PrioritySnippets, result: []lsp.CompletionItem{
			{Label: "for", InsertText: "for ${1:i} in ${2:seq}:", Kind: lsp.KindSnippet, InsertTextFormat: lsp.InsertSnippet},
			{Label: "for", InsertText: "for ${1:k}, ${2:v} in ${3:d}.items():", Kind: lsp.KindSnippet, InsertTextFormat: lsp.InsertSnippet},
		}},
		{provider: "fallback", priority: PriorityFallback, result: []lsp.CompletionItem{
			{Label: "for"},
		}},
	})

	var labels []string
	for _, it := range res.Items {
		labels = append(labels, it.Label)
		if it.Label == "for" {
			assert.Equal(t, lsp.KindSnippet, it.Kind)
			assert.Equal(t, "snippets", it.Provider)
		}
	}
	assert.Equal(t, []string{"for", "for", "format"}, labels, "distinct snippets survive, other providers' same-label items do not")
}

func TestMerge_DefaultsFilled(t *testing.T) {
	res := &Result{Method: lsp.MethodCompletion}
	merge(res, []reply{{provider: "x", result: []lsp.CompletionItem{{Label: "os"}}}})
	require.Len(t, res.Items, 1)
	it := res.Items[0]
	assert.Equal(t, lsp.KindText, it.Kind)
	assert.Equal(t, "os", it.SortText)
	assert.Equal(t, "os", it.FilterText)
	assert.Equal(t, "os", it.InsertText)
	assert.Equal(t, lsp.InsertPlainText, it.InsertTextFormat)
}

func TestMerge_FirstNonEmpty(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		replies []reply
		check   func(t *testing.T, res *Result)
	}{
		{
			name:   "hover skips empty higher priority",
			method: lsp.MethodHover,
			replies: []reply{
				{provider: "b", priority: 20, result: "second"},
				{provider: "a", priority: 10, result: ""},
				{provider: "c", priority: 30, result: "third"},
			},
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, "second", res.Hover)
				assert.Equal(t, []string{"b"}, res.Providers)
			},
		},
		{
			name:   "signature by priority",
			method: lsp.MethodSignatureHelp,
			replies: []reply{
				{provider: "late", priority: 30, result: &lsp.SignatureInformation{Label: "late()"}},
				{provider: "early", priority: 10, result: &lsp.SignatureInformation{Label: "walk(top)"}},
			},
			check: func(t *testing.T, res *Result) {
				require.NotNil(t, res.Signature)
				assert.Equal(t, "walk(top)", res.Signature.Label)
			},
		},
		{
			name:   "definition nil pointer is empty",
			method: lsp.MethodDefinition,
			replies: []reply{
				{provider: "a", priority: 10, result: (*lsp.Location)(nil)},
				{provider: "b", priority: 20, result: &lsp.Location{Path: "/w/os.py"}},
			},
			check: func(t *testing.T, res *Result) {
				require.NotNil(t, res.Definition)
				assert.Equal(t, "/w/os.py", res.Definition.Path)
			},
		},
		{
			name:    "nothing",
			method:  lsp.MethodReferences,
			replies: []reply{{provider: "a", result: nil}, {provider: "b", result: []lsp.Location{}}},
			check: func(t *testing.T, res *Result) {
				assert.True(t, res.Empty())
				assert.Nil(t, res.Locations)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &Result{Method: tt.method}
			merge(res, tt.replies)
			tt.check(t, res)
		})
	}
}

func TestTicket_RefusesAfterClose(t *testing.T) {
	tk := newTicket(inflightKey{path: "/a.py", method: lsp.MethodHover}, 2)
	assert.True(t, tk.deliver(reply{provider: "a"}))
	tk.close()
	assert.False(t, tk.deliver(reply{provider: "b"}))
	assert.Len(t, tk.replies, 1)
	assert.NotEmpty(t, tk.id)

	tk.supersede()
	tk.supersede()
	select {
	case <-tk.superseded:
	default:
		t.Fatal("superseded channel not closed")
	}
}

func TestLineAt(t *testing.T) {
	text := "import os\r\nos.walk(\nfo"
	assert.Equal(t, "import os", lineAt(text, 0))
	assert.Equal(t, "os.walk(", lineAt(text, 1))
	assert.Equal(t, "fo", lineAt(text, 2))
	assert.Equal(t, "", lineAt(text, 3))
}

func TestLocalProviders(t *testing.T) {
	sp := &snippetsProvider{library: snippets.NewProvider(snippets.Library{
		"python": {"for": {"for loop": "for ${1:i} in ${2:seq}:\n    $0"}},
	}, nil)}
	assert.Equal(t, StatusStopped, sp.Status())
	require.NoError(t, sp.Start(context.Background()))
	assert.True(t, sp.Supports("python", lsp.MethodCompletion))
	assert.False(t, sp.Supports("go", lsp.MethodCompletion))
	assert.False(t, sp.Supports("python", lsp.MethodHover))

	var got []lsp.CompletionItem
	_, err := sp.Send(context.Background(), Request{Language: "python", Text: "x = 1\n  fo", Line: 1, Column: 4}, func(v any) {
		got = v.([]lsp.CompletionItem)
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "for loop", got[0].Detail)

	fp := &fallbackProvider{worker: fallback.NewWorker(fallback.Options{})}
	require.NoError(t, fp.Start(context.Background()))
	defer fp.Stop()
	doc := Document{Path: "/w/a.py", Language: "python", Version: 1, Text: "alpha = 1\n"}
	require.NoError(t, fp.Sync(DocumentEvent{Kind: EventOpen, Document: doc}))
	next := doc
	next.Version, next.Text = 2, "alpha = 1\nbeta = alpha\n"
	require.NoError(t, fp.Sync(DocumentEvent{Kind: EventChange, Document: next, Previous: doc.Text}))
	// a replayed open resets the mirror instead of patching it twice
	require.NoError(t, fp.Sync(DocumentEvent{Kind: EventOpen, Document: next}))

	tokens := make(chan []lsp.CompletionItem, 1)
	_, err = fp.Send(context.Background(), Request{Path: "/w/a.py"}, func(v any) { tokens <- v.([]lsp.CompletionItem) })
	require.NoError(t, err)
	words := map[string]bool{}
	for _, it := range <-tokens {
		words[it.Label] = true
	}
	assert.True(t, words["alpha"])
	assert.True(t, words["beta"])
}
