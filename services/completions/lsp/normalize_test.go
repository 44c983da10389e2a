// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianComplete/services/completions/transport"
)

func TestNormalizeCompletion_List(t *testing.T) {
	raw := `{"isIncomplete":false,"items":[
		{"label":"append","kind":2,"detail":"append(x)","documentation":{"kind":"markdown","value":"Add x"}},
		{"label":"print","textEdit":{"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":2}},"newText":"print()"}},
		{"kind":3}
	]}`
	items := NormalizeCompletion([]byte(raw))
	require.Len(t, items, 2)

	assert.Equal(t, "append", items[0].Label)
	assert.Equal(t, KindMethod, items[0].Kind)
	assert.Equal(t, "Add x", items[0].Documentation)
	assert.Equal(t, "append", items[0].SortText)
	assert.Equal(t, "append", items[0].FilterText)
	assert.Equal(t, "append", items[0].InsertText)
	assert.Equal(t, InsertPlainText, items[0].InsertTextFormat)

	assert.Equal(t, KindText, items[1].Kind)
	assert.Equal(t, "print()", items[1].InsertText)
	require.NotNil(t, items[1].TextEdit)
	assert.Equal(t, 2, items[1].TextEdit.Range.End.Character)
}

func TestNormalizeCompletion_ArrayAndNull(t *testing.T) {
	items := NormalizeCompletion([]byte(`[{"label":"x","insertTextFormat":2,"insertText":"x($1)"}]`))
	require.Len(t, items, 1)
	assert.Equal(t, InsertSnippet, items[0].InsertTextFormat)
	assert.Equal(t, "x($1)", items[0].InsertText)

	assert.Empty(t, NormalizeCompletion([]byte(`null`)))
}

func TestNormalizeSignatureHelp(t *testing.T) {
	raw := `{"activeSignature":1,"activeParameter":1,"signatures":[
		{"label":"f()"},
		{"label":"g(a, b)","documentation":"does g","parameters":[{"label":[2,3]},{"label":"b"}]}
	]}`
	sig := NormalizeSignatureHelp([]byte(raw))
	require.NotNil(t, sig)
	assert.Equal(t, "g(a, b)", sig.Label)
	assert.Equal(t, "does g", sig.Documentation)
	assert.Equal(t, 1, sig.ActiveParameter)
	require.Len(t, sig.Parameters, 2)
	assert.Equal(t, "a", sig.Parameters[0].Label)
	assert.Equal(t, "b", sig.Parameters[1].Label)

	assert.Nil(t, NormalizeSignatureHelp([]byte(`{"signatures":[]}`)))
}

func TestNormalizeHover(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"markup", `{"contents":{"kind":"plaintext","value":" int x "}}`, "int x"},
		{"string", `{"contents":"doc"}`, "doc"},
		{"marked list", `{"contents":[{"language":"go","value":"func f()"},"text"]}`, "func f()\n\ntext"},
		{"null", `null`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHover([]byte(tt.raw)))
		})
	}
}

func TestNormalizeLocations(t *testing.T) {
	single := `{"uri":"file:///a.py","range":{"start":{"line":3,"character":1},"end":{"line":3,"character":4}}}`
	loc := NormalizeDefinition([]byte(single))
	require.NotNil(t, loc)
	assert.Equal(t, "/a.py", loc.Path)
	assert.Equal(t, 3, loc.Range.Start.Line)

	links := `[{"targetUri":"file:///b.py","targetRange":{"start":{"line":0,"character":0},"end":{"line":9,"character":0}},
		"targetSelectionRange":{"start":{"line":2,"character":4},"end":{"line":2,"character":8}}}]`
	locs := NormalizeLocations([]byte(links))
	require.Len(t, locs, 1)
	assert.Equal(t, "file:///b.py", locs[0].URI)
	assert.Equal(t, 2, locs[0].Range.Start.Line)

	assert.Nil(t, NormalizeDefinition([]byte(`null`)))
}

func TestNormalizeSymbols_Hierarchical(t *testing.T) {
	raw := `[{"name":"Foo","kind":5,"range":{"start":{"line":0,"character":0},"end":{"line":4,"character":0}},
		"children":[{"name":"bar","kind":6,"range":{"start":{"line":1,"character":4},"end":{"line":2,"character":0}}}]}]`
	syms := NormalizeSymbols([]byte(raw), "file:///x.py")
	require.Len(t, syms, 2)
	assert.Equal(t, "Foo", syms[0].Name)
	assert.Equal(t, "bar", syms[1].Name)
	assert.Equal(t, "Foo", syms[1].ContainerName)
	assert.Equal(t, "/x.py", syms[1].Location.Path)
}

func TestNormalizeWorkspaceEdit(t *testing.T) {
	raw := `{"changes":{"file:///a.py":[{"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}},"newText":"b"}]},
		"documentChanges":[{"textDocument":{"uri":"file:///c.py","version":2},"edits":[{"range":{"start":{"line":1,"character":0},"end":{"line":1,"character":0}},"newText":"x"}]},
		{"kind":"create","uri":"file:///d.py"}]}`
	edit := NormalizeWorkspaceEdit([]byte(raw))
	require.NotNil(t, edit)
	assert.Len(t, edit.Changes, 2)
	assert.Equal(t, "b", edit.Changes["/a.py"][0].NewText)
	assert.Equal(t, "x", edit.Changes["/c.py"][0].NewText)

	assert.Nil(t, NormalizeWorkspaceEdit([]byte(`null`)))
}

func TestNormalizeDiagnostics(t *testing.T) {
	raw := `{"uri":"file:///a.py","version":4,"diagnostics":[
		{"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":3}},"severity":1,"source":"pyflakes","message":"undefined name","code":"F821"}]}`
	p := NormalizeDiagnostics([]byte(raw))
	assert.Equal(t, "file:///a.py", p.URI)
	require.NotNil(t, p.Version)
	assert.Equal(t, 4, *p.Version)
	require.Len(t, p.Diagnostics, 1)
	assert.Equal(t, "F821", p.Diagnostics[0].Code)
	assert.Equal(t, "pyflakes", p.Diagnostics[0].Source)

	empty := NormalizeDiagnostics([]byte(`{"uri":"file:///a.py","diagnostics":[]}`))
	assert.Nil(t, empty.Version)
	assert.NotNil(t, empty.Diagnostics)
}

func TestMethodTable_NormalizersReturnNilWhenEmpty(t *testing.T) {
	for _, m := range FeatureMethods() {
		spec := methodTable[m]
		require.NotNil(t, spec.normalize, m)
		assert.Nil(t, spec.normalize([]byte(`null`), "file:///a.py"), m)
	}
}

func TestRequiresResponse(t *testing.T) {
	assert.True(t, RequiresResponse(MethodInitialize))
	assert.True(t, RequiresResponse(MethodCompletion))
	assert.False(t, RequiresResponse(MethodDidOpen))
	assert.False(t, RequiresResponse(MethodExit))
	assert.False(t, RequiresResponse("custom/thing"))
}

func TestMessageLocked_FollowsMethodTable(t *testing.T) {
	c := NewClient(Options{Language: "python"})

	msg, id, err := c.messageLocked(MethodHover, map[string]any{})
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, string(transport.IntID(id)), string(msg.ID))
	assert.Equal(t, MethodHover, msg.Method)

	msg, id, err = c.messageLocked(MethodDidSave, map[string]any{})
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Empty(t, msg.ID)

	_, _, err = c.messageLocked("custom/thing", nil)
	assert.ErrorIs(t, err, ErrUnknownMethod)

	assert.ErrorIs(t, c.notifyLocked(MethodCompletion, nil), ErrExpectsResponse)
	assert.Empty(t, c.pending)
}
