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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
)

func TestContext_Resolve(t *testing.T) {
	ctx := &Context{
		FilePath:    "/work/pkg/main.go",
		Line:        4,
		CurrentLine: "\tfmt.Println(x)",
		Word:        "Println",
		Selection:   "x",
		Now:         func() time.Time { return time.Date(2024, time.March, 7, 9, 5, 3, 0, time.UTC) },
		Extra:       map[string]string{"AUTHOR": "aleutian"},
	}

	want := map[string]string{
		"TM_FILENAME":        "main.go",
		"TM_FILENAME_BASE":   "main",
		"TM_DIRECTORY":       "/work/pkg",
		"TM_FILEPATH":        "/work/pkg/main.go",
		"TM_LINE_INDEX":      "4",
		"TM_LINE_NUMBER":     "5",
		"TM_CURRENT_LINE":    "\tfmt.Println(x)",
		"TM_CURRENT_WORD":    "Println",
		"TM_SELECTED_TEXT":   "x",
		"CURRENT_YEAR":       "2024",
		"CURRENT_YEAR_SHORT": "24",
		"CURRENT_MONTH":      "03",
		"CURRENT_MONTH_NAME": "March",
		"CURRENT_DATE":       "07",
		"CURRENT_DAY_NAME":   "Thursday",
		"CURRENT_HOUR":       "09",
		"CURRENT_MINUTE":     "05",
		"CURRENT_SECOND":     "03",
		"AUTHOR":             "aleutian",
	}
	for name, value := range want {
		got, ok := ctx.Resolve(name)
		assert.True(t, ok, name)
		assert.Equal(t, value, got, name)
	}

	id, ok := ctx.Resolve("UUID")
	require.True(t, ok)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)

	hex, ok := ctx.Resolve("RANDOM_HEX")
	require.True(t, ok)
	assert.Len(t, hex, 6)

	_, ok = ctx.Resolve("NOPE")
	assert.False(t, ok)
}

func TestExpand_WithContext(t *testing.T) {
	ctx := &Context{FilePath: "/src/app.py"}
	root, err := Expand("# ${TM_FILENAME/(.*)\\.py/${1:/upcase}/} in $TM_DIRECTORY", ctx)
	require.NoError(t, err)
	assert.Equal(t, "# APP in /src", root.Text())
}

func TestProvider(t *testing.T) {
	p := NewProvider(Library{
		"python": {
			"for": {
				"for loop":       forLoop,
				"enumerate loop": "for ${1:i}, ${2:x} in enumerate(${3:seq}):\n    $0",
			},
			"format": {"fstring": "f\"{${1:value}}\""},
			"broken": {"bad": "${1:"},
		},
	}, nil)

	items := p.Complete("python", "fo")
	require.Len(t, items, 3)
	assert.Equal(t, "enumerate loop", items[0].Detail)
	for _, it := range items {
		assert.Equal(t, lsp.KindSnippet, it.Kind)
		assert.Equal(t, lsp.InsertSnippet, it.InsertTextFormat)
		assert.Equal(t, it.Label, it.SortText)
	}

	assert.Empty(t, p.Complete("python", ""))
	assert.Empty(t, p.Complete("python", "broken"))
	assert.Empty(t, p.Complete("go", "fo"))
	assert.Equal(t, []string{"python"}, p.Languages())

	body, err := p.Body("python", "for", "for loop")
	require.NoError(t, err)
	assert.Equal(t, forLoop, body)

	_, err = p.Body("python", "while", "loop")
	assert.ErrorIs(t, err, ErrUnknownTrigger)
}

func TestCurrentWord(t *testing.T) {
	assert.Equal(t, "fo", CurrentWord("    fo", 6))
	assert.Equal(t, "x1", CurrentWord("a.x1", 4))
	assert.Equal(t, "", CurrentWord("a. ", 3))
	assert.Equal(t, "abc", CurrentWord("abc", 10))
}
