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
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// IncrementalChange computes a single-range edit turning prev into next.
//
// Description:
//
//	Trims the common prefix and suffix (on rune boundaries) and replaces
//	what is left. Positions are in UTF-16 code units as LSP requires.
//
// Outputs:
//
//	TextDocumentContentChangeEvent - with a non-nil Range.
func IncrementalChange(prev, next string) TextDocumentContentChangeEvent {
	limit := len(prev)
	if len(next) < limit {
		limit = len(next)
	}

	start := 0
	for start < limit && prev[start] == next[start] {
		start++
	}
	for start > 0 && start < len(prev) && !utf8.RuneStart(prev[start]) {
		start--
	}

	suffix := 0
	for suffix < limit-start && prev[len(prev)-1-suffix] == next[len(next)-1-suffix] {
		suffix++
	}
	for suffix > 0 && !utf8.RuneStart(prev[len(prev)-suffix]) {
		suffix--
	}

	r := Range{
		Start: PositionAt(prev, start),
		End:   PositionAt(prev, len(prev)-suffix),
	}
	return TextDocumentContentChangeEvent{Range: &r, Text: next[start : len(next)-suffix]}
}

// PositionAt converts a byte offset in text to an LSP position.
func PositionAt(text string, offset int) Position {
	if offset > len(text) {
		offset = len(text)
	}
	head := text[:offset]
	line := strings.Count(head, "\n")
	if i := strings.LastIndexByte(head, '\n'); i >= 0 {
		head = head[i+1:]
	}
	return Position{Line: line, Character: UTF16Len(head)}
}

// UTF16Len is the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
