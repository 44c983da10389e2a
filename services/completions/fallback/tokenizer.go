// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fallback

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
)

var (
	// kebabWords keeps hyphenated names such as CSS properties.
	kebabWords = regexp.MustCompile(`[A-Za-z][A-Za-z-]*`)

	// identWords keeps underscores and digits after the first letter.
	identWords = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

	// alphaWords is letters only.
	alphaWords = regexp.MustCompile(`[A-Za-z]+`)
)

// wordPattern picks the word regex for a language.
func wordPattern(language string) *regexp.Regexp {
	switch canonicalLanguage(language) {
	case "css", "scss", "html", "xml":
		return kebabWords
	case "c", "cpp", "python", "java", "r", "markdown":
		return identWords
	default:
		return alphaWords
	}
}

// Words returns the distinct identifier-like words of text, sorted.
func Words(language, text string) []string {
	seen := map[string]struct{}{}
	for _, w := range wordPattern(language).FindAllString(text, -1) {
		w = strings.TrimRight(w, "-")
		if w == "" || strings.Trim(w, "_") == "" {
			continue
		}
		seen[w] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Tokenize produces the completion items for text: every keyword of the
// language as KEYWORD and every other word as TEXT.
func Tokenize(language, text string) []lsp.CompletionItem {
	keywords := Keywords(language)
	isKeyword := make(map[string]struct{}, len(keywords))
	items := make([]lsp.CompletionItem, 0, len(keywords))
	for _, kw := range keywords {
		isKeyword[kw] = struct{}{}
		items = append(items, tokenItem(kw, lsp.KindKeyword))
	}
	for _, w := range Words(language, text) {
		if _, ok := isKeyword[w]; ok {
			continue
		}
		items = append(items, tokenItem(w, lsp.KindText))
	}
	return items
}

func tokenItem(token string, kind lsp.CompletionItemKind) lsp.CompletionItem {
	return lsp.CompletionItem{
		Label:      token,
		Kind:       kind,
		InsertText: token,
		FilterText: token,
		SortText:   lowerFirst(token),
	}.WithDefaults()
}

// lowerFirst returns the lower-cased first letter of s.
func lowerFirst(s string) string {
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r))
}
