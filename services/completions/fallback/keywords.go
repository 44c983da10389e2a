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
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// grammars maps a language tag to its tree-sitter grammar.
var grammars = map[string]func() *sitter.Language{
	"go":         golang.GetLanguage,
	"python":     python.GetLanguage,
	"javascript": javascript.GetLanguage,
	"typescript": typescript.GetLanguage,
	"rust":       rust.GetLanguage,
	"bash":       bash.GetLanguage,
	"sh":         bash.GetLanguage,
}

// staticKeywords covers languages without a bundled grammar.
var staticKeywords = map[string][]string{
	"c": {
		"auto", "break", "case", "char", "const", "continue", "default", "do", "double",
		"else", "enum", "extern", "float", "for", "goto", "if", "inline", "int", "long",
		"register", "restrict", "return", "short", "signed", "sizeof", "static", "struct",
		"switch", "typedef", "union", "unsigned", "void", "volatile", "while",
	},
	"cpp": {
		"alignas", "alignof", "auto", "bool", "break", "case", "catch", "char", "class",
		"const", "constexpr", "continue", "decltype", "default", "delete", "do", "double",
		"else", "enum", "explicit", "export", "extern", "false", "float", "for", "friend",
		"goto", "if", "inline", "int", "long", "mutable", "namespace", "new", "noexcept",
		"nullptr", "operator", "private", "protected", "public", "return", "short",
		"signed", "sizeof", "static", "struct", "switch", "template", "this", "throw",
		"true", "try", "typedef", "typename", "union", "unsigned", "using", "virtual",
		"void", "volatile", "while",
	},
	"java": {
		"abstract", "assert", "boolean", "break", "byte", "case", "catch", "char", "class",
		"continue", "default", "do", "double", "else", "enum", "extends", "final",
		"finally", "float", "for", "if", "implements", "import", "instanceof", "int",
		"interface", "long", "native", "new", "package", "private", "protected", "public",
		"return", "short", "static", "super", "switch", "synchronized", "this", "throw",
		"throws", "try", "void", "volatile", "while",
	},
	"r": {
		"break", "else", "FALSE", "for", "function", "if", "in", "Inf", "NA", "NaN",
		"next", "NULL", "repeat", "return", "TRUE", "while",
	},
}

var languageAliases = map[string]string{
	"c++":     "cpp",
	"golang":  "go",
	"js":      "javascript",
	"ts":      "typescript",
	"py":      "python",
	"python3": "python",
	"shell":   "bash",
}

var keywordIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var (
	keywordMu    sync.Mutex
	keywordCache = map[string][]string{}
)

// canonicalLanguage lower-cases and resolves aliases.
func canonicalLanguage(language string) string {
	l := strings.ToLower(strings.TrimSpace(language))
	if alias, ok := languageAliases[l]; ok {
		return alias
	}
	return l
}

// Keywords returns the sorted keyword set of language.
//
// Description:
//
//	For languages with a tree-sitter grammar the set is every anonymous
//	grammar symbol that looks like an identifier, which is exactly what
//	the grammar's lexer treats as a reserved word. Results are cached.
func Keywords(language string) []string {
	lang := canonicalLanguage(language)

	keywordMu.Lock()
	defer keywordMu.Unlock()
	if kw, ok := keywordCache[lang]; ok {
		return kw
	}

	var kw []string
	if grammar, ok := grammars[lang]; ok {
		kw = grammarKeywords(grammar())
	} else {
		kw = append(kw, staticKeywords[lang]...)
		sort.Strings(kw)
	}
	keywordCache[lang] = kw
	return kw
}

func grammarKeywords(l *sitter.Language) []string {
	seen := map[string]struct{}{}
	for i := uint32(0); i < l.SymbolCount(); i++ {
		sym := sitter.Symbol(i)
		if l.SymbolType(sym) != sitter.SymbolTypeAnonymous {
			continue
		}
		name := l.SymbolName(sym)
		if len(name) < 2 || !keywordIdent.MatchString(name) {
			continue
		}
		seen[name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
