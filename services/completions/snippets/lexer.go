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
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind is a lexical category. Every kind except EOF is a grammar
// terminal.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokDollar
	TokLBrace
	TokRBrace
	TokColon
	TokPipe
	TokSlash
	TokComma
	TokPlus
	TokMinus
	TokQuestion
	TokEscape
	TokInt
	TokName
	TokWhitespace
	TokNewline
	TokSymbol
)

var tokenNames = [...]string{
	TokEOF:        "EOF",
	TokDollar:     "'$'",
	TokLBrace:     "'{'",
	TokRBrace:     "'}'",
	TokColon:      "':'",
	TokPipe:       "'|'",
	TokSlash:      "'/'",
	TokComma:      "','",
	TokPlus:       "'+'",
	TokMinus:      "'-'",
	TokQuestion:   "'?'",
	TokEscape:     "escape",
	TokInt:        "integer",
	TokName:       "name",
	TokWhitespace: "whitespace",
	TokNewline:    "newline",
	TokSymbol:     "symbol",
}

// String returns the kind name used in syntax errors.
func (k TokenKind) String() string {
	if int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return "unknown"
}

// mergeable kinds join with a neighbour of the same kind after an edit.
func (k TokenKind) mergeable() bool {
	return k == TokInt || k == TokName || k == TokWhitespace
}

// Token is one lexeme.
type Token struct {
	Kind TokenKind

	// Raw is the source text, including any escaping backslash.
	Raw string

	// Offset is the byte offset of Raw in the source.
	Offset int
}

// Text is what the token contributes to the inserted text.
func (t Token) Text() string {
	if t.Kind == TokEscape {
		return t.Raw[1:]
	}
	return t.Raw
}

var punctuation = map[byte]TokenKind{
	'{': TokLBrace,
	'}': TokRBrace,
	':': TokColon,
	'|': TokPipe,
	'/': TokSlash,
	',': TokComma,
	'+': TokPlus,
	'-': TokMinus,
	'?': TokQuestion,
}

// escapable are the characters a backslash protects.
const escapable = `$}\,|/:{`

// Lex splits snippet source into tokens. It never fails: unknown input
// becomes symbols and the parser decides what is valid. A '$' that cannot
// start a tabstop or variable is an ordinary symbol.
func Lex(src string) []Token {
	var toks []Token
	for i := 0; i < len(src); {
		c := src[i]
		start := i
		switch {
		case c == '$':
			kind := TokSymbol
			if i+1 < len(src) {
				n := src[i+1]
				if n == '{' || isDigit(n) || isNameStart(rune(n)) {
					kind = TokDollar
				}
			}
			i++
			toks = append(toks, Token{Kind: kind, Raw: "$", Offset: start})
		case c == '\\':
			if i+1 < len(src) && strings.IndexByte(escapable, src[i+1]) >= 0 {
				i += 2
				toks = append(toks, Token{Kind: TokEscape, Raw: src[start:i], Offset: start})
				continue
			}
			i++
			toks = append(toks, Token{Kind: TokSymbol, Raw: `\`, Offset: start})
		case c == '\n' || c == '\r':
			i++
			toks = append(toks, Token{Kind: TokNewline, Raw: src[start:i], Offset: start})
		default:
			if kind, ok := punctuation[c]; ok {
				i++
				toks = append(toks, Token{Kind: kind, Raw: src[start:i], Offset: start})
				continue
			}
			kind, n := lexWord(src[i:])
			i += n
			toks = append(toks, Token{Kind: kind, Raw: src[start:i], Offset: start})
		}
	}
	return toks
}

// plainTokens splits typed text into leaf tokens without snippet syntax.
func plainTokens(text string) []Token {
	var toks []Token
	for i := 0; i < len(text); {
		start := i
		c := text[i]
		if c == '\n' || c == '\r' {
			i++
			toks = append(toks, Token{Kind: TokNewline, Raw: text[start:i], Offset: start})
			continue
		}
		kind, n := lexWord(text[i:])
		i += n
		toks = append(toks, Token{Kind: kind, Raw: text[start:i], Offset: start})
	}
	return toks
}

// lexWord reads an integer, name, whitespace run or single symbol.
func lexWord(s string) (TokenKind, int) {
	r, size := utf8.DecodeRuneInString(s)
	switch {
	case isDigit(s[0]):
		n := 1
		for n < len(s) && isDigit(s[n]) {
			n++
		}
		return TokInt, n
	case isNameStart(r):
		n := size
		for n < len(s) {
			r, sz := utf8.DecodeRuneInString(s[n:])
			if !isNameStart(r) && !unicode.IsDigit(r) {
				break
			}
			n += sz
		}
		return TokName, n
	case r == ' ' || r == '\t':
		n := 1
		for n < len(s) && (s[n] == ' ' || s[n] == '\t') {
			n++
		}
		return TokWhitespace, n
	default:
		return TokSymbol, size
	}
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isNameStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }
