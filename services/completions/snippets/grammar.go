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
	"fmt"
	"sort"
	"strings"
	"sync"
)

// symbol is a grammar symbol: a terminal token kind or a nonterminal.
type symbol struct {
	term bool
	tok  TokenKind
	nt   string
}

func tk(k TokenKind) symbol { return symbol{term: true, tok: k} }
func nt(name string) symbol { return symbol{nt: name} }

func (s symbol) String() string {
	if s.term {
		return s.tok.String()
	}
	return s.nt
}

// production is lhs -> rhs. An empty rhs is epsilon.
type production struct {
	lhs string
	rhs []symbol
}

// startRule is the grammar's start symbol.
const startRule = "START"

// terminals lists every token kind that can appear in source.
var terminals = []TokenKind{
	TokDollar, TokLBrace, TokRBrace, TokColon, TokPipe, TokSlash, TokComma,
	TokPlus, TokMinus, TokQuestion, TokEscape, TokInt, TokName,
	TokWhitespace, TokNewline, TokSymbol,
}

func allExcept(excluded ...TokenKind) []TokenKind {
	skip := map[TokenKind]bool{}
	for _, k := range excluded {
		skip[k] = true
	}
	var out []TokenKind
	for _, k := range terminals {
		if !skip[k] {
			out = append(out, k)
		}
	}
	return out
}

// Text contexts differ in which terminals end the run.
var textSets = map[string][]TokenKind{
	"TOPLEAF":    allExcept(TokDollar),
	"INNERLEAF":  allExcept(TokDollar, TokRBrace),
	"CHOICELEAF": allExcept(TokComma, TokPipe),
	"REGEXLEAF":  allExcept(TokSlash),
	"FMTLEAF":    allExcept(TokDollar, TokSlash),
	"IFLEAF":     allExcept(TokRBrace, TokColon),
	"ELSEHEAD":   allExcept(TokRBrace, TokColon, TokSlash, TokPlus, TokQuestion, TokMinus),
}

// grammarRules is the snippet grammar.
func grammarRules() []production {
	p := func(lhs string, rhs ...symbol) production { return production{lhs: lhs, rhs: rhs} }
	rules := []production{
		p(startRule, nt("ANY")),
		p("ANY", nt("SNIPPET"), nt("ANY")),
		p("ANY", nt("TOPLEAF"), nt("ANY")),
		p("ANY"),

		p("SNIPPET", tk(TokDollar), nt("BODY")),
		p("BODY", tk(TokInt)),
		p("BODY", tk(TokName)),
		p("BODY", tk(TokLBrace), nt("BRACED")),
		p("BRACED", tk(TokInt), nt("INTTAIL")),
		p("BRACED", tk(TokName), nt("NAMETAIL")),
		p("INTTAIL", tk(TokRBrace)),
		p("INTTAIL", tk(TokColon), nt("PLACEHOLDER"), tk(TokRBrace)),
		p("INTTAIL", tk(TokPipe), nt("CHOICES"), tk(TokPipe), tk(TokRBrace)),
		p("NAMETAIL", tk(TokRBrace)),
		p("NAMETAIL", tk(TokColon), nt("PLACEHOLDER"), tk(TokRBrace)),
		p("NAMETAIL", tk(TokSlash), nt("REGEX"), tk(TokSlash), nt("FORMAT"), tk(TokSlash), nt("OPTIONS"), tk(TokRBrace)),

		p("PLACEHOLDER", nt("INNER")),
		p("INNER", nt("SNIPPET"), nt("INNER")),
		p("INNER", nt("INNERLEAF"), nt("INNER")),
		p("INNER"),

		p("CHOICES", nt("CHOICE"), nt("MORECHOICES")),
		p("MORECHOICES", tk(TokComma), nt("CHOICE"), nt("MORECHOICES")),
		p("MORECHOICES"),
		p("CHOICE", nt("CHOICETEXT")),
		p("CHOICETEXT", nt("CHOICELEAF"), nt("CHOICETEXT")),
		p("CHOICETEXT"),

		p("REGEX", nt("REGEXTEXT")),
		p("REGEXTEXT", nt("REGEXLEAF"), nt("REGEXTEXT")),
		p("REGEXTEXT"),

		p("FORMAT", nt("FMTITEMS")),
		p("FMTITEMS", nt("FMTREF"), nt("FMTITEMS")),
		p("FMTITEMS", nt("FMTLEAF"), nt("FMTITEMS")),
		p("FMTITEMS"),
		p("FMTREF", tk(TokDollar), nt("FMTBODY")),
		p("FMTBODY", tk(TokInt)),
		p("FMTBODY", tk(TokLBrace), tk(TokInt), nt("FMTBRACED")),
		p("FMTBRACED", tk(TokRBrace)),
		p("FMTBRACED", tk(TokColon), nt("FMTCOLON")),
		p("FMTCOLON", tk(TokSlash), tk(TokName), tk(TokRBrace)),
		p("FMTCOLON", tk(TokPlus), nt("IFTEXT"), tk(TokRBrace)),
		p("FMTCOLON", tk(TokQuestion), nt("IFTEXT"), tk(TokColon), nt("IFTEXT"), tk(TokRBrace)),
		p("FMTCOLON", tk(TokMinus), nt("IFTEXT"), tk(TokRBrace)),
		p("FMTCOLON", nt("ELSETEXT"), tk(TokRBrace)),
		p("FMTCOLON", tk(TokRBrace)),
		p("IFTEXT", nt("IFBODY")),
		p("ELSETEXT", nt("ELSEHEAD"), nt("IFBODY")),
		p("IFBODY", nt("IFLEAF"), nt("IFBODY")),
		p("IFBODY"),

		p("OPTIONS", tk(TokName)),
		p("OPTIONS"),
	}

	names := make([]string, 0, len(textSets))
	for name := range textSets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, k := range textSets[name] {
			rules = append(rules, p(name, tk(k)))
		}
	}
	return rules
}

// parseTable is the LL(1) table: nonterminal -> lookahead -> production.
type parseTable struct {
	rules  []production
	table  map[string]map[TokenKind]int
	first  map[string]map[TokenKind]bool
	follow map[string]map[TokenKind]bool
	null   map[string]bool
}

var (
	tableOnce sync.Once
	llTable   *parseTable
	tableErr  error
)

// grammarTable builds the table on first use.
func grammarTable() (*parseTable, error) {
	tableOnce.Do(func() {
		llTable, tableErr = buildTable(grammarRules())
	})
	return llTable, tableErr
}

// buildTable computes FIRST and FOLLOW and fills the predictive table.
// A grammar that is not LL(1) is reported as an error naming the clash.
func buildTable(rules []production) (*parseTable, error) {
	pt := &parseTable{
		rules:  rules,
		table:  map[string]map[TokenKind]int{},
		first:  map[string]map[TokenKind]bool{},
		follow: map[string]map[TokenKind]bool{},
		null:   map[string]bool{},
	}
	for _, r := range rules {
		pt.first[r.lhs] = map[TokenKind]bool{}
		pt.follow[r.lhs] = map[TokenKind]bool{}
	}
	pt.follow[startRule][TokEOF] = true

	for changed := true; changed; {
		changed = false
		for _, r := range rules {
			first, nullable := pt.firstOf(r.rhs)
			for k := range first {
				if !pt.first[r.lhs][k] {
					pt.first[r.lhs][k] = true
					changed = true
				}
			}
			if nullable && !pt.null[r.lhs] {
				pt.null[r.lhs] = true
				changed = true
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for _, r := range rules {
			for i, s := range r.rhs {
				if s.term {
					continue
				}
				rest, nullable := pt.firstOf(r.rhs[i+1:])
				if nullable {
					for k := range pt.follow[r.lhs] {
						rest[k] = true
					}
				}
				for k := range rest {
					if !pt.follow[s.nt][k] {
						pt.follow[s.nt][k] = true
						changed = true
					}
				}
			}
		}
	}

	var conflicts []string
	for i, r := range rules {
		if pt.table[r.lhs] == nil {
			pt.table[r.lhs] = map[TokenKind]int{}
		}
		first, nullable := pt.firstOf(r.rhs)
		if nullable {
			for k := range pt.follow[r.lhs] {
				first[k] = true
			}
		}
		for k := range first {
			if prev, ok := pt.table[r.lhs][k]; ok && prev != i {
				conflicts = append(conflicts, fmt.Sprintf("%s on %s: %s | %s", r.lhs, k, formatRule(rules[prev]), formatRule(r)))
				continue
			}
			pt.table[r.lhs][k] = i
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return nil, fmt.Errorf("snippet grammar is not LL(1): %s", strings.Join(conflicts, "; "))
	}
	return pt, nil
}

// firstOf returns FIRST of a symbol string and whether it derives epsilon.
func (pt *parseTable) firstOf(syms []symbol) (map[TokenKind]bool, bool) {
	out := map[TokenKind]bool{}
	for _, s := range syms {
		if s.term {
			out[s.tok] = true
			return out, false
		}
		for k := range pt.first[s.nt] {
			out[k] = true
		}
		if !pt.null[s.nt] {
			return out, false
		}
	}
	return out, true
}

// expected lists the terminals acceptable for nonterminal nt.
func (pt *parseTable) expected(nt string) []string {
	var out []string
	for k := range pt.table[nt] {
		out = append(out, k.String())
	}
	sort.Strings(out)
	return out
}

func formatRule(p production) string {
	if len(p.rhs) == 0 {
		return p.lhs + " -> ε"
	}
	parts := make([]string, len(p.rhs))
	for i, s := range p.rhs {
		parts[i] = s.String()
	}
	return p.lhs + " -> " + strings.Join(parts, " ")
}
