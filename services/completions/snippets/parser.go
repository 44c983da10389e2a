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
	"strconv"
	"strings"
)

// astRule says what happens when the parser enters a grammar rule.
//
// A rule with frame set opens a new argument frame: the tokens, leaves and
// values produced while the rule is active are collected and handed to
// build when the rule ends. The result joins the enclosing frame. Rules
// with leaf set turn each matched terminal into a leaf node.
type astRule struct {
	frame bool
	leaf  bool
	build func(args []any) (any, error)
}

// contextSwitcher maps grammar rules to AST construction. Rules that are
// not listed pass their output straight to the enclosing frame.
var contextSwitcher = map[string]astRule{
	startRule:     {frame: true, build: buildText},
	"SNIPPET":     {frame: true, build: buildSnippet},
	"PLACEHOLDER": {frame: true, build: buildText},
	"CHOICES":     {frame: true, build: buildChoices},
	"CHOICE":      {frame: true, build: buildString},
	"REGEX":       {frame: true, build: buildString},
	"FORMAT":      {frame: true, build: buildFormatSequence},
	"FMTREF":      {frame: true, build: buildFormatRef},
	"IFTEXT":      {frame: true, build: buildString},
	"ELSETEXT":    {frame: true, build: buildString},
	"OPTIONS":     {frame: true, build: buildString},
	"TOPLEAF":     {leaf: true},
	"INNERLEAF":   {leaf: true},
	"CHOICELEAF":  {leaf: true},
	"REGEXLEAF":   {leaf: true},
	"FMTLEAF":     {leaf: true},
	"IFLEAF":      {leaf: true},
	"ELSEHEAD":    {leaf: true},
}

type stackItem struct {
	sym symbol
	end string
}

type frame struct {
	args []any
}

// Parse parses snippet source into an AST. Variables and choices are not
// materialized; see Expand.
//
// Errors:
//
//	*SyntaxError - the source is not a valid snippet
func Parse(src string) (*Node, error) {
	pt, err := grammarTable()
	if err != nil {
		return nil, err
	}

	toks := append(Lex(src), Token{Kind: TokEOF, Offset: len(src)})
	pos := 0

	stack := []stackItem{{sym: nt(startRule)}}
	var frames []*frame
	var rules []string

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		look := toks[pos]

		if item.end != "" {
			if len(rules) > 0 {
				rules = rules[:len(rules)-1]
			}
			ctx, ok := contextSwitcher[item.end]
			if !ok || !ctx.frame {
				continue
			}
			f := frames[len(frames)-1]
			frames = frames[:len(frames)-1]
			v, err := ctx.build(f.args)
			if err != nil {
				return nil, syntaxErrorAt(src, look, nil, err)
			}
			if len(frames) == 0 {
				root, _ := v.(*Node)
				if look.Kind != TokEOF {
					return nil, syntaxErrorAt(src, look, []string{TokEOF.String()}, nil)
				}
				root.link()
				return root, nil
			}
			top := frames[len(frames)-1]
			top.args = append(top.args, v)
			continue
		}

		if item.sym.term {
			if look.Kind != item.sym.tok {
				return nil, syntaxErrorAt(src, look, []string{item.sym.tok.String()}, nil)
			}
			pos++
			top := frames[len(frames)-1]
			if len(rules) > 0 && contextSwitcher[rules[len(rules)-1]].leaf {
				top.args = append(top.args, newLeaf(look))
			} else {
				top.args = append(top.args, look)
			}
			continue
		}

		idx, ok := pt.table[item.sym.nt][look.Kind]
		if !ok {
			return nil, syntaxErrorAt(src, look, pt.expected(item.sym.nt), nil)
		}
		rules = append(rules, item.sym.nt)
		if ctx := contextSwitcher[item.sym.nt]; ctx.frame {
			frames = append(frames, &frame{})
		}
		stack = append(stack, stackItem{end: item.sym.nt})
		rhs := pt.rules[idx].rhs
		for i := len(rhs) - 1; i >= 0; i-- {
			stack = append(stack, stackItem{sym: rhs[i]})
		}
	}
	return nil, fmt.Errorf("snippet parser ended without a root")
}

func syntaxErrorAt(src string, tok Token, expected []string, cause error) *SyntaxError {
	head := src[:tok.Offset]
	line := strings.Count(head, "\n")
	col := len([]rune(head[strings.LastIndexByte(head, '\n')+1:]))
	if cause != nil {
		expected = append(expected, cause.Error())
	}
	return &SyntaxError{Offset: tok.Offset, Line: line, Column: col, Found: tok.Raw, Expected: expected}
}

// Expand parses src and fills in variables and choices.
func Expand(src string, vars VariableResolver) (*Node, error) {
	root, err := Parse(src)
	if err != nil {
		return nil, err
	}
	root.materialize(vars)
	return root, nil
}

// =============================================================================
// BUILDERS
// =============================================================================

func buildText(args []any) (any, error) {
	text := newText()
	for _, a := range args {
		if node, ok := a.(*Node); ok {
			text.Children = append(text.Children, node)
		}
	}
	text.Children = mergeLeaves(text.Children)
	return text, nil
}

func buildString(args []any) (any, error) {
	var sb strings.Builder
	for _, a := range args {
		switch v := a.(type) {
		case *Node:
			sb.WriteString(v.Text())
		case Token:
			sb.WriteString(v.Text())
		}
	}
	return sb.String(), nil
}

func buildChoices(args []any) (any, error) {
	var out []string
	for _, a := range args {
		if s, ok := a.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func tokenAt(args []any, i int) (Token, bool) {
	if i >= len(args) {
		return Token{}, false
	}
	tok, ok := args[i].(Token)
	return tok, ok
}

func number(tok Token) (int, error) {
	num, err := strconv.Atoi(tok.Raw)
	if err != nil {
		return 0, fmt.Errorf("tabstop number %q out of range", tok.Raw)
	}
	return num, nil
}

// buildSnippet assembles $1, ${1...}, $NAME and ${NAME...}.
func buildSnippet(args []any) (any, error) {
	id, ok := tokenAt(args, 1)
	if !ok {
		return nil, fmt.Errorf("malformed snippet")
	}
	if id.Kind == TokLBrace {
		id, _ = tokenAt(args, 2)
	}
	node := &Node{}
	if id.Kind == TokInt {
		num, err := number(id)
		if err != nil {
			return nil, err
		}
		node.Kind, node.Number = NodeTabstop, num
	} else {
		node.Kind, node.Value = NodeVariable, id.Raw
	}

	tail, ok := tokenAt(args, 3)
	if !ok || tail.Kind == TokRBrace {
		return node, nil
	}

	switch tail.Kind {
	case TokColon:
		content, _ := args[4].(*Node)
		if node.Kind == NodeTabstop {
			node.Kind = NodePlaceholder
		} else {
			node.Kind = NodeVariablePlaceholder
		}
		node.Children = []*Node{content}
	case TokPipe:
		node.Kind = NodeChoice
		node.Choices, _ = args[4].([]string)
	case TokSlash:
		node.Kind = NodeRegex
		node.Regex, _ = args[4].(string)
		node.Format, _ = args[6].(*Node)
		node.Options, _ = args[8].(string)
	}
	return node, nil
}

func buildFormatSequence(args []any) (any, error) {
	seq := &Node{Kind: NodeFormatSequence}
	for _, a := range args {
		if node, ok := a.(*Node); ok {
			seq.Children = append(seq.Children, node)
		}
	}
	seq.Children = mergeLeaves(seq.Children)
	return seq, nil
}

// buildFormatRef assembles $1 and the ${1:...} format forms.
func buildFormatRef(args []any) (any, error) {
	group, ok := tokenAt(args, 1)
	if ok && group.Kind == TokLBrace {
		group, _ = tokenAt(args, 2)
	}
	num, err := number(group)
	if err != nil {
		return nil, err
	}
	node := &Node{Kind: NodeFormatSimple, Number: num}
	if len(args) <= 4 {
		return node, nil
	}

	switch v := args[4].(type) {
	case string:
		node.Kind, node.ElseText = NodeFormatElse, v
	case Token:
		switch v.Kind {
		case TokSlash:
			name, _ := tokenAt(args, 5)
			node.Case = name.Raw
		case TokPlus:
			node.Kind = NodeFormatIf
			node.IfText, _ = args[5].(string)
		case TokQuestion:
			node.Kind = NodeFormatIfElse
			node.IfText, _ = args[5].(string)
			node.ElseText, _ = args[7].(string)
		case TokMinus:
			node.Kind = NodeFormatElse
			node.ElseText, _ = args[5].(string)
		case TokRBrace:
			node.Kind = NodeFormatElse
		}
	}
	return node, nil
}
